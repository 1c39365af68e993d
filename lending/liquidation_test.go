package lending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/host"
)

// TestLiquidateAndRedeemChargesProtocolFee drives a full unhealthy-obligation
// liquidation: a borrower pledges collReserveID collateral, borrows against
// debtReserveID, the collateral's price crashes, and a liquidator repays
// part of the debt in exchange for a bonus-adjusted slice of collateral
// minus the protocol's cut. The exact assertion on AvailableAmount below is
// also the regression guard for the protocol-fee accounting fix: if the fee
// share were left untracked, Engine.reconcile would have already failed
// inside LiquidateAndRedeem and this test would never reach it.
func TestLiquidateAndRedeemChargesProtocolFee(t *testing.T) {
	ctx := context.Background()
	collReserveID := id(1)
	debtReserveID := id(2)
	collMintID := underlyingMintFor(collReserveID)
	debtMintID := underlyingMintFor(debtReserveID)

	borrower := addr(2)
	liquidator := addr(3)
	tokens := host.NewMemTokens()
	tokens.Credit(collMintID, borrower, 1_000_000)
	tokens.Credit(debtMintID, liquidator, 1_000_000)

	e, store := newTestEngine(t, tokens)

	collReserve := testReserve(collReserveID, 100)
	require.NoError(t, store.PutReserve(ctx, collReserveID, collReserve))

	debtReserve := testReserve(debtReserveID, 100)
	require.NoError(t, store.PutReserve(ctx, debtReserveID, debtReserve))
	// the protocol fee is charged against withdrawReserveID's liquidity, so
	// that reserve (collReserveID) is the one whose fee config matters.
	collReserve.Config.ProtocolLiquidationFeePct = 20
	require.NoError(t, store.PutReserve(ctx, collReserveID, collReserve))

	lender := addr(9)
	tokens.Credit(debtMintID, lender, 1_000_000)
	_, err := e.DepositLiquidity(ctx, debtReserveID, lender, 1_000_000, 100)
	require.NoError(t, err)

	_, err = e.DepositLiquidity(ctx, collReserveID, borrower, 1_000_000, 100)
	require.NoError(t, err)

	obID := id(0x50)
	require.NoError(t, store.PutObligation(ctx, obID, emptyObligation(borrower)))

	m := testMarket(addr(0xAB))
	require.NoError(t, e.DepositObligationCollateral(ctx, m, obID, borrower, collReserveID, 1_000_000, 100))

	tx := NewTxContext()
	_, err = e.RefreshReserve(ctx, tx, collReserveID, 100, 100)
	require.NoError(t, err)
	_, err = e.RefreshReserve(ctx, tx, debtReserveID, 100, 100)
	require.NoError(t, err)
	_, err = e.RefreshObligation(ctx, tx, obID, m, 100)
	require.NoError(t, err)

	_, err = e.Borrow(ctx, tx, m, obID, borrower, debtReserveID, 700_000, 100)
	require.NoError(t, err)

	// crash the collateral's price to push the obligation underwater.
	crashed, err := store.GetReserve(ctx, collReserveID)
	require.NoError(t, err)
	halved, err := crashed.Liquidity.MarketPrice.DivU64(2)
	require.NoError(t, err)
	crashed.Liquidity.MarketPrice = halved
	require.NoError(t, store.PutReserve(ctx, collReserveID, crashed))

	tx2 := NewTxContext()
	_, err = e.RefreshReserve(ctx, tx2, collReserveID, 200, 200)
	require.NoError(t, err)
	_, err = e.RefreshReserve(ctx, tx2, debtReserveID, 200, 200)
	require.NoError(t, err)
	_, err = e.RefreshObligation(ctx, tx2, obID, m, 200)
	require.NoError(t, err)

	withdrawBefore, err := store.GetReserve(ctx, collReserveID)
	require.NoError(t, err)

	result, err := e.LiquidateAndRedeem(ctx, tx2, obID, liquidator, debtReserveID, collReserveID, 100_000, 1, m, 200)
	require.NoError(t, err)

	require.Equal(t, uint64(100_000), result.RepayAmount)
	require.Greater(t, result.ProtocolFee, uint64(0))
	require.Greater(t, result.WithdrawLiquidityAmount, uint64(0))

	withdrawAfter, err := store.GetReserve(ctx, collReserveID)
	require.NoError(t, err)
	require.Equal(t, withdrawBefore.Liquidity.AvailableAmount-result.WithdrawLiquidityAmount, withdrawAfter.Liquidity.AvailableAmount)
	feesFloor, err := withdrawAfter.Liquidity.AccumulatedProtocolFees.ToFloorU64()
	require.NoError(t, err)
	require.Equal(t, result.ProtocolFee, feesFloor)

	// debtReserveID held 1,000,000 after the deposit, lost 700,000 to the
	// borrow, then gained back the 100,000 the liquidator just repaid.
	repayAfter, err := store.GetReserve(ctx, debtReserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-700_000+100_000), repayAfter.Liquidity.AvailableAmount)

	require.Equal(t, result.WithdrawLiquidityAmount, tokens.LiquidityBalance(collMintID, liquidator))
	require.Equal(t, uint64(1_000_000-100_000), tokens.LiquidityBalance(debtMintID, liquidator))
}
