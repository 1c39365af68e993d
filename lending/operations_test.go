package lending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/host"
	"lendcore/market"
	"lendcore/reserve"
)

func newTestEngine(t *testing.T, tokens host.TokenTransfer) (*Engine, *host.MemStore) {
	t.Helper()
	store := host.NewMemStore()
	return NewEngine(store, tokens, nil, nil), store
}

func TestDepositLiquidityMintsCollateralAndReconciles(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	tokens := host.NewMemTokens()
	supplier := addr(2)
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))

	minted, err := e.DepositLiquidity(ctx, reserveID, supplier, 500_000, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), minted)

	r, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), r.Liquidity.AvailableAmount)
	require.Equal(t, uint64(500_000), tokens.CollateralBalance(reserveID, supplier))
	require.Equal(t, uint64(500_000), tokens.LiquidityBalance(mintID, supplier))
}

func TestRedeemCollateralReleasesLiquidity(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	tokens := host.NewMemTokens()
	supplier := addr(2)
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 500_000, 100)
	require.NoError(t, err)

	released, err := e.RedeemCollateral(ctx, reserveID, supplier, 200_000, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(200_000), released)

	r, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(300_000), r.Liquidity.AvailableAmount)
	require.Equal(t, uint64(300_000), tokens.CollateralBalance(reserveID, supplier))
}

func TestDepositObligationCollateralLocksCTokens(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	owner := addr(3)
	tokens := host.NewMemTokens()
	tokens.Credit(reserveID, owner, 1_000) // owner already holds c-tokens from an earlier deposit

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	obID := id(0x50)
	require.NoError(t, store.PutObligation(ctx, obID, emptyObligation(owner)))

	m := testMarket(addr(9))
	err := e.DepositObligationCollateral(ctx, m, obID, owner, reserveID, 400, 100)
	require.NoError(t, err)

	o, err := store.GetObligation(ctx, obID)
	require.NoError(t, err)
	idx, err := o.FindCollateral(reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(400), o.Deposits[idx].DepositedAmount)
	require.Equal(t, uint64(600), tokens.CollateralBalance(reserveID, owner))
}

func TestBorrowRequiresRefreshSequence(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	e, store := newTestEngine(t, nil)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	obID := id(0x50)
	require.NoError(t, store.PutObligation(ctx, obID, emptyObligation(addr(1))))

	m := testMarket(addr(9))
	tx := NewTxContext()
	_, err := e.Borrow(ctx, tx, m, obID, addr(1), reserveID, 100, 100)
	require.ErrorIs(t, err, ErrIncorrectInstructionInPosition)
}

func TestBorrowAndRepayRoundTrip(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	actor := addr(2) // supplies liquidity, pledges the resulting c-tokens, then borrows against them
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, actor, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, actor, 1_000_000, 100)
	require.NoError(t, err)

	obID := id(0x50)
	require.NoError(t, store.PutObligation(ctx, obID, emptyObligation(actor)))

	m := testMarket(addr(9))
	require.NoError(t, e.DepositObligationCollateral(ctx, m, obID, actor, reserveID, 1_000_000, 100))

	tx := NewTxContext()
	_, err = e.RefreshReserve(ctx, tx, reserveID, 100, 100)
	require.NoError(t, err)
	_, err = e.RefreshObligation(ctx, tx, obID, m, 100)
	require.NoError(t, err)

	received, err := e.Borrow(ctx, tx, m, obID, actor, reserveID, 100_000, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), received)
	require.Equal(t, uint64(100_000), tokens.LiquidityBalance(mintID, actor))

	r, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(900_000), r.Liquidity.AvailableAmount)

	settled, err := e.Repay(ctx, m, obID, actor, reserveID, reserve.MaxU64, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), settled)

	r, err = store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), r.Liquidity.AvailableAmount)

	o, err := store.GetObligation(ctx, obID)
	require.NoError(t, err)
	require.Equal(t, uint8(0), o.HasDebt)
}

func TestBorrowBlockedInEmergencyMode(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	e, store := newTestEngine(t, nil)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	obID := id(0x50)
	require.NoError(t, store.PutObligation(ctx, obID, emptyObligation(addr(1))))

	m := testMarket(addr(9))
	m.EmergencyMode = true
	tx := NewTxContext()
	_, err := e.Borrow(ctx, tx, m, obID, addr(1), reserveID, 100, 100)
	require.ErrorIs(t, err, market.ErrGlobalEmergencyMode)
}
