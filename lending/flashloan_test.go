package lending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/fixedpoint"
	"lendcore/host"
)

func TestFlashBorrowRepayRoundTripChargesFee(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	supplier := addr(2)
	flashUser := addr(3)
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, supplier, 1_000_000)
	tokens.Credit(mintID, flashUser, 1_000) // covers the flash fee

	e, store := newTestEngine(t, tokens)
	r := testReserve(reserveID, 100)
	r.Config.Fees.FlashLoanFeeSF = fixedpoint.FromPercent(1).Bits() // 1% fee
	require.NoError(t, store.PutReserve(ctx, reserveID, r))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 1_000_000, 100)
	require.NoError(t, err)

	tx := NewTxContext()
	require.NoError(t, e.FlashBorrow(ctx, tx, reserveID, flashUser, 100_000))
	require.Equal(t, uint64(101_000), tokens.LiquidityBalance(mintID, flashUser))

	mid, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(900_000), mid.Liquidity.AvailableAmount)

	require.NoError(t, e.FlashRepay(ctx, tx, reserveID, flashUser, 100_000))

	after, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	// 900,000 available after the borrow, plus the 100,000 principal and the
	// 1,000 fee returned by FlashRepay: the fee lands in AvailableAmount just
	// like any other liquidity inflow until RedeemFees later sweeps it out.
	require.Equal(t, uint64(1_001_000), after.Liquidity.AvailableAmount)
	fees, err := after.Liquidity.AccumulatedProtocolFees.ToFloorU64()
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), fees) // 1% of 100,000
}

func TestFlashBorrowRejectsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	e, store := newTestEngine(t, nil)
	r := testReserve(reserveID, 100)
	r.Config.Fees.FlashLoanFeeSF = ^uint64(0)
	require.NoError(t, store.PutReserve(ctx, reserveID, r))

	tx := NewTxContext()
	err := e.FlashBorrow(ctx, tx, reserveID, addr(2), 1_000)
	require.ErrorIs(t, err, ErrFlashLoansDisabledHere)
}

func TestFlashBorrowRejectsSecondConcurrentBorrow(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	supplier := addr(2)
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 1_000_000, 100)
	require.NoError(t, err)

	tx := NewTxContext()
	require.NoError(t, e.FlashBorrow(ctx, tx, reserveID, addr(3), 1_000))
	err = e.FlashBorrow(ctx, tx, reserveID, addr(3), 1_000)
	require.ErrorIs(t, err, ErrMultipleFlashBorrows)
}

func TestFlashRepayRejectsMismatchedAmount(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	supplier := addr(2)
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 1_000_000, 100)
	require.NoError(t, err)

	tx := NewTxContext()
	require.NoError(t, e.FlashBorrow(ctx, tx, reserveID, addr(3), 1_000))
	err = e.FlashRepay(ctx, tx, reserveID, addr(3), 2_000)
	require.ErrorIs(t, err, ErrInvalidFlashRepay)
}

// TestFinalizeTransactionRejectsUnrepaidFlashBorrow is the forward half of
// the flash-loan safety invariant: a FlashBorrow with no paired FlashRepay
// succeeds on its own (it cannot know a repay is or isn't still coming),
// but the transaction as a whole must not be allowed to commit.
func TestFinalizeTransactionRejectsUnrepaidFlashBorrow(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	supplier := addr(2)
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 1_000_000, 100)
	require.NoError(t, err)

	tx := NewTxContext()
	require.NoError(t, e.FlashBorrow(ctx, tx, reserveID, addr(3), 1_000))
	err = e.FinalizeTransaction(tx)
	require.ErrorIs(t, err, ErrNoFlashRepayFound)
}

// TestFinalizeTransactionAcceptsPairedFlashBorrow confirms a fully paired
// borrow/repay does not trip the end-of-batch check.
func TestFinalizeTransactionAcceptsPairedFlashBorrow(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	supplier := addr(2)
	flashUser := addr(3)
	tokens := host.NewMemTokens()
	tokens.Credit(mintID, supplier, 1_000_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	_, err := e.DepositLiquidity(ctx, reserveID, supplier, 1_000_000, 100)
	require.NoError(t, err)

	tx := NewTxContext()
	require.NoError(t, e.FlashBorrow(ctx, tx, reserveID, flashUser, 1_000))
	require.NoError(t, e.FlashRepay(ctx, tx, reserveID, flashUser, 1_000))
	require.NoError(t, e.FinalizeTransaction(tx))
}

func TestFlashRepayRejectsWithNoMatchingBorrow(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	e, store := newTestEngine(t, nil)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))

	tx := NewTxContext()
	err := e.FlashRepay(ctx, tx, reserveID, addr(3), 1_000)
	require.ErrorIs(t, err, ErrNoFlashRepayFound)
}
