package lending

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/fixedpoint"
	"lendcore/host"
	"lendcore/reserve"
)

func TestRedeemFeesSweepsAvailableAmount(t *testing.T) {
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

	// simulate fees having already accrued from prior interest, the way
	// AccrueInterest would leave them embedded in AvailableAmount.
	withFees, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	withFees.Liquidity.AccumulatedProtocolFees = fixedpoint.FromU64(5_000)
	require.NoError(t, store.PutReserve(ctx, reserveID, withFees))

	swept, err := e.RedeemFees(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), swept)

	after, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-5_000), after.Liquidity.AvailableAmount)
	require.True(t, after.Liquidity.AccumulatedProtocolFees.IsZero())
	require.Equal(t, uint64(5_000), tokens.LiquidityBalance(mintID, feeVaultFor(mintID)))
}

func TestWithdrawProtocolFeesRequiresOwner(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	mintID := underlyingMintFor(reserveID)
	tokens := host.NewMemTokens()
	tokens.SeedVault(feeVaultFor(mintID), 1_000)

	e, store := newTestEngine(t, tokens)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	owner := addr(9)
	m := testMarket(owner)

	_, err := e.WithdrawProtocolFees(ctx, m, addr(1), reserveID, 500, addr(2))
	require.ErrorIs(t, err, ErrNotOwner)

	withdrawn, err := e.WithdrawProtocolFees(ctx, m, owner, reserveID, reserve.MaxU64, addr(2))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), withdrawn)
	require.Equal(t, uint64(1_000), tokens.LiquidityBalance(feeVaultFor(mintID), addr(2)))
}

func TestUpdateMarketOwnerRequiresCurrentOwner(t *testing.T) {
	ctx := context.Background()
	store := host.NewMemStore()
	e := NewEngine(store, nil, nil, nil)
	owner := addr(9)
	require.NoError(t, store.PutMarket(ctx, testMarket(owner)))

	_, err := e.UpdateMarketOwner(ctx, id(0xAA), addr(1), addr(2))
	require.ErrorIs(t, err, ErrNotOwner)

	updated, err := e.UpdateMarketOwner(ctx, id(0xAA), owner, addr(2))
	require.NoError(t, err)
	require.Equal(t, addr(2), updated.OwnerID)
}

func TestUpdateMarketSetsEmergencyMode(t *testing.T) {
	ctx := context.Background()
	store := host.NewMemStore()
	e := NewEngine(store, nil, nil, nil)
	owner := addr(9)
	require.NoError(t, store.PutMarket(ctx, testMarket(owner)))

	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], 1)
	updated, err := e.UpdateMarket(ctx, id(0xAA), owner, MarketModeEmergencyMode, value)
	require.NoError(t, err)
	require.True(t, updated.EmergencyMode)

	_, err = e.UpdateMarket(ctx, id(0xAA), addr(1), MarketModeEmergencyMode, value)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateReserveReplacesFullConfig(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	store := host.NewMemStore()
	e := NewEngine(store, nil, nil, nil)
	owner := addr(9)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	m := testMarket(owner)

	newConfig := testReserve(reserveID, 100).Config
	newConfig.LoanToValuePct = 60
	newConfig.LiquidationThresholdPct = 70

	_, err := e.UpdateReserve(ctx, m, addr(1), reserveID, newConfig)
	require.ErrorIs(t, err, ErrNotOwner)

	updated, err := e.UpdateReserve(ctx, m, owner, reserveID, newConfig)
	require.NoError(t, err)
	require.Equal(t, uint8(60), updated.Config.LoanToValuePct)
	require.Equal(t, uint8(70), updated.Config.LiquidationThresholdPct)
}

func TestUpdateReserveModeMutatesSingleField(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	store := host.NewMemStore()
	e := NewEngine(store, nil, nil, nil)
	owner := addr(9)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	m := testMarket(owner)

	var value [32]byte
	binary.LittleEndian.PutUint64(value[:8], 50)
	updated, err := e.UpdateReserveMode(ctx, m, owner, reserveID, ReserveModeProtocolTakeRatePct, value)
	require.NoError(t, err)
	require.Equal(t, uint8(50), updated.Config.ProtocolTakeRatePct)

	// the referral-fee-bps discriminant is reserved but never mutates state.
	before, err := store.GetReserve(ctx, reserveID)
	require.NoError(t, err)
	noop, err := e.UpdateReserveMode(ctx, m, owner, reserveID, ReserveModeUpdateFeesReferralFeeBps, value)
	require.NoError(t, err)
	require.Equal(t, before, noop)
}

func TestUpdateReserveModeRejectsWrongOwner(t *testing.T) {
	ctx := context.Background()
	reserveID := id(1)
	store := host.NewMemStore()
	e := NewEngine(store, nil, nil, nil)
	owner := addr(9)
	require.NoError(t, store.PutReserve(ctx, reserveID, testReserve(reserveID, 100)))
	m := testMarket(owner)

	var value [32]byte
	_, err := e.UpdateReserveMode(ctx, m, addr(1), reserveID, ReserveModeStatus, value)
	require.ErrorIs(t, err, ErrNotOwner)
}
