// Package market implements the global policy record (SPEC_FULL §3, §5):
// emergency mode, borrow-disabled, global borrow/unhealthy caps, the
// liquidation close factor, and the minimum net-value floor. The
// emergency/borrow-disabled gate is adapted from
// native/common/guard.go's PauseView/Guard pattern, moved from a
// module-name-keyed global pause check to a boolean field on the market
// record itself, per spec §9's design note that emergency mode is Market
// state, not a global.
package market

import (
	"errors"

	"lendcore/fixedpoint"
	"lendcore/reserve"
)

// ErrGlobalEmergencyMode is returned by Guard when the market is in
// emergency mode and the caller marks the operation as guarded.
var ErrGlobalEmergencyMode = errors.New("market: emergency mode active")

// ErrBorrowingDisabled is returned by GuardBorrow when borrow_disabled is
// set (spec §4.7).
var ErrBorrowingDisabled = errors.New("market: borrowing disabled")

// ID is an opaque identifier, reusing the reserve package's 32-byte shape.
type ID = reserve.ID

// Market is the global policy record (spec §3).
type Market struct {
	ID                                   ID
	Version                              uint64
	Bump                                 uint8
	OwnerID                              ID
	QuoteCurrency                        [32]byte
	ReferralFeeBps                       uint16
	EmergencyMode                        bool
	AutodeleverageEnabled                bool
	BorrowDisabled                       bool
	PriceRefreshTriggerToMaxAgePct       uint8
	LiquidationMaxDebtCloseFactorPct     uint8
	InsolvencyRiskUnhealthyLTVPct        uint8
	MinFullLiquidationValueThreshold     uint64
	MaxLiquidatableDebtMarketValueAtOnce uint64
	GlobalUnhealthyBorrowValue           uint64
	GlobalAllowedBorrowValue             uint64
	MinNetValueInObligation              fixedpoint.F
}

// Guard returns ErrGlobalEmergencyMode when guarded is true and the market
// is in emergency mode. In the lending engine only
// WithdrawObligationCollateral calls it, and Borrow through GuardBorrow;
// liquidity deposits, collateral deposits and redemptions, repay,
// liquidation and flash loans do not check emergency mode.
func (m Market) Guard(guarded bool) error {
	if guarded && m.EmergencyMode {
		return ErrGlobalEmergencyMode
	}
	return nil
}

// GuardBorrow additionally rejects borrows while borrow_disabled is set
// (spec §4.7: "Borrow additionally requires the market not to be in
// emergency mode and borrow_disabled == 0").
func (m Market) GuardBorrow() error {
	if err := m.Guard(true); err != nil {
		return err
	}
	if m.BorrowDisabled {
		return ErrBorrowingDisabled
	}
	return nil
}

// CapAllowedBorrowValue clamps a computed allowed_borrow_value to the
// market-wide ceiling (spec §4.6).
func (m Market) CapAllowedBorrowValue(v fixedpoint.F) fixedpoint.F {
	ceiling := fixedpoint.FromU64(m.GlobalAllowedBorrowValue)
	return v.Min(ceiling)
}

// CapUnhealthyBorrowValue clamps a computed unhealthy_borrow_value to the
// market-wide ceiling (spec §4.6).
func (m Market) CapUnhealthyBorrowValue(v fixedpoint.F) fixedpoint.F {
	ceiling := fixedpoint.FromU64(m.GlobalUnhealthyBorrowValue)
	return v.Min(ceiling)
}

// UpdateOwner transfers market ownership, the narrow update_market_owner
// operation from spec §6 (supplemental, SPEC_FULL §13): only the current
// owner may call it.
func (m Market) UpdateOwner(caller ID, newOwner ID) (Market, error) {
	if caller != m.OwnerID {
		return Market{}, ErrNotOwner
	}
	next := m
	next.OwnerID = newOwner
	return next, nil
}

// ErrNotOwner is returned by UpdateOwner when the caller does not match
// the market's current owner.
var ErrNotOwner = errors.New("market: caller is not the owner")
