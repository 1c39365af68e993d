package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lendcore/fixedpoint"
)

func sampleMarket() Market {
	return Market{
		Version:                              1,
		OwnerID:                              ID{1},
		ReferralFeeBps:                       0,
		PriceRefreshTriggerToMaxAgePct:        80,
		LiquidationMaxDebtCloseFactorPct:      50,
		InsolvencyRiskUnhealthyLTVPct:         90,
		MinFullLiquidationValueThreshold:      2_000_000,
		MaxLiquidatableDebtMarketValueAtOnce:  500_000,
		GlobalUnhealthyBorrowValue:            10_000_000,
		GlobalAllowedBorrowValue:              9_000_000,
		MinNetValueInObligation:               fixedpoint.FromU64(0),
	}
}

func TestGuardAllowsWhenNotInEmergency(t *testing.T) {
	m := sampleMarket()
	require.NoError(t, m.Guard(true))
}

func TestGuardRejectsGuardedOpInEmergency(t *testing.T) {
	m := sampleMarket()
	m.EmergencyMode = true
	require.ErrorIs(t, m.Guard(true), ErrGlobalEmergencyMode)
}

func TestGuardAllowsExemptOpInEmergency(t *testing.T) {
	m := sampleMarket()
	m.EmergencyMode = true
	require.NoError(t, m.Guard(false))
}

func TestGuardBorrowRejectsWhenDisabled(t *testing.T) {
	m := sampleMarket()
	m.BorrowDisabled = true
	require.ErrorIs(t, m.GuardBorrow(), ErrBorrowingDisabled)
}

func TestGuardBorrowRejectsInEmergencyEvenIfNotDisabled(t *testing.T) {
	m := sampleMarket()
	m.EmergencyMode = true
	require.ErrorIs(t, m.GuardBorrow(), ErrGlobalEmergencyMode)
}

func TestGuardBorrowAllowsNormalOperation(t *testing.T) {
	m := sampleMarket()
	require.NoError(t, m.GuardBorrow())
}

func TestCapAllowedBorrowValueClamps(t *testing.T) {
	m := sampleMarket()
	over := fixedpoint.FromU64(50_000_000)
	capped := m.CapAllowedBorrowValue(over)
	want := fixedpoint.FromU64(m.GlobalAllowedBorrowValue)
	require.Equal(t, 0, capped.Cmp(want))
}

func TestCapUnhealthyBorrowValuePassesThroughWhenUnderCeiling(t *testing.T) {
	m := sampleMarket()
	under := fixedpoint.FromU64(1_000)
	capped := m.CapUnhealthyBorrowValue(under)
	require.Equal(t, 0, capped.Cmp(under))
}

func TestUpdateOwnerRequiresCurrentOwner(t *testing.T) {
	m := sampleMarket()
	_, err := m.UpdateOwner(ID{9}, ID{2})
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateOwnerSucceedsForCurrentOwner(t *testing.T) {
	m := sampleMarket()
	next, err := m.UpdateOwner(ID{1}, ID{2})
	require.NoError(t, err)
	require.Equal(t, ID{2}, next.OwnerID)
	require.Equal(t, ID{1}, m.OwnerID)
}
