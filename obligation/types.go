// Package obligation implements the per-user position: up to 8 collateral
// deposits and 5 liquidity borrows, aggregate valuations, and the
// asset-tier isolation invariant of SPEC_FULL §3, §4.5, §4.6. Field layout
// is grounded on native/lending/types.go's UserAccount
// (collateral/debt/shares), generalized from a single-asset position to the
// spec's multi-slot model; the find-or-add linear scan follows the same
// idiom native/lending/engine.go's ensureUserAccount/loadAccount use for
// account lookup.
package obligation

import (
	"lendcore/fixedpoint"
	"lendcore/reserve"
)

// MaxDeposits and MaxBorrows are the fixed slot counts spec §3 defines.
const (
	MaxDeposits = 8
	MaxBorrows  = 5
)

// ID is an opaque 32-byte identifier; the zero value marks an empty slot.
type ID = reserve.ID

var zeroID ID

// Collateral is one deposit slot.
type Collateral struct {
	DepositReserveID ID
	DepositedAmount  uint64
	MarketValue      fixedpoint.F
}

func (c Collateral) empty() bool { return c.DepositReserveID == zeroID }

// Liquidity is one borrow slot.
type Liquidity struct {
	BorrowReserveID              ID
	CumulativeBorrowRate         fixedpoint.BF
	BorrowedAmount               fixedpoint.F
	MarketValue                  fixedpoint.F
	BorrowFactorAdjustedMarketValue fixedpoint.F
}

func (l Liquidity) empty() bool { return l.BorrowReserveID == zeroID }

// Obligation is the full per-user position record.
type Obligation struct {
	Version         uint64
	LendingMarketID ID
	OwnerID         ID
	Tag             uint64
	LastUpdate      reserve.LastUpdate

	Deposits           [MaxDeposits]Collateral
	DepositsAssetTiers [MaxDeposits]reserve.AssetTier
	Borrows            [MaxBorrows]Liquidity
	BorrowsAssetTiers  [MaxBorrows]reserve.AssetTier

	DepositedValue                fixedpoint.F
	BorrowedAssetsMarketValue     fixedpoint.F
	BorrowFactorAdjustedDebtValue fixedpoint.F
	AllowedBorrowValue            fixedpoint.F
	UnhealthyBorrowValue          fixedpoint.F
	LowestReserveDepositLTV       uint8
	NumOfObsoleteReserves         uint8
	HasDebt                       uint8
}
