// Package reserve implements the per-asset pool: liquidity and collateral
// accounting, interest accrual, and the borrow/repay/deposit/redeem
// arithmetic of SPEC_FULL §3 and §4.4. Field layout is grounded on
// native/lending/types.go's Market struct (doc-comment density, Clone()
// deep-copy convention); accrual sequencing follows
// native/lending/engine.go's accrueInterest/computeInterest.
package reserve

import (
	"lendcore/curve"
	"lendcore/fixedpoint"
	"lendcore/oracle"
	"lendcore/withdrawalcap"
)

// SlotsPerYear is the stable constant from spec §6: 2 slots/sec * seconds/year.
const SlotsPerYear = 63_072_000

// MaxU64 is the sentinel "use everything available" amount accepted by
// CalculateBorrow and CalculateRepay.
const MaxU64 = ^uint64(0)

// Status is the reserve lifecycle state.
type Status uint8

const (
	StatusHidden Status = iota
	StatusActive
	StatusObsolete
)

// AssetTier governs isolation rules between deposits and borrows within a
// single obligation (spec §3's Asset-tier invariant).
type AssetTier uint8

const (
	TierRegular AssetTier = iota
	TierIsolatedCollateral
	TierIsolatedDebt
)

// ID is an opaque 32-byte identifier (mint id, vault id, market id, ...).
type ID [32]byte

// LastUpdate is the freshness stamp every reserve and obligation carries.
type LastUpdate struct {
	Slot             uint64
	StampTS          uint64
	PriceStatusFlags oracle.StatusFlags
}

// Fresh reports whether the stamp was taken at nowSlot and carries at
// least the required status bits.
func (u LastUpdate) Fresh(nowSlot uint64, required oracle.StatusFlags) bool {
	return u.Slot == nowSlot && u.PriceStatusFlags.Has(required)
}

// Liquidity is the reserve's token-accounting half (spec §3).
type Liquidity struct {
	MintID                   ID
	MintDecimals             uint8
	SupplyVaultID            ID
	FeeVaultID               ID
	AvailableAmount          uint64
	BorrowedAmount           fixedpoint.F
	MarketPrice              fixedpoint.F
	MarketPriceLastUpdatedTS uint64
	CumulativeBorrowIndex    fixedpoint.BF
	AccumulatedProtocolFees  fixedpoint.F
	DepositLimitCrossedSlot  uint64
	BorrowLimitCrossedSlot   uint64
}

// Collateral is the reserve's c-token mint-supply half.
type Collateral struct {
	MintID          ID
	SupplyVaultID   ID
	MintTotalSupply uint64
}

// Fees bundles the borrow origination and flash-loan fee scaling factors,
// each a raw F bit pattern (spec §4.4's F::from_bits(borrow_fee_sf)).
type Fees struct {
	BorrowFeeSF    uint64
	FlashLoanFeeSF uint64
}

// FlashLoansDisabled reports the flash-fee sentinel spec §4.9 reserves to
// mean "flash loans are off for this reserve".
func (f Fees) FlashLoansDisabled() bool { return f.FlashLoanFeeSF == MaxU64 }

// TokenInfo carries the reserve's own name alongside the shared oracle
// tolerances (spec §3's token_info block).
type TokenInfo struct {
	Name   [32]byte
	Oracle oracle.TokenInfo
}

// Config is the per-reserve risk and fee policy (spec §3).
type Config struct {
	Status                          Status
	AssetTier                       AssetTier
	ProtocolTakeRatePct             uint8
	ProtocolLiquidationFeePct       uint8
	LoanToValuePct                  uint8
	LiquidationThresholdPct         uint8
	MinLiquidationBonusBps          uint16
	MaxLiquidationBonusBps          uint16
	BadDebtLiquidationBonusBps      uint16
	DeleveragingMarginCallPeriodSec uint64
	DeleveragingThresholdSlotsPerBp uint64
	Fees                            Fees
	BorrowRateCurve                 curve.Curve
	BorrowFactorPct                 uint16
	DepositLimit                    uint64
	BorrowLimit                     uint64
	TokenInfo                       TokenInfo
	DepositWithdrawalCap            withdrawalcap.Caps
	DebtWithdrawalCap               withdrawalcap.Caps
}

// Reserve is the full per-asset pool record.
type Reserve struct {
	Version         uint64
	LendingMarketID ID
	LastUpdate      LastUpdate
	Liquidity       Liquidity
	Collateral      Collateral
	Config          Config
}
