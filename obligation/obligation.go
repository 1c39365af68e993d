package obligation

import (
	"lendcore/fixedpoint"
	"lendcore/reserve"
)

// FindOrAddCollateral reuses an existing slot for reserveID or claims the
// first empty one, recording the deposit's asset tier (spec §4.5).
func (o Obligation) FindOrAddCollateral(reserveID ID, tier reserve.AssetTier) (Obligation, int, error) {
	for i, c := range o.Deposits {
		if c.DepositReserveID == reserveID {
			return o, i, nil
		}
	}
	for i, c := range o.Deposits {
		if c.empty() {
			next := o
			next.Deposits[i] = Collateral{DepositReserveID: reserveID}
			next.DepositsAssetTiers[i] = tier
			return next, i, nil
		}
	}
	return Obligation{}, 0, ErrObligationReserveLimit
}

// FindOrAddLiquidity reuses an existing slot for reserveID or claims the
// first empty one, initializing CumulativeBorrowRate for a fresh slot.
func (o Obligation) FindOrAddLiquidity(reserveID ID, cumRate fixedpoint.BF, tier reserve.AssetTier) (Obligation, int, error) {
	for i, l := range o.Borrows {
		if l.BorrowReserveID == reserveID {
			return o, i, nil
		}
	}
	for i, l := range o.Borrows {
		if l.empty() {
			next := o
			next.Borrows[i] = Liquidity{BorrowReserveID: reserveID, CumulativeBorrowRate: cumRate}
			next.BorrowsAssetTiers[i] = tier
			return next, i, nil
		}
	}
	return Obligation{}, 0, ErrObligationReserveLimit
}

// FindCollateral performs a strict lookup, failing if the reserve has no
// deposit slot.
func (o Obligation) FindCollateral(reserveID ID) (int, error) {
	for i, c := range o.Deposits {
		if c.DepositReserveID == reserveID {
			return i, nil
		}
	}
	return 0, ErrInvalidObligationCollateral
}

// FindLiquidity performs a strict lookup, failing if the reserve has no
// borrow slot.
func (o Obligation) FindLiquidity(reserveID ID) (int, error) {
	for i, l := range o.Borrows {
		if l.BorrowReserveID == reserveID {
			return i, nil
		}
	}
	return 0, ErrInvalidObligationLiquidity
}

// AccrueInterest rescales the borrow slot at index i to the reserve's new
// cumulative borrow rate (spec §4.5).
func (o Obligation) AccrueInterest(i int, newCumRate fixedpoint.BF) (Obligation, error) {
	next := o
	l := next.Borrows[i]
	if l.empty() {
		return next, nil
	}
	oldRate, err := l.CumulativeBorrowRate.ToF()
	if err != nil {
		return Obligation{}, err
	}
	rate, err := newCumRate.ToF()
	if err != nil {
		return Obligation{}, err
	}
	scaled, err := l.BorrowedAmount.Mul(rate)
	if err != nil {
		return Obligation{}, err
	}
	scaled, err = scaled.Div(oldRate)
	if err != nil {
		return Obligation{}, err
	}
	l.BorrowedAmount = scaled
	l.CumulativeBorrowRate = newCumRate
	next.Borrows[i] = l
	return next, nil
}

// RemainingBorrowValue is saturating_sub(allowed_borrow_value, bf_debt).
func (o Obligation) RemainingBorrowValue() fixedpoint.F {
	return o.AllowedBorrowValue.SaturatingSub(o.BorrowFactorAdjustedDebtValue)
}

// MaxWithdrawValue solves spec §4.5's max_withdraw_value.
func (o Obligation) MaxWithdrawValue(ltvPct uint8) (fixedpoint.F, error) {
	if ltvPct == 0 {
		return fixedpoint.Zero(), nil
	}
	if o.BorrowFactorAdjustedDebtValue.Cmp(o.AllowedBorrowValue) >= 0 {
		return fixedpoint.Zero(), nil
	}
	remaining := o.AllowedBorrowValue.SaturatingSub(o.BorrowFactorAdjustedDebtValue)
	scaled, err := remaining.MulU64(100)
	if err != nil {
		return fixedpoint.F{}, err
	}
	return scaled.DivU64(uint64(ltvPct))
}

// LoanToValue is bf_debt / deposited_value.
func (o Obligation) LoanToValue() (fixedpoint.F, error) {
	if o.DepositedValue.IsZero() {
		return fixedpoint.Zero(), nil
	}
	return o.BorrowFactorAdjustedDebtValue.Div(o.DepositedValue)
}

// UnhealthyLoanToValue is unhealthy_borrow_value / deposited_value.
func (o Obligation) UnhealthyLoanToValue() (fixedpoint.F, error) {
	if o.DepositedValue.IsZero() {
		return fixedpoint.Zero(), nil
	}
	return o.UnhealthyBorrowValue.Div(o.DepositedValue)
}

// BorrowsEmpty reports whether every borrow slot is empty.
func (o Obligation) BorrowsEmpty() bool {
	for _, l := range o.Borrows {
		if !l.empty() {
			return false
		}
	}
	return true
}

// DepositsEmpty reports whether every deposit slot is empty.
func (o Obligation) DepositsEmpty() bool {
	for _, c := range o.Deposits {
		if !c.empty() {
			return false
		}
	}
	return true
}

// RecomputeHasDebt sets HasDebt to 1 iff any borrow slot carries a nonzero
// balance (spec §4.5).
func (o Obligation) RecomputeHasDebt() Obligation {
	next := o
	next.HasDebt = 0
	for _, l := range next.Borrows {
		if !l.empty() && !l.BorrowedAmount.IsZero() {
			next.HasDebt = 1
			break
		}
	}
	return next
}

// ValidateAssetTiers enforces spec §3's asset-tier invariant: at most one
// isolated-collateral deposit, at most one isolated-debt borrow, never
// both at once, and an isolated slot forbids any sibling slot.
func (o Obligation) ValidateAssetTiers() error {
	isolatedDeposits := 0
	regularDeposits := 0
	for i, c := range o.Deposits {
		if c.empty() {
			continue
		}
		switch o.DepositsAssetTiers[i] {
		case reserve.TierIsolatedCollateral:
			isolatedDeposits++
		case reserve.TierIsolatedDebt:
			return ErrIsolatedAssetTierViolation
		default:
			regularDeposits++
		}
	}
	if isolatedDeposits > 1 {
		return ErrIsolatedAssetTierViolation
	}
	if isolatedDeposits == 1 && regularDeposits > 0 {
		return ErrIsolatedAssetTierViolation
	}

	isolatedBorrows := 0
	regularBorrows := 0
	for i, l := range o.Borrows {
		if l.empty() {
			continue
		}
		switch o.BorrowsAssetTiers[i] {
		case reserve.TierIsolatedDebt:
			isolatedBorrows++
		case reserve.TierIsolatedCollateral:
			return ErrIsolatedAssetTierViolation
		default:
			regularBorrows++
		}
	}
	if isolatedBorrows > 1 {
		return ErrIsolatedAssetTierViolation
	}
	if isolatedBorrows == 1 && regularBorrows > 0 {
		return ErrIsolatedAssetTierViolation
	}
	if isolatedDeposits == 1 && isolatedBorrows == 1 {
		return ErrIsolatedAssetTierViolation
	}
	return nil
}
