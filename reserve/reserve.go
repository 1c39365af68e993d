package reserve

import (
	"lendcore/fixedpoint"
	"lendcore/oracle"
)

// InitialCollateralRate is the exchange rate used while a reserve has no
// supply yet (spec §3, §6).
func InitialCollateralRate() fixedpoint.F { return fixedpoint.FromU64(1) }

// Validate checks the config invariants of spec §3 that must hold at rest.
func (r Reserve) Validate() error {
	c := r.Config
	if c.AssetTier == TierIsolatedDebt {
		if c.LoanToValuePct != 0 || c.LiquidationThresholdPct != 0 {
			return ErrIsolatedDebtConfigInvalid
		}
	} else {
		if c.LoanToValuePct >= 100 {
			return ErrLoanToValueInvalid
		}
		if c.LiquidationThresholdPct < c.LoanToValuePct {
			return ErrLiquidationThresholdLow
		}
	}
	if c.AssetTier == TierIsolatedCollateral && c.BorrowLimit != 0 {
		return ErrIsolatedCollatConfigBad
	}
	if c.BorrowFactorPct < 100 {
		return ErrBorrowFactorInvalid
	}
	if c.MaxLiquidationBonusBps > 10_000 {
		return ErrLiquidationBonusInvalid
	}
	if c.MinLiquidationBonusBps > c.MaxLiquidationBonusBps {
		return ErrLiquidationBonusOrder
	}
	return nil
}

// TotalSupply is available + borrowed - accumulated_protocol_fees (spec §3).
func (r Reserve) TotalSupply() (fixedpoint.F, error) {
	avail := fixedpoint.FromU64(r.Liquidity.AvailableAmount)
	sum, err := avail.Add(r.Liquidity.BorrowedAmount)
	if err != nil {
		return fixedpoint.F{}, err
	}
	return sum.Sub(r.Liquidity.AccumulatedProtocolFees)
}

// ExchangeRate is mint_total_supply / total_supply, or 1 while either side
// is zero (spec §3).
func (r Reserve) ExchangeRate() (fixedpoint.F, error) {
	totalSupply, err := r.TotalSupply()
	if err != nil {
		return fixedpoint.F{}, err
	}
	if r.Collateral.MintTotalSupply == 0 || totalSupply.IsZero() {
		return InitialCollateralRate(), nil
	}
	mint := fixedpoint.FromU64(r.Collateral.MintTotalSupply)
	return mint.Div(totalSupply)
}

// Utilization is borrowed / total_supply, or 0 when total_supply is zero.
func (r Reserve) Utilization() (fixedpoint.F, error) {
	totalSupply, err := r.TotalSupply()
	if err != nil {
		return fixedpoint.F{}, err
	}
	if totalSupply.IsZero() {
		return fixedpoint.Zero(), nil
	}
	return r.Liquidity.BorrowedAmount.Div(totalSupply)
}

// approximateCompoundedInterest implements spec §4.4's exact-small-powers /
// third-order-Taylor approximation to (1+per_slot)^elapsed.
func approximateCompoundedInterest(perSlot fixedpoint.F, elapsed uint64) (fixedpoint.F, error) {
	one := fixedpoint.FromU64(1)
	switch elapsed {
	case 0:
		return one, nil
	case 1:
		return one.Add(perSlot)
	case 2, 3, 4:
		base, err := one.Add(perSlot)
		if err != nil {
			return fixedpoint.F{}, err
		}
		result := one
		for i := uint64(0); i < elapsed; i++ {
			result, err = result.Mul(base)
			if err != nil {
				return fixedpoint.F{}, err
			}
		}
		return result, nil
	}

	e := elapsed
	eF := fixedpoint.FromU64(e)
	eMinus1 := fixedpoint.FromU64(e - 1)
	eMinus2 := fixedpoint.FromU64(e - 2)

	b := perSlot
	b2, err := b.Mul(b)
	if err != nil {
		return fixedpoint.F{}, err
	}

	term1, err := eF.Mul(b)
	if err != nil {
		return fixedpoint.F{}, err
	}

	eeMinus1, err := eF.Mul(eMinus1)
	if err != nil {
		return fixedpoint.F{}, err
	}
	two := fixedpoint.FromU64(2)
	term2Coeff, err := eeMinus1.Div(two)
	if err != nil {
		return fixedpoint.F{}, err
	}
	term2, err := term2Coeff.Mul(b2)
	if err != nil {
		return fixedpoint.F{}, err
	}

	// term3 = term2 * (e-2)*b / 3: folding b in here keeps the intermediate
	// below e^3, which overflows F once elapsed exceeds ~6.6 million slots.
	eMinus2B, err := eMinus2.Mul(b)
	if err != nil {
		return fixedpoint.F{}, err
	}
	three := fixedpoint.FromU64(3)
	term3, err := term2.Mul(eMinus2B)
	if err != nil {
		return fixedpoint.F{}, err
	}
	term3, err = term3.Div(three)
	if err != nil {
		return fixedpoint.F{}, err
	}

	sum, err := one.Add(term1)
	if err != nil {
		return fixedpoint.F{}, err
	}
	sum, err = sum.Add(term2)
	if err != nil {
		return fixedpoint.F{}, err
	}
	return sum.Add(term3)
}

// AccrueInterest applies spec §4.4's accrual formula and returns the
// updated reserve. The receiver is never mutated in place (spec §9: value
// types, no internal aliasing).
func (r Reserve) AccrueInterest(slot uint64) (Reserve, error) {
	if slot < r.LastUpdate.Slot {
		return Reserve{}, ErrNegativeElapsed
	}
	elapsed := slot - r.LastUpdate.Slot
	if elapsed == 0 {
		return r, nil
	}

	util, err := r.Utilization()
	if err != nil {
		return Reserve{}, err
	}
	rate, err := r.Config.BorrowRateCurve.GetBorrowRate(util)
	if err != nil {
		return Reserve{}, err
	}
	perSlot, err := rate.DivU64(SlotsPerYear)
	if err != nil {
		return Reserve{}, err
	}
	comp, err := approximateCompoundedInterest(perSlot, elapsed)
	if err != nil {
		return Reserve{}, err
	}

	newBorrowed, err := r.Liquidity.BorrowedAmount.Mul(comp)
	if err != nil {
		return Reserve{}, err
	}
	netNewDebt, err := newBorrowed.Sub(r.Liquidity.BorrowedAmount)
	if err != nil {
		return Reserve{}, err
	}
	takeRate := fixedpoint.FromPercent(r.Config.ProtocolTakeRatePct)
	protocolFee, err := netNewDebt.Mul(takeRate)
	if err != nil {
		return Reserve{}, err
	}
	newAccumulatedFees, err := r.Liquidity.AccumulatedProtocolFees.Add(protocolFee)
	if err != nil {
		return Reserve{}, err
	}
	newIndex, err := r.Liquidity.CumulativeBorrowIndex.Mul(comp.ToBF())
	if err != nil {
		return Reserve{}, err
	}

	next := r
	next.Liquidity.BorrowedAmount = newBorrowed
	next.Liquidity.AccumulatedProtocolFees = newAccumulatedFees
	next.Liquidity.CumulativeBorrowIndex = newIndex
	return next, nil
}

// markStale clears the price-status bits, the convention every mutating
// reserve op ends with (spec §4.4: "mark reserve stale").
func (r Reserve) markStale() Reserve {
	next := r
	next.LastUpdate.PriceStatusFlags = oracle.None
	return next
}

// MarkStale is the exported form of markStale, for engine-level operations
// (borrow, repay, liquidation) that mutate the reserve outside this package
// but must still clear its price-status bits afterward.
func (r Reserve) MarkStale() Reserve { return r.markStale() }

func (r Reserve) updateLimitCrossedStamps(nowSlot uint64) Reserve {
	next := r
	totalSupply, err := next.TotalSupply()
	if err == nil {
		if next.Config.DepositLimit > 0 {
			if ts, err := totalSupply.ToFloorU64(); err == nil && ts > next.Config.DepositLimit {
				if next.Liquidity.DepositLimitCrossedSlot == 0 {
					next.Liquidity.DepositLimitCrossedSlot = nowSlot
				}
			} else {
				next.Liquidity.DepositLimitCrossedSlot = 0
			}
		}
	}
	if next.Config.BorrowLimit > 0 {
		if bor, err := next.Liquidity.BorrowedAmount.ToFloorU64(); err == nil && bor > next.Config.BorrowLimit {
			if next.Liquidity.BorrowLimitCrossedSlot == 0 {
				next.Liquidity.BorrowLimitCrossedSlot = nowSlot
			}
		} else {
			next.Liquidity.BorrowLimitCrossedSlot = 0
		}
	}
	return next
}

// RefreshReserve implements spec §4.4's refresh_reserve: accrue interest,
// optionally overwrite the cached price, and refresh the limit-crossed
// stamps.
func (r Reserve) RefreshReserve(nowSlot uint64, nowTS uint64, price *oracle.PriceResult) (Reserve, error) {
	next, err := r.AccrueInterest(nowSlot)
	if err != nil {
		return Reserve{}, err
	}
	if price != nil {
		next.Liquidity.MarketPrice = price.Price
		next.Liquidity.MarketPriceLastUpdatedTS = uint64(price.TS)
		next.LastUpdate.PriceStatusFlags = price.Status
	} else {
		age := nowTS - next.Liquidity.MarketPriceLastUpdatedTS
		if next.Config.TokenInfo.Oracle.MaxAgePriceSeconds > 0 && age > next.Config.TokenInfo.Oracle.MaxAgePriceSeconds {
			next.LastUpdate.PriceStatusFlags = oracle.None
		}
	}
	next.LastUpdate.Slot = nowSlot
	next.LastUpdate.StampTS = nowTS
	next = next.updateLimitCrossedStamps(nowSlot)
	return next, nil
}

// DepositLiquidity implements spec §4.4's deposit_liquidity.
func (r Reserve) DepositLiquidity(amount uint64, nowSlot uint64) (Reserve, uint64, error) {
	if amount == 0 {
		return Reserve{}, 0, ErrInvalidAmount
	}
	if !r.LastUpdate.Fresh(nowSlot, oracle.None) {
		return Reserve{}, 0, ErrReserveStale
	}
	totalSupply, err := r.TotalSupply()
	if err != nil {
		return Reserve{}, 0, err
	}
	totalSupplyU64, err := totalSupply.ToFloorU64()
	if err != nil {
		return Reserve{}, 0, err
	}
	if r.Config.DepositLimit > 0 && amount+totalSupplyU64 > r.Config.DepositLimit {
		return Reserve{}, 0, ErrDepositLimitExceeded
	}

	rate, err := r.ExchangeRate()
	if err != nil {
		return Reserve{}, 0, err
	}
	cAmountF, err := rate.MulU64(amount)
	if err != nil {
		return Reserve{}, 0, err
	}
	cAmount, err := cAmountF.ToFloorU64()
	if err != nil {
		return Reserve{}, 0, err
	}

	next := r
	next.Liquidity.AvailableAmount += amount
	next.Collateral.MintTotalSupply += cAmount
	cap, err := next.Config.DepositWithdrawalCap.Sub(next.LastUpdate.StampTS, int64(amount))
	if err != nil {
		return Reserve{}, 0, err
	}
	next.Config.DepositWithdrawalCap = cap
	next = next.markStale()
	return next, cAmount, nil
}

// RedeemCollateral implements spec §4.4's redeem_collateral.
func (r Reserve) RedeemCollateral(cAmount uint64, addToCap bool, nowSlot uint64) (Reserve, uint64, error) {
	if cAmount == 0 {
		return Reserve{}, 0, ErrInvalidAmount
	}
	if r.LastUpdate.Slot != nowSlot {
		return Reserve{}, 0, ErrReserveStale
	}
	rate, err := r.ExchangeRate()
	if err != nil {
		return Reserve{}, 0, err
	}
	liqAmountF, err := fixedpoint.FromU64(cAmount).Div(rate)
	if err != nil {
		return Reserve{}, 0, err
	}
	liqAmount, err := liqAmountF.ToFloorU64()
	if err != nil {
		return Reserve{}, 0, err
	}
	if liqAmount > r.Liquidity.AvailableAmount {
		return Reserve{}, 0, ErrInsufficientLiquidity
	}

	next := r
	next.Collateral.MintTotalSupply -= cAmount
	next.Liquidity.AvailableAmount -= liqAmount
	next = next.updateLimitCrossedStamps(nowSlot)
	if addToCap {
		cap, err := next.Config.DepositWithdrawalCap.Add(next.LastUpdate.StampTS, int64(liqAmount))
		if err != nil {
			return Reserve{}, 0, err
		}
		next.Config.DepositWithdrawalCap = cap
	}
	next = next.markStale()
	return next, liqAmount, nil
}

// BorrowCalc is the result of CalculateBorrow (spec §4.4).
type BorrowCalc struct {
	BorrowAmountF fixedpoint.F
	ReceiveAmount uint64
	BorrowFee     uint64
}

// CalculateBorrow implements spec §4.4's calculate_borrow.
func (r Reserve) CalculateBorrow(amount uint64, maxBfDebtValue fixedpoint.F, remainingCap fixedpoint.F) (BorrowCalc, error) {
	decimalsScale := pow10(r.Liquidity.MintDecimals)
	borrowFactor, err := fixedpoint.FromU64(uint64(r.Config.BorrowFactorPct)).DivU64(100)
	if err != nil {
		return BorrowCalc{}, err
	}

	if amount == MaxU64 {
		numerator, err := maxBfDebtValue.MulU64(decimalsScale)
		if err != nil {
			return BorrowCalc{}, err
		}
		byPrice, err := numerator.Div(r.Liquidity.MarketPrice)
		if err != nil {
			return BorrowCalc{}, err
		}
		byBorrowFactor, err := byPrice.Div(borrowFactor)
		if err != nil {
			return BorrowCalc{}, err
		}
		avail := fixedpoint.FromU64(r.Liquidity.AvailableAmount)
		borrowAmountF := byBorrowFactor.Min(remainingCap).Min(avail)

		fee, err := r.Config.Fees.compute(borrowAmountF, FeeInclusive)
		if err != nil {
			return BorrowCalc{}, err
		}
		floor, err := borrowAmountF.ToFloorU64()
		if err != nil {
			return BorrowCalc{}, err
		}
		if fee > floor {
			return BorrowCalc{}, ErrBorrowFeeExceedsAmount
		}
		return BorrowCalc{BorrowAmountF: borrowAmountF, ReceiveAmount: floor - fee, BorrowFee: fee}, nil
	}

	fee, err := r.Config.Fees.compute(fixedpoint.FromU64(amount), FeeExclusive)
	if err != nil {
		return BorrowCalc{}, err
	}
	borrowAmountF := fixedpoint.FromU64(amount)
	borrowAmountF, err = borrowAmountF.Add(fixedpoint.FromU64(fee))
	if err != nil {
		return BorrowCalc{}, err
	}

	checkValue, err := borrowAmountF.Mul(r.Liquidity.MarketPrice)
	if err != nil {
		return BorrowCalc{}, err
	}
	checkValue, err = checkValue.Mul(borrowFactor)
	if err != nil {
		return BorrowCalc{}, err
	}
	checkValue, err = checkValue.DivU64(decimalsScale)
	if err != nil {
		return BorrowCalc{}, err
	}
	if checkValue.Cmp(maxBfDebtValue) > 0 {
		return BorrowCalc{}, ErrBorrowTooLarge
	}

	return BorrowCalc{BorrowAmountF: borrowAmountF, ReceiveAmount: amount, BorrowFee: fee}, nil
}

func pow10(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

// RepayCalc is the result of CalculateRepay (spec §4.4).
type RepayCalc struct {
	SettleF  fixedpoint.F
	RepayU64 uint64
}

// CalculateRepay implements spec §4.4's calculate_repay.
func CalculateRepay(amount uint64, borrowedF fixedpoint.F) (RepayCalc, error) {
	var settle fixedpoint.F
	if amount == MaxU64 {
		settle = borrowedF
	} else {
		amountF := fixedpoint.FromU64(amount)
		settle = amountF.Min(borrowedF)
	}
	repay, err := settle.ToCeilU64()
	if err != nil {
		return RepayCalc{}, err
	}
	return RepayCalc{SettleF: settle, RepayU64: repay}, nil
}

// Borrow implements spec §4.4's liquidity.borrow.
func (r Reserve) Borrow(borrowF fixedpoint.F) (Reserve, error) {
	floor, err := borrowF.ToFloorU64()
	if err != nil {
		return Reserve{}, err
	}
	if floor > r.Liquidity.AvailableAmount {
		return Reserve{}, ErrInsufficientLiquidity
	}
	next := r
	next.Liquidity.AvailableAmount -= floor
	newBorrowed, err := next.Liquidity.BorrowedAmount.Add(borrowF)
	if err != nil {
		return Reserve{}, err
	}
	next.Liquidity.BorrowedAmount = newBorrowed
	return next, nil
}

// Repay implements spec §4.4's liquidity.repay.
func (r Reserve) Repay(repayU64 uint64, settleF fixedpoint.F) Reserve {
	next := r
	next.Liquidity.AvailableAmount += repayU64
	clamped := next.Liquidity.BorrowedAmount.Min(settleF)
	next.Liquidity.BorrowedAmount = next.Liquidity.BorrowedAmount.SaturatingSub(clamped)
	return next
}

// CalculateRedeemFees implements spec §4.4's calculate_redeem_fees.
func (r Reserve) CalculateRedeemFees() (uint64, error) {
	feesFloor, err := r.Liquidity.AccumulatedProtocolFees.ToFloorU64()
	if err != nil {
		return 0, err
	}
	if r.Liquidity.AvailableAmount < feesFloor {
		return r.Liquidity.AvailableAmount, nil
	}
	return feesFloor, nil
}
