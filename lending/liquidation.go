package lending

import (
	"context"
	"log/slog"

	"lendcore/fixedpoint"
	"lendcore/market"
	"lendcore/obligation"
	"lendcore/observability/logging"
	"lendcore/oracle"
	"lendcore/reserve"
)

// LiquidationResult is the triple spec §4.8's liquidate_obligation returns.
type LiquidationResult struct {
	RepayAmount              uint64
	WithdrawCollateralAmount uint64
	WithdrawLiquidityAmount  uint64
	ProtocolFee              uint64
	BonusBps                 uint64
}

// LiquidateAndRedeem implements spec §4.8: repay debt on behalf of an
// unhealthy obligation, seize a bonus-adjusted amount of its collateral,
// and redeem the seized c-tokens back to the underlying liquidity.
func (e *Engine) LiquidateAndRedeem(
	ctx context.Context,
	tx *TxContext,
	obligationID obligation.ID,
	liquidator [32]byte,
	repayReserveID, withdrawReserveID reserve.ID,
	liquidityAmount uint64,
	minAcceptableReceivedCollateral uint64,
	m market.Market,
	nowSlot uint64,
) (result LiquidationResult, err error) {
	defer func() {
		e.observe("liquidate_and_redeem", err)
		if err == nil {
			e.metrics.ObserveLiquidation("success")
		} else {
			e.metrics.ObserveLiquidation("failure")
		}
	}()
	if liquidityAmount == 0 {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}
	if err = tx.requireRefreshSequence(repayReserveID, withdrawReserveID); err != nil {
		return LiquidationResult{}, err
	}

	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return LiquidationResult{}, err
	}
	repayReserve, err := e.mustReserve(ctx, repayReserveID)
	if err != nil {
		return LiquidationResult{}, err
	}
	withdrawReserve, err := e.mustReserve(ctx, withdrawReserveID)
	if err != nil {
		return LiquidationResult{}, err
	}
	if err = e.requirePriceStatus(repayReserve, nowSlot, oracle.LiquidationChecks); err != nil {
		return LiquidationResult{}, err
	}
	if err = e.requirePriceStatus(withdrawReserve, nowSlot, oracle.LiquidationChecks); err != nil {
		return LiquidationResult{}, err
	}
	if withdrawReserve.Config.LoanToValuePct == 0 && withdrawReserve.Config.LiquidationThresholdPct == 0 {
		return LiquidationResult{}, ErrCollateralNonLiquidatable
	}
	if o.DepositedValue.IsZero() || o.BorrowFactorAdjustedDebtValue.IsZero() {
		return LiquidationResult{}, ErrObligationNotLiquidatable
	}

	ltv, err := o.LoanToValue()
	if err != nil {
		return LiquidationResult{}, err
	}
	unhealthy, err := o.UnhealthyLoanToValue()
	if err != nil {
		return LiquidationResult{}, err
	}
	if ltv.Cmp(unhealthy) <= 0 {
		return LiquidationResult{}, ErrObligationNotLiquidatable
	}

	borrowIdx, err := o.FindLiquidity(repayReserveID)
	if err != nil {
		return LiquidationResult{}, err
	}
	depositIdx, err := o.FindCollateral(withdrawReserveID)
	if err != nil {
		return LiquidationResult{}, err
	}

	bonusFraction := liquidationBonusBps(withdrawReserve.Config, ltv, unhealthy)

	originalBorrowed := o.Borrows[borrowIdx].BorrowedAmount
	borrowMarketValue := o.Borrows[borrowIdx].MarketValue
	depositMarketVal := o.Deposits[depositIdx].MarketValue
	depositedAmount := o.Deposits[depositIdx].DepositedAmount

	borrowValueFloor, err := borrowMarketValue.ToFloorU64()
	if err != nil {
		return LiquidationResult{}, err
	}
	repayAmount := liquidityAmount
	var maxRepayU64 uint64
	if borrowValueFloor <= m.MinFullLiquidationValueThreshold {
		maxRepayU64, err = originalBorrowed.ToCeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
	} else {
		maxRepayU64, err = closeFactorAmount(originalBorrowed, m.LiquidationMaxDebtCloseFactorPct)
		if err != nil {
			return LiquidationResult{}, err
		}
	}
	if repayAmount == reserve.MaxU64 || repayAmount > maxRepayU64 {
		repayAmount = maxRepayU64
	}
	if repayAmount == 0 {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}

	calc, err := reserve.CalculateRepay(repayAmount, originalBorrowed)
	if err != nil {
		return LiquidationResult{}, err
	}

	// Value repaid scales by the fraction of the borrow settled, then the
	// liquidator's bonus is applied on top (spec §4.8's calculate_liquidation).
	fractionRepaid, err := calc.SettleF.Div(originalBorrowed)
	if err != nil {
		return LiquidationResult{}, err
	}
	valueRepaid, err := fractionRepaid.Mul(borrowMarketValue)
	if err != nil {
		return LiquidationResult{}, err
	}
	onePlusBonus, err := fixedpoint.FromU64(1).Add(bonusFraction)
	if err != nil {
		return LiquidationResult{}, err
	}
	withdrawCollateralValue, err := valueRepaid.Mul(onePlusBonus)
	if err != nil {
		return LiquidationResult{}, err
	}
	if depositMarketVal.IsZero() {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}
	withdrawRatio, err := withdrawCollateralValue.Div(depositMarketVal)
	if err != nil {
		return LiquidationResult{}, err
	}
	withdrawCollateralF, err := withdrawRatio.MulU64(depositedAmount)
	if err != nil {
		return LiquidationResult{}, err
	}
	withdrawCollateralAmount, err := withdrawCollateralF.ToFloorU64()
	if err != nil {
		return LiquidationResult{}, err
	}
	if withdrawCollateralAmount > o.Deposits[depositIdx].DepositedAmount {
		withdrawCollateralAmount = o.Deposits[depositIdx].DepositedAmount
	}
	if withdrawCollateralAmount == 0 {
		return LiquidationResult{}, ErrLiquidationTooSmall
	}

	nextRepayReserve := repayReserve.Repay(calc.RepayU64, calc.SettleF)
	nextRepayReserve = nextRepayReserve.MarkStale()

	next := o
	next.Borrows[borrowIdx].BorrowedAmount, err = next.Borrows[borrowIdx].BorrowedAmount.Sub(calc.SettleF)
	if err != nil {
		return LiquidationResult{}, err
	}
	next.Deposits[depositIdx].DepositedAmount -= withdrawCollateralAmount
	next = next.RecomputeHasDebt()

	nextWithdrawReserve, err := withdrawReserve.AccrueInterest(nowSlot)
	if err != nil {
		return LiquidationResult{}, err
	}
	redeemed, withdrawLiquidityAmount, err := nextWithdrawReserve.RedeemCollateral(withdrawCollateralAmount, false, nowSlot)
	if err != nil {
		return LiquidationResult{}, err
	}
	nextWithdrawReserve = redeemed

	protocolFee, err := protocolLiquidationFee(withdrawLiquidityAmount, bonusFraction, nextWithdrawReserve.Config.ProtocolLiquidationFeePct)
	if err != nil {
		return LiquidationResult{}, err
	}
	netToLiquidator := withdrawLiquidityAmount - protocolFee
	if netToLiquidator < minAcceptableReceivedCollateral {
		return LiquidationResult{}, ErrLiquidationSlippage
	}

	// RedeemCollateral already pulled the full withdrawLiquidityAmount out of
	// AvailableAmount; only netToLiquidator leaves the vault, so the
	// protocolFee share stays behind and is credited back the same way a
	// flash-loan fee is (spec §4.8 step 3).
	if protocolFee > 0 {
		nextWithdrawReserve.Liquidity.AvailableAmount += protocolFee
		newFees, ferr := nextWithdrawReserve.Liquidity.AccumulatedProtocolFees.Add(fixedpoint.FromU64(protocolFee))
		if ferr != nil {
			return LiquidationResult{}, ferr
		}
		nextWithdrawReserve.Liquidity.AccumulatedProtocolFees = newFees
	}

	if e.tokens != nil {
		if err = e.tokens.TransferToVault(ctx, nextRepayReserve.Liquidity.MintID, liquidator, calc.RepayU64); err != nil {
			return LiquidationResult{}, err
		}
		if err = e.tokens.TransferFromVault(ctx, nextWithdrawReserve.Liquidity.MintID, liquidator, netToLiquidator); err != nil {
			return LiquidationResult{}, err
		}
		if err = e.reconcile(ctx, nextRepayReserve); err != nil {
			return LiquidationResult{}, err
		}
		if repayReserveID != withdrawReserveID {
			if err = e.reconcile(ctx, nextWithdrawReserve); err != nil {
				return LiquidationResult{}, err
			}
		}
	}

	if err = e.store.PutReserve(ctx, repayReserveID, nextRepayReserve); err != nil {
		return LiquidationResult{}, err
	}
	if err = e.store.PutReserve(ctx, withdrawReserveID, nextWithdrawReserve); err != nil {
		return LiquidationResult{}, err
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return LiquidationResult{}, err
	}

	bonusBpsU64, err := bonusFraction.MulU64(10_000)
	if err != nil {
		return LiquidationResult{}, err
	}
	bonusBpsReported, err := bonusBpsU64.ToRoundU64()
	if err != nil {
		return LiquidationResult{}, err
	}
	e.metrics.SetLiquidationBonusBps(idLabel(withdrawReserveID), float64(bonusBpsReported))
	e.logger.Info("liquidated obligation",
		logging.ObligationAttr(obligationID),
		logging.ReserveAttr(repayReserveID),
		slog.Uint64("repay_amount", calc.RepayU64),
		slog.Uint64("withdraw_collateral_amount", withdrawCollateralAmount),
	)

	return LiquidationResult{
		RepayAmount:              calc.RepayU64,
		WithdrawCollateralAmount: withdrawCollateralAmount,
		WithdrawLiquidityAmount:  netToLiquidator,
		ProtocolFee:              protocolFee,
		BonusBps:                 bonusBpsReported,
	}, nil
}

// liquidationBonusBps linearly interpolates between the reserve's minimum
// and maximum liquidation bonus as loan-to-value climbs above its unhealthy
// threshold (spec §4.8).
func liquidationBonusBps(cfg reserve.Config, ltv, unhealthy fixedpoint.F) fixedpoint.F {
	minBonus := fixedpoint.FromBps(cfg.MinLiquidationBonusBps)
	maxBonus := fixedpoint.FromBps(cfg.MaxLiquidationBonusBps)
	if ltv.Cmp(unhealthy) <= 0 {
		return minBonus
	}
	excess := ltv.SaturatingSub(unhealthy)
	span := maxBonus.SaturatingSub(minBonus)
	scaled, err := excess.Mul(span)
	if err != nil {
		return minBonus
	}
	scaled, err = scaled.Div(unhealthy)
	if err != nil {
		return minBonus
	}
	bonus, err := minBonus.Add(scaled)
	if err != nil {
		return minBonus
	}
	return bonus.Min(maxBonus)
}

// closeFactorAmount bounds the repayable amount to the market's close
// factor share of the borrow's outstanding balance (spec §4.8); debts under
// min_full_liquidation_value_threshold bypass this cap entirely and are
// handled by the caller before this is reached.
func closeFactorAmount(borrowed fixedpoint.F, closeFactorPct uint8) (uint64, error) {
	scaled, err := borrowed.Mul(fixedpoint.FromPercent(closeFactorPct))
	if err != nil {
		return 0, err
	}
	return scaled.ToCeilU64()
}

// protocolLiquidationFee takes protocolFeePct of the bonus portion of the
// liquidator's proceeds (spec §4.8 step 3): the bonus share of the withdrawn
// amount is bonusFraction / (1 + bonusFraction) of the total.
func protocolLiquidationFee(withdrawLiquidityAmount uint64, bonusFraction fixedpoint.F, protocolFeePct uint8) (uint64, error) {
	onePlusBonus, err := fixedpoint.FromU64(1).Add(bonusFraction)
	if err != nil {
		return 0, err
	}
	bonusShareOfTotal, err := bonusFraction.Div(onePlusBonus)
	if err != nil {
		return 0, err
	}
	bonusAmount, err := bonusShareOfTotal.MulU64(withdrawLiquidityAmount)
	if err != nil {
		return 0, err
	}
	fee, err := bonusAmount.Mul(fixedpoint.FromPercent(protocolFeePct))
	if err != nil {
		return 0, err
	}
	return fee.ToFloorU64()
}
