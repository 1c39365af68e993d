package lending

import (
	"context"
	"log/slog"
	"math"

	"lendcore/fixedpoint"
	"lendcore/market"
	"lendcore/obligation"
	"lendcore/observability/logging"
	"lendcore/oracle"
	"lendcore/reserve"
)

// DepositLiquidity implements spec §4.4/§6's deposit_reserve_liquidity:
// the supplier's tokens move into the reserve vault and they receive
// freshly minted c-tokens in return. Never guarded by emergency mode
// (suppliers adding liquidity cannot worsen risk).
func (e *Engine) DepositLiquidity(ctx context.Context, reserveID reserve.ID, supplier [32]byte, amount uint64, nowSlot uint64) (minted uint64, err error) {
	defer func() { e.observe("deposit_reserve_liquidity", err) }()
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	next, cAmount, err := r.DepositLiquidity(amount, nowSlot)
	if err != nil {
		return 0, err
	}
	if e.tokens != nil {
		if err = e.tokens.TransferToVault(ctx, r.Liquidity.MintID, supplier, amount); err != nil {
			return 0, err
		}
		if err = e.tokens.MintCollateral(ctx, reserveID, supplier, cAmount); err != nil {
			return 0, err
		}
		if err = e.reconcile(ctx, next); err != nil {
			return 0, err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, next); err != nil {
		return 0, err
	}
	e.logger.Info("deposited liquidity", logging.ReserveAttr(reserveID), slog.Uint64("amount", amount))
	return cAmount, nil
}

// RedeemCollateral implements redeem_reserve_collateral: burns c-tokens and
// releases the underlying liquidity.
func (e *Engine) RedeemCollateral(ctx context.Context, reserveID reserve.ID, owner [32]byte, cAmount uint64, nowSlot uint64) (released uint64, err error) {
	defer func() { e.observe("redeem_reserve_collateral", err) }()
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	next, liqAmount, err := r.RedeemCollateral(cAmount, false, nowSlot)
	if err != nil {
		return 0, err
	}
	if e.tokens != nil {
		if err = e.tokens.BurnCollateral(ctx, reserveID, owner, cAmount); err != nil {
			return 0, err
		}
		if err = e.tokens.TransferFromVault(ctx, next.Liquidity.MintID, owner, liqAmount); err != nil {
			return 0, err
		}
		if err = e.reconcile(ctx, next); err != nil {
			return 0, err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, next); err != nil {
		return 0, err
	}
	e.logger.Info("redeemed collateral", logging.ReserveAttr(reserveID), slog.Uint64("c_amount", cAmount))
	return liqAmount, nil
}

// DepositObligationCollateral locks c-tokens the owner already holds into
// their obligation's deposit slot (spec §6's deposit_obligation_collateral).
// Checked against the net-value floor and the worse-LTV block (loan_to_value
// may not increase past its pre-op value) even though a pure deposit should
// never trip either in practice.
func (e *Engine) DepositObligationCollateral(ctx context.Context, m market.Market, obligationID obligation.ID, owner [32]byte, reserveID reserve.ID, cAmount uint64, nowSlot uint64) (err error) {
	defer func() { e.observe("deposit_obligation_collateral", err) }()
	if cAmount == 0 {
		return ErrInvalidAmount
	}
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return err
	}
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return err
	}
	var preLTV fixedpoint.F
	if !o.BorrowsEmpty() {
		if preLTV, err = o.LoanToValue(); err != nil {
			return err
		}
	}

	next, idx, err := o.FindOrAddCollateral(reserveID, r.Config.AssetTier)
	if err != nil {
		return err
	}
	next.Deposits[idx].DepositedAmount += cAmount
	if err = next.ValidateAssetTiers(); err != nil {
		return err
	}
	touchedValue, err := depositMarketValue(r, next.Deposits[idx].DepositedAmount)
	if err != nil {
		return err
	}
	if !touchedValue.IsZero() && touchedValue.Cmp(m.MinNetValueInObligation) < 0 {
		return ErrNetValueRemainingTooSmall
	}
	if !next.BorrowsEmpty() {
		postLTV, lerr := next.LoanToValue()
		if lerr != nil {
			return lerr
		}
		if postLTV.Cmp(preLTV) > 0 {
			return ErrWorseLTVBlocked
		}
	}
	if e.tokens != nil {
		if err = e.tokens.TransferToVault(ctx, reserveID, owner, cAmount); err != nil {
			return err
		}
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return err
	}
	e.logger.Info("deposited obligation collateral", logging.ObligationAttr(obligationID), logging.ReserveAttr(reserveID))
	return nil
}

// WithdrawObligationCollateral implements withdraw_obligation_collateral
// (spec §4.7): requires a fresh refresh sequence whenever outstanding debt
// makes the withdrawal health-sensitive.
func (e *Engine) WithdrawObligationCollateral(ctx context.Context, tx *TxContext, m market.Market, obligationID obligation.ID, owner [32]byte, reserveID reserve.ID, cAmount uint64, nowSlot uint64) (withdrawn uint64, err error) {
	defer func() { e.observe("withdraw_obligation_collateral", err) }()
	if err = m.Guard(true); err != nil {
		return 0, err
	}
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return 0, err
	}
	idx, err := o.FindCollateral(reserveID)
	if err != nil {
		return 0, err
	}
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	if !o.BorrowsEmpty() {
		if err = tx.requireRefreshSequence(reserveID); err != nil {
			return 0, err
		}
		if err = e.requirePriceStatus(r, nowSlot, oracle.AllChecks); err != nil {
			return 0, err
		}
		if o.NumOfObsoleteReserves > 0 && r.Config.Status == reserve.StatusActive {
			return 0, ErrObligationInDeprecatedReserve
		}
	}

	slot := o.Deposits[idx]
	next := o
	if o.BorrowsEmpty() {
		if cAmount == reserve.MaxU64 || cAmount >= slot.DepositedAmount {
			withdrawn = slot.DepositedAmount
		} else {
			withdrawn = cAmount
		}
	} else {
		maxValue, merr := o.MaxWithdrawValue(o.LowestReserveDepositLTV)
		if merr != nil {
			return 0, merr
		}
		if cAmount == reserve.MaxU64 {
			ratioNum := maxValue.Min(slot.MarketValue)
			ratio, rerr := ratioNum.Div(slot.MarketValue)
			if rerr != nil {
				return 0, rerr
			}
			scaled, serr := ratio.MulU64(slot.DepositedAmount)
			if serr != nil {
				return 0, serr
			}
			withdrawn, err = scaled.ToFloorU64()
			if err != nil {
				return 0, err
			}
		} else {
			withdrawValue, werr := fixedpoint.FromU64(cAmount).Div(fixedpoint.FromU64(slot.DepositedAmount))
			if werr != nil {
				return 0, werr
			}
			withdrawValue, werr = withdrawValue.Mul(slot.MarketValue)
			if werr != nil {
				return 0, werr
			}
			if withdrawValue.Cmp(maxValue) > 0 {
				return 0, ErrWorseLTVBlocked
			}
			withdrawn = cAmount
		}
	}
	next.Deposits[idx].DepositedAmount -= withdrawn

	touchedValue, err := depositMarketValue(r, next.Deposits[idx].DepositedAmount)
	if err != nil {
		return 0, err
	}
	if !touchedValue.IsZero() && touchedValue.Cmp(m.MinNetValueInObligation) < 0 {
		return 0, ErrNetValueRemainingTooSmall
	}

	if !next.BorrowsEmpty() {
		postLTV, lerr := next.LoanToValue()
		if lerr != nil {
			return 0, lerr
		}
		unhealthy, uerr := next.UnhealthyLoanToValue()
		if uerr != nil {
			return 0, uerr
		}
		if postLTV.Cmp(unhealthy) > 0 {
			return 0, ErrWorseLTVBlocked
		}
		if next.BorrowedAssetsMarketValue.Cmp(next.DepositedValue) >= 0 {
			return 0, ErrLiabilitiesBiggerThanAssets
		}
	}

	if e.tokens != nil {
		if err = e.tokens.TransferFromVault(ctx, reserveID, owner, withdrawn); err != nil {
			return 0, err
		}
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return 0, err
	}
	e.logger.Info("withdrew obligation collateral", logging.ObligationAttr(obligationID), slog.Uint64("amount", withdrawn))
	return withdrawn, nil
}

// Borrow implements borrow_obligation_liquidity (spec §4.7): requires a
// fresh refresh sequence, the market not to be in emergency mode or
// borrow-disabled, and the resulting position to stay healthy.
func (e *Engine) Borrow(ctx context.Context, tx *TxContext, m market.Market, obligationID obligation.ID, borrower [32]byte, reserveID reserve.ID, amount uint64, nowSlot uint64) (received uint64, err error) {
	defer func() { e.observe("borrow_obligation_liquidity", err) }()
	if err = m.GuardBorrow(); err != nil {
		return 0, err
	}
	if err = tx.requireRefreshSequence(reserveID); err != nil {
		return 0, err
	}

	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	if err = e.requirePriceStatus(r, nowSlot, oracle.AllChecks); err != nil {
		return 0, err
	}
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return 0, err
	}

	next, idx, err := o.FindOrAddLiquidity(reserveID, r.Liquidity.CumulativeBorrowIndex, r.Config.AssetTier)
	if err != nil {
		return 0, err
	}

	remaining := next.RemainingBorrowValue()
	cap, err := r.Config.DebtWithdrawalCap.Add(nowSlot, 0)
	if err != nil {
		return 0, err
	}
	// A Capacity of zero means the debt cap is disabled (withdrawalcap's
	// documented convention); remainingCap must read as unbounded rather
	// than the zero (or, once CurrentTotal > 0, underflowed) result of
	// subtracting against a cap that was never meant to constrain anything.
	remainingCap := fixedpoint.FromU64(math.MaxUint64)
	if cap.Capacity != 0 {
		remainingCap = fixedpoint.FromU64(uint64(cap.Capacity - cap.CurrentTotal))
	}

	calc, err := r.CalculateBorrow(amount, remaining, remainingCap)
	if err != nil {
		return 0, err
	}
	if calc.ReceiveAmount == 0 {
		return 0, reserve.ErrBorrowTooSmall
	}

	nextReserve, err := r.Borrow(calc.BorrowAmountF)
	if err != nil {
		return 0, err
	}
	if amount != reserve.MaxU64 {
		newTotal, terr := nextReserve.Liquidity.BorrowedAmount.ToFloorU64()
		if terr != nil {
			return 0, terr
		}
		if nextReserve.Config.BorrowLimit > 0 && newTotal > nextReserve.Config.BorrowLimit {
			return 0, reserve.ErrBorrowLimitExceeded
		}
	}
	debtCap, err := nextReserve.Config.DebtWithdrawalCap.Add(nowSlot, int64(calc.ReceiveAmount))
	if err != nil {
		return 0, err
	}
	nextReserve.Config.DebtWithdrawalCap = debtCap
	nextReserve = nextReserve.MarkStale()

	next.Borrows[idx].BorrowedAmount, err = next.Borrows[idx].BorrowedAmount.Add(calc.BorrowAmountF)
	if err != nil {
		return 0, err
	}
	next = next.RecomputeHasDebt()
	if err = next.ValidateAssetTiers(); err != nil {
		return 0, err
	}

	touchedValue, err := borrowMarketValueForSlot(r, next.Borrows[idx].BorrowedAmount)
	if err != nil {
		return 0, err
	}
	if !touchedValue.IsZero() && touchedValue.Cmp(m.MinNetValueInObligation) < 0 {
		return 0, ErrNetValueRemainingTooSmall
	}
	// The health gate itself already ran above: CalculateBorrow bounded
	// this borrow by remaining (allowed_borrow_value - bf_debt) and
	// remainingCap, so the resulting position cannot exceed what the
	// obligation's last refresh priced it able to carry. A post-mutation
	// LoanToValue()/UnhealthyLoanToValue() recheck here would read
	// DepositedValue/BorrowFactorAdjustedDebtValue, neither of which this
	// op touches, and so would only ever compare the pre-borrow ratio
	// against itself.

	if e.tokens != nil {
		if err = e.tokens.TransferFromVault(ctx, nextReserve.Liquidity.MintID, borrower, calc.ReceiveAmount); err != nil {
			return 0, err
		}
		if err = e.reconcile(ctx, nextReserve); err != nil {
			return 0, err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, nextReserve); err != nil {
		return 0, err
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return 0, err
	}
	e.logger.Info("borrowed", logging.ObligationAttr(obligationID), logging.ReserveAttr(reserveID), slog.Uint64("amount", calc.ReceiveAmount))
	return calc.ReceiveAmount, nil
}

// Repay implements repay_obligation_liquidity (spec §4.5/§4.7): never
// guarded by emergency mode (repaying can only improve health) and never
// requires a refresh sequence since it does not depend on price. Still
// checked against the net-value floor, since repaying down to a dust
// remainder is as much a violation as leaving one from a borrow.
func (e *Engine) Repay(ctx context.Context, m market.Market, obligationID obligation.ID, payer [32]byte, reserveID reserve.ID, amount uint64, nowSlot uint64) (settled uint64, err error) {
	defer func() { e.observe("repay_obligation_liquidity", err) }()
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return 0, err
	}
	idx, err := o.FindLiquidity(reserveID)
	if err != nil {
		return 0, err
	}
	if o.Borrows[idx].BorrowedAmount.IsZero() {
		return 0, obligation.ErrObligationLiquidityEmpty
	}

	calc, err := reserve.CalculateRepay(amount, o.Borrows[idx].BorrowedAmount)
	if err != nil {
		return 0, err
	}

	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	nextReserve := r.Repay(calc.RepayU64, calc.SettleF).MarkStale()
	cap, err := nextReserve.Config.DebtWithdrawalCap.Sub(nowSlot, int64(calc.RepayU64))
	if err != nil {
		return 0, err
	}
	nextReserve.Config.DebtWithdrawalCap = cap

	next := o
	next.Borrows[idx].BorrowedAmount, err = next.Borrows[idx].BorrowedAmount.Sub(calc.SettleF)
	if err != nil {
		return 0, err
	}
	next = next.RecomputeHasDebt()

	touchedValue, err := borrowMarketValueForSlot(r, next.Borrows[idx].BorrowedAmount)
	if err != nil {
		return 0, err
	}
	if !touchedValue.IsZero() && touchedValue.Cmp(m.MinNetValueInObligation) < 0 {
		return 0, ErrNetValueRemainingTooSmall
	}
	// Repaying only ever reduces BorrowedAmount, so it can only improve
	// loan-to-value; no post-mutation health recheck is needed (and
	// LoanToValue()'s DepositedValue/BorrowFactorAdjustedDebtValue inputs
	// are untouched by this op regardless, so one would be comparing the
	// pre-repay ratio against itself).

	if e.tokens != nil {
		if err = e.tokens.TransferToVault(ctx, nextReserve.Liquidity.MintID, payer, calc.RepayU64); err != nil {
			return 0, err
		}
		if err = e.reconcile(ctx, nextReserve); err != nil {
			return 0, err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, nextReserve); err != nil {
		return 0, err
	}
	if err = e.store.PutObligation(ctx, obligationID, next); err != nil {
		return 0, err
	}
	e.logger.Info("repaid", logging.ObligationAttr(obligationID), logging.ReserveAttr(reserveID), slog.Uint64("amount", calc.RepayU64))
	return calc.RepayU64, nil
}

func (e *Engine) mustReserve(ctx context.Context, reserveID reserve.ID) (reserve.Reserve, error) {
	if e.store == nil {
		return reserve.Reserve{}, ErrNilStore
	}
	return e.store.GetReserve(ctx, reserveID)
}

