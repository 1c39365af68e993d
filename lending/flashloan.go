package lending

import (
	"context"
	"log/slog"

	"lendcore/fixedpoint"
	"lendcore/observability/logging"
	"lendcore/reserve"
)

// FlashBorrow implements spec §4.9's flash_borrow_reserve_liquidity: moves
// liquidity out of the reserve vault with no collateral pledge, to be paired
// with a FlashRepay later in the same transaction. Rejects a second
// concurrent flash borrow (ErrMultipleFlashBorrows) and reserves whose flash
// fee is disabled (ErrFlashLoansDisabledHere). A borrow recorded here is not
// yet proven safe: only tx.Finalize (via FinalizeTransaction), called once
// at the end of the transaction, confirms every flash borrow found its
// matching repay.
func (e *Engine) FlashBorrow(ctx context.Context, tx *TxContext, reserveID reserve.ID, borrower [32]byte, amount uint64) (err error) {
	defer func() { e.observe("flash_borrow_reserve_liquidity", err) }()
	if amount == 0 {
		return ErrInvalidAmount
	}
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return err
	}
	if r.Config.Fees.FlashLoansDisabled() {
		return ErrFlashLoansDisabledHere
	}
	if amount > r.Liquidity.AvailableAmount {
		return reserve.ErrInsufficientLiquidity
	}
	if err = tx.recordFlashBorrow(reserveID, amount); err != nil {
		return err
	}

	next := r
	next.Liquidity.AvailableAmount -= amount

	if e.tokens != nil {
		if err = e.tokens.TransferFromVault(ctx, r.Liquidity.MintID, borrower, amount); err != nil {
			return err
		}
		if err = e.reconcile(ctx, next); err != nil {
			return err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, next); err != nil {
		return err
	}
	e.logger.Info("flash borrowed", logging.ReserveAttr(reserveID), slog.Uint64("amount", amount))
	return nil
}

// FlashRepay implements spec §4.9's flash_repay_reserve_liquidity: returns
// the borrowed liquidity plus the reserve's flash-loan fee, and pairs
// against its matching FlashBorrow via the shared TxContext (ErrInvalidFlashRepay,
// ErrNoFlashRepayFound).
func (e *Engine) FlashRepay(ctx context.Context, tx *TxContext, reserveID reserve.ID, repayer [32]byte, amount uint64) (err error) {
	defer func() { e.observe("flash_repay_reserve_liquidity", err) }()
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err = tx.matchFlashRepay(reserveID, amount); err != nil {
		return err
	}
	r, err := e.mustReserve(ctx, reserveID)
	if err != nil {
		return err
	}

	fee, err := flashLoanFee(r.Config.Fees, amount)
	if err != nil {
		return err
	}

	next := r
	next.Liquidity.AvailableAmount += amount + fee
	newFees, err := next.Liquidity.AccumulatedProtocolFees.Add(fixedpoint.FromU64(fee))
	if err != nil {
		return err
	}
	next.Liquidity.AccumulatedProtocolFees = newFees

	if e.tokens != nil {
		if err = e.tokens.TransferToVault(ctx, r.Liquidity.MintID, repayer, amount+fee); err != nil {
			return err
		}
		if err = e.reconcile(ctx, next); err != nil {
			return err
		}
	}
	if err = e.store.PutReserve(ctx, reserveID, next); err != nil {
		return err
	}
	e.metrics.ObserveFlashLoan(idLabel(reserveID))
	e.logger.Info("flash repaid", logging.ReserveAttr(reserveID), slog.Uint64("amount", amount), slog.Uint64("fee", fee))
	return nil
}

// FinalizeTransaction closes out tx at the end of an atomic batch (spec
// §4.9/§5): a lone FlashBorrow with no paired FlashRepay would otherwise
// drain the vault and never surface an error, since FlashBorrow itself has
// no way to know whether a repay is still coming later in the same
// transaction. The host runtime must call this once after replaying every
// instruction in a transaction that touched flash loans.
func (e *Engine) FinalizeTransaction(tx *TxContext) (err error) {
	defer func() { e.observe("finalize_transaction", err) }()
	return tx.Finalize()
}

// flashLoanFee applies the reserve's flash-loan fee scaling factor
// Exclusive, following the same ceil-with-minimum-one shape as the borrow
// fee (spec §4.9: "Protocol fee = amount × flash_loan_fee_rate (Exclusive)").
func flashLoanFee(fees reserve.Fees, amount uint64) (uint64, error) {
	if fees.FlashLoanFeeSF == 0 || amount == 0 {
		return 0, nil
	}
	rate := fixedpoint.FromBits(fees.FlashLoanFeeSF)
	raw, err := fixedpoint.FromU64(amount).Mul(rate)
	if err != nil {
		return 0, err
	}
	fee, err := raw.ToCeilU64()
	if err != nil {
		return 0, err
	}
	if fee == 0 {
		fee = 1
	}
	return fee, nil
}
