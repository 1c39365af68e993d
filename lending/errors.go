package lending

import "errors"

// Error taxonomy for the engine, named after spec §7's error kinds and
// following the "lending: <condition>" naming convention of
// services/lending/engine/errors.go.
var (
	ErrNilStore      = errors.New("lending: store not configured")
	ErrInvalidAmount = errors.New("lending: amount must be positive")

	ErrIncorrectInstructionInPosition = errors.New("lending: refresh-sequence missing or out of order")
	ErrGlobalEmergencyMode            = errors.New("lending: market is in emergency mode")

	ErrWorseLTVBlocked              = errors.New("lending: operation would increase loan-to-value")
	ErrLiabilitiesBiggerThanAssets  = errors.New("lending: borrowed value would reach or exceed deposited value")
	ErrNetValueRemainingTooSmall    = errors.New("lending: remaining position value below the minimum floor")
	ErrObligationInDeprecatedReserve = errors.New("lending: obligation holds a deposit in an obsolete reserve")

	ErrObligationNotLiquidatable  = errors.New("lending: obligation is not eligible for liquidation")
	ErrCollateralNonLiquidatable  = errors.New("lending: withdraw reserve has no configured LTV/threshold")
	ErrLiquidationTooSmall        = errors.New("lending: liquidation repay or withdraw amount is zero")
	ErrLiquidationSlippage        = errors.New("lending: received collateral below the minimum acceptable amount")

	ErrFlashLoansDisabledHere  = errors.New("lending: flash loans disabled for this reserve")
	ErrMultipleFlashBorrows    = errors.New("lending: multiple flash borrows in one transaction")
	ErrNoFlashRepayFound       = errors.New("lending: no matching flash repay in this transaction")
	ErrInvalidFlashRepay       = errors.New("lending: flash repay does not match its paired borrow")

	ErrReserveVaultBalanceMismatch = errors.New("lending: vault balance drifted from accounting during reconciliation")

	ErrNotOwner = errors.New("lending: caller is not the market owner")

	ErrPriceNotValid        = errors.New("lending: reserve price status does not satisfy the required checks for this slot")
	ErrAlreadyInitialized   = errors.New("lending: record already initialized")
	ErrInvalidObligationTag = errors.New("lending: obligation tag must be 0, 1, or 2")
)
