package reserve

import "errors"

// Error taxonomy for the reserve component (spec §7's liquidity/bounds/
// limits/policy categories, scoped to reserve-level operations).
var (
	ErrInvalidAmount          = errors.New("reserve: amount must be non-zero")
	ErrReserveStale           = errors.New("reserve: not fresh for this slot")
	ErrNegativeElapsed        = errors.New("reserve: slot moved backwards")
	ErrDepositLimitExceeded   = errors.New("reserve: deposit limit exceeded")
	ErrBorrowLimitExceeded    = errors.New("reserve: borrow limit exceeded")
	ErrInsufficientLiquidity  = errors.New("reserve: insufficient liquidity")
	ErrBorrowTooLarge         = errors.New("reserve: borrow exceeds max debt value")
	ErrBorrowTooSmall         = errors.New("reserve: borrow amount too small")
	ErrBorrowFeeExceedsAmount = errors.New("reserve: borrow fee exceeds amount")
	ErrFlashLoansDisabled     = errors.New("reserve: flash loans disabled for this reserve")

	ErrLoanToValueInvalid        = errors.New("reserve: loan_to_value_pct must be < 100")
	ErrLiquidationThresholdLow   = errors.New("reserve: liquidation_threshold_pct must be >= loan_to_value_pct")
	ErrBorrowFactorInvalid       = errors.New("reserve: borrow_factor_pct must be >= 100")
	ErrLiquidationBonusInvalid   = errors.New("reserve: max_liquidation_bonus_bps must be <= 10_000")
	ErrLiquidationBonusOrder     = errors.New("reserve: min_liquidation_bonus_bps must be <= max")
	ErrIsolatedDebtConfigInvalid = errors.New("reserve: isolated-debt reserve must have ltv and threshold of 0")
	ErrIsolatedCollatConfigBad   = errors.New("reserve: isolated-collateral reserve must have borrow_limit 0")
)
