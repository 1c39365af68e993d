package obligation

import "errors"

var (
	ErrObligationReserveLimit      = errors.New("obligation: no free slot for this reserve")
	ErrInvalidObligationCollateral = errors.New("obligation: no deposit slot for this reserve")
	ErrInvalidObligationLiquidity  = errors.New("obligation: no borrow slot for this reserve")
	ErrObligationLiquidityEmpty    = errors.New("obligation: cannot repay a zero borrow slot")
	ErrObligationDepositsEmpty     = errors.New("obligation: no deposits")
	ErrObligationBorrowsEmpty      = errors.New("obligation: no borrows")

	ErrIsolatedAssetTierViolation = errors.New("obligation: isolated asset tier violation")
)
