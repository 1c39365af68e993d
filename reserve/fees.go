package reserve

import "lendcore/fixedpoint"

// FeeMode selects whether a fee is computed on top of (Exclusive) or
// carved out of (Inclusive) the requested amount, per spec §4.4.
type FeeMode uint8

const (
	FeeExclusive FeeMode = iota
	FeeInclusive
)

// compute applies the reserve's borrow-fee scaling factor to amount,
// following spec §4.4: "if borrow_fee_sf > 0 and amount > 0: rate =
// F::from_bits(borrow_fee_sf); Exclusive ⇒ fee = ceil_to_round(amount ×
// rate) max 1; Inclusive ⇒ rate' = rate/(rate+1)".
func (f Fees) compute(amount fixedpoint.F, mode FeeMode) (uint64, error) {
	if f.BorrowFeeSF == 0 || amount.IsZero() {
		return 0, nil
	}
	rate := fixedpoint.FromBits(f.BorrowFeeSF)
	if mode == FeeInclusive {
		onePlusRate, err := fixedpoint.FromU64(1).Add(rate)
		if err != nil {
			return 0, err
		}
		rate, err = rate.Div(onePlusRate)
		if err != nil {
			return 0, err
		}
	}
	raw, err := amount.Mul(rate)
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
	amountU64, err := amount.ToFloorU64()
	if err == nil && fee >= amountU64 && amountU64 > 0 {
		return 0, ErrBorrowFeeExceedsAmount
	}
	return fee, nil
}
