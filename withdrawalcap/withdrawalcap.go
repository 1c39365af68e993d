// Package withdrawalcap implements the rolling-interval withdrawal cap
// tracker of SPEC_FULL §4.10, adapted from native/common/quota.go's
// rolling-epoch-reset counter (Quota/QuotaNow/CheckQuota) from a dual
// request/NHB counter to the spec's single capacity/interval model.
package withdrawalcap

import "errors"

var (
	// ErrWithdrawalCapReached is returned when adding would push
	// current_total past config_capacity.
	ErrWithdrawalCapReached = errors.New("withdrawalcap: capacity reached")
	// ErrLastTimestampGreaterThanCurrent is returned on a non-monotone
	// timestamp (now older than the last recorded interval start).
	ErrLastTimestampGreaterThanCurrent = errors.New("withdrawalcap: timestamp moved backwards")
)

// Caps mirrors WithdrawalCaps from spec §4.10. A Capacity of zero disables
// the cap entirely.
type Caps struct {
	Capacity              int64
	CurrentTotal          int64
	LastIntervalStartTS   uint64
	IntervalLengthSeconds uint64
}

// Add applies a positive delta (a collateral redemption or a borrow,
// depending on which cap this tracks) at time now, rolling the interval over
// first if it has elapsed. Returns the updated Caps; the receiver is never
// mutated.
func (c Caps) Add(now uint64, amount int64) (Caps, error) {
	return c.apply(now, amount)
}

// Sub applies a negative delta (a liquidity deposit or a repay credited back
// to the remaining capacity), following the same rollover rule.
func (c Caps) Sub(now uint64, amount int64) (Caps, error) {
	return c.apply(now, -amount)
}

func (c Caps) apply(now uint64, delta int64) (Caps, error) {
	if c.Capacity == 0 {
		// Disabled: still track the interval bookkeeping honestly, but
		// never reject.
		next := c.rollIfNeeded(now)
		next.CurrentTotal += delta
		return next, nil
	}
	if now < c.LastIntervalStartTS {
		return c, ErrLastTimestampGreaterThanCurrent
	}

	next := c.rollIfNeeded(now)
	candidate := next.CurrentTotal + delta
	if candidate > next.Capacity {
		return c, ErrWithdrawalCapReached
	}
	next.CurrentTotal = candidate
	return next, nil
}

func (c Caps) rollIfNeeded(now uint64) Caps {
	if c.IntervalLengthSeconds == 0 {
		return c
	}
	if now < c.LastIntervalStartTS+c.IntervalLengthSeconds {
		return c
	}
	elapsedIntervals := (now - c.LastIntervalStartTS) / c.IntervalLengthSeconds
	next := c
	next.LastIntervalStartTS += elapsedIntervals * c.IntervalLengthSeconds
	next.CurrentTotal = 0
	return next
}
