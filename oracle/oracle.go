// Package oracle adapts a raw price-feed reading into a validated
// PriceResult, enforcing the age, confidence, and TWAP-divergence bounds
// described in SPEC_FULL §4.3. It is grounded on core/pricing/pricefeed.go's
// PriceStatus/age/TWAP-deviation pattern, rewritten against fixedpoint.F
// instead of big.Rat/Q64.64.
package oracle

import (
	"errors"

	"lendcore/fixedpoint"
)

// CONFIDENCE_FACTOR = 100 / MAX_CONFIDENCE_PERCENTAGE, MAX_CONFIDENCE_PERCENTAGE = 2.
const confidenceFactor = 50

var (
	// ErrPriceIsZero is returned when the raw feed reports a zero price.
	ErrPriceIsZero = errors.New("oracle: price is zero")
	// ErrPriceConfidenceTooWide is returned when confidence*50 > price.
	ErrPriceConfidenceTooWide = errors.New("oracle: confidence interval too wide")
)

// StatusFlags is a bitset over {PRICE_LOADED, PRICE_AGE_CHECKED,
// TWAP_CHECKED, TWAP_AGE_CHECKED}, aggregated via intersection across
// inputs (obligation refresh ANDs the flags of every reserve it touches).
type StatusFlags uint8

const (
	PriceLoaded StatusFlags = 1 << iota
	PriceAgeChecked
	TwapChecked
	TwapAgeChecked

	// None is the empty flag set. Requiring None, as spec §4.4's
	// deposit/repay paths do, accepts any status: only the slot has to
	// match (no price needed).
	None StatusFlags = 0
	// AllChecks is required for borrow and withdraw-with-debt (spec §4.7).
	AllChecks = PriceLoaded | PriceAgeChecked | TwapChecked | TwapAgeChecked
	// LiquidationChecks is required to enter liquidation (spec §4.8).
	LiquidationChecks = AllChecks
)

// Has reports whether all bits in want are set in f.
func (f StatusFlags) Has(want StatusFlags) bool { return f&want == want }

// And intersects two flag sets, the aggregation rule refresh_obligation
// uses across every reserve it visits (spec §4.6).
func (f StatusFlags) And(other StatusFlags) StatusFlags { return f & other }

// RawPrice is the decoded shape a provider hands the adapter: an integer
// mantissa with a base-10 exponent, confidence in the same exponent, and a
// publish timestamp — plus an optional EMA/TWAP reading used for the
// divergence check.
type RawPrice struct {
	PriceInt   int64
	Expo       int32
	Confidence uint64
	PublishTS  int64
}

// TokenInfo carries the per-reserve oracle tolerances (spec §3's
// token_info block).
type TokenInfo struct {
	MaxTwapDivergenceBps uint64
	MaxAgePriceSeconds   uint64
	MaxAgeTwapSeconds    uint64
}

// PriceResult is the validated output: a price already rescaled to F, the
// status bits that passed, and the timestamp it was read at.
type PriceResult struct {
	Price  fixedpoint.F
	Status StatusFlags
	TS     int64
}

// ToF converts a raw integer+exponent price into F, rejecting a zero or
// negative price and an overly wide confidence interval. The exponent's
// sign is not checked: a positive exponent scales the price up.
func ToF(priceInt int64, expo int32, confidence uint64) (fixedpoint.F, error) {
	if priceInt <= 0 {
		return fixedpoint.F{}, ErrPriceIsZero
	}
	if confidence*confidenceFactor > uint64(priceInt) {
		return fixedpoint.F{}, ErrPriceConfidenceTooWide
	}
	return scaleByExpo(uint64(priceInt), expo)
}

func scaleByExpo(mantissa uint64, expo int32) (fixedpoint.F, error) {
	f := fixedpoint.FromU64(mantissa)
	if expo == 0 {
		return f, nil
	}
	if expo > 0 {
		for i := int32(0); i < expo; i++ {
			var err error
			f, err = f.MulU64(10)
			if err != nil {
				return fixedpoint.F{}, err
			}
		}
		return f, nil
	}
	for i := int32(0); i < -expo; i++ {
		var err error
		f, err = f.DivU64(10)
		if err != nil {
			return fixedpoint.F{}, err
		}
	}
	return f, nil
}

// Validate runs the full status-flag derivation of spec §4.3:
// get_validated_price(price, twap, token_info, now).
func Validate(raw RawPrice, twap *RawPrice, info TokenInfo, now int64) (PriceResult, error) {
	price, err := ToF(raw.PriceInt, raw.Expo, raw.Confidence)
	if err != nil {
		return PriceResult{}, err
	}

	status := PriceLoaded

	age := now - raw.PublishTS
	if age >= 0 && uint64(age) <= info.MaxAgePriceSeconds {
		status |= PriceAgeChecked
	}

	twapEnabled := info.MaxTwapDivergenceBps > 0
	if !twapEnabled {
		status |= TwapAgeChecked
	} else if twap != nil {
		twapAge := now - twap.PublishTS
		if twapAge >= 0 && uint64(twapAge) <= info.MaxAgeTwapSeconds {
			status |= TwapAgeChecked
		}
		twapPrice, err := ToF(twap.PriceInt, twap.Expo, twap.Confidence)
		if err == nil {
			diff := price.AbsDiff(twapPrice)
			diffBps, err := diff.MulU64(10_000)
			if err == nil {
				bound, err := price.MulU64(info.MaxTwapDivergenceBps)
				if err == nil && diffBps.Cmp(bound) < 0 {
					status |= TwapChecked
				}
			}
		}
	}
	// twapEnabled && twap == nil: only the TWAP bits remain unset, per
	// spec §4.3.

	return PriceResult{Price: price, Status: status, TS: now}, nil
}
