// Package curve implements the piecewise-linear borrow-rate curve over
// utilization, generalized from the teacher's two-segment kinked model
// (native/lending/interest.go) to an arbitrary number of monotone control
// points.
package curve

import (
	"errors"

	"lendcore/fixedpoint"
)

// NumPoints is the fixed number of control points a borrow-rate curve must
// carry (spec §2, §4.2).
const NumPoints = 11

var (
	// ErrCurveNotSorted is returned when utilization control points are not
	// strictly non-decreasing.
	ErrCurveNotSorted = errors.New("curve: utilization points must be non-decreasing")
	// ErrCurveBounds is returned when the first/last utilization points are
	// not exactly 0 and 10_000 bps.
	ErrCurveBounds = errors.New("curve: first point must be 0 bps, last must be 10_000 bps")
	// ErrCurveNegativeRate is returned when a control point's rate is
	// negative — unrepresentable since rates are unsigned bps, kept for
	// symmetry with the spec's named error.
	ErrCurveNegativeRate = errors.New("curve: rate must be non-negative")
	// ErrUtilizationOutOfRange is returned by GetBorrowRate when the
	// supplied utilization falls outside [0, 10_000] bps.
	ErrUtilizationOutOfRange = errors.New("curve: utilization out of range")
)

// Point is one (utilization_bps, borrow_rate_bps) control point.
type Point struct {
	UtilizationBps uint16
	BorrowRateBps  uint32
}

// Curve is an ordered set of NumPoints monotone control points describing
// the annualized borrow rate as a function of utilization.
type Curve struct {
	Points [NumPoints]Point
}

// Validate checks the invariants spec §4.2 requires: utilization strictly
// non-decreasing, first point at 0 bps, last point at 10_000 bps, all rates
// non-negative (always true for the unsigned representation, checked for
// documentation parity with the source).
func (c Curve) Validate() error {
	if c.Points[0].UtilizationBps != 0 {
		return ErrCurveBounds
	}
	if c.Points[NumPoints-1].UtilizationBps != 10_000 {
		return ErrCurveBounds
	}
	for i := 1; i < NumPoints; i++ {
		if c.Points[i].UtilizationBps < c.Points[i-1].UtilizationBps {
			return ErrCurveNotSorted
		}
	}
	return nil
}

// GetBorrowRate linearly interpolates the annualized borrow rate, as an F,
// for the given utilization (also expressed as an F in [0,1]).
func (c Curve) GetBorrowRate(u fixedpoint.F) (fixedpoint.F, error) {
	uBps, err := toBps(u)
	if err != nil {
		return fixedpoint.F{}, err
	}
	if uBps > 10_000 {
		return fixedpoint.F{}, ErrUtilizationOutOfRange
	}

	for i := 0; i < NumPoints-1; i++ {
		lo := c.Points[i]
		hi := c.Points[i+1]
		if uBps < uint64(lo.UtilizationBps) || uBps > uint64(hi.UtilizationBps) {
			continue
		}
		if hi.UtilizationBps == lo.UtilizationBps {
			return bpsRateToF(int64(lo.BorrowRateBps)), nil
		}
		span := uint64(hi.UtilizationBps - lo.UtilizationBps)
		offset := uBps - uint64(lo.UtilizationBps)
		rateSpan := int64(hi.BorrowRateBps) - int64(lo.BorrowRateBps)
		interpolated := int64(lo.BorrowRateBps) + rateSpan*int64(offset)/int64(span)
		return bpsRateToF(interpolated), nil
	}
	// uBps == 10_000 falls through the loop's upper-bound check on the last
	// segment; handled there, so this is unreachable for a validated curve.
	return bpsRateToF(int64(c.Points[NumPoints-1].BorrowRateBps)), nil
}

func toBps(u fixedpoint.F) (uint64, error) {
	scaled, err := u.MulU64(10_000)
	if err != nil {
		return 0, err
	}
	return scaled.ToFloorU64()
}

// bpsRateToF converts a borrow-rate-in-bps value (which may exceed the
// uint16 range FromBps accepts, since curve rates run up to 100_000 bps per
// spec scenario 3) into an F.
func bpsRateToF(rateBps int64) fixedpoint.F {
	if rateBps < 0 {
		rateBps = 0
	}
	whole := fixedpoint.FromU64(uint64(rateBps) / 10_000)
	fracBps := uint64(rateBps) % 10_000
	frac := fixedpoint.FromBps(uint16(fracBps))
	sum, err := whole.Add(frac)
	if err != nil {
		// rateBps is bounded by the curve's own uint32 rate field; cannot
		// overflow a 128-bit fraction.
		panic(err)
	}
	return sum
}
