// Package fixedpoint implements the deterministic scaled-fraction types used
// throughout the lending engine: F, a 128-bit-bounded fraction, and BF, a
// native 256-bit fraction reserved for the cumulative borrow index.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Scale is the binary exponent of the fixed-point scale: one whole unit is
// represented as 1<<Scale (2^60) in the backing integer.
const Scale = 60

// ErrMathOverflow is raised by every checked operation that would overflow
// its backing width, including division by zero.
var ErrMathOverflow = errors.New("fixedpoint: math overflow")

var (
	scaleInt  = new(uint256.Int).Lsh(uint256.NewInt(1), Scale)
	maxU128   = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	maxU128M1 = new(uint256.Int).Sub(maxU128, uint256.NewInt(1))
)

// F is a 128-bit fixed-point fraction, scale 2^60. The backing word is a
// uint256.Int bounds-checked to stay below 2^128 on every operation, which
// is the only way the pack exposes a 128-bit-wide checked integer.
type F struct {
	v uint256.Int
}

// BF is a 256-bit fixed-point fraction, scale 2^60, reserved for the
// cumulative borrow index (see SPEC_FULL §9 on why this field alone needs
// the full width).
type BF struct {
	v uint256.Int
}

func fFromWord(w *uint256.Int) (F, error) {
	if w.Gt(maxU128M1) {
		return F{}, ErrMathOverflow
	}
	return F{v: *w}, nil
}

// FromU64 builds F representing the integer value x.
func FromU64(x uint64) F {
	w := new(uint256.Int).Lsh(uint256.NewInt(x), Scale)
	f, err := fFromWord(w)
	if err != nil {
		// x is at most 2^64-1; shifted by 60 bits that's at most 2^124,
		// always representable — this branch is unreachable.
		panic(err)
	}
	return f
}

// FromPercent builds F representing p/100.
func FromPercent(p uint8) F {
	num := new(uint256.Int).Mul(uint256.NewInt(uint64(p)), scaleInt)
	w := new(uint256.Int).Div(num, uint256.NewInt(100))
	f, _ := fFromWord(w)
	return f
}

// FromBps builds F representing bps/10_000.
func FromBps(bps uint16) F {
	num := new(uint256.Int).Mul(uint256.NewInt(uint64(bps)), scaleInt)
	w := new(uint256.Int).Div(num, uint256.NewInt(10_000))
	f, _ := fFromWord(w)
	return f
}

// FromBits wraps a raw scaled-fraction bit pattern (already multiplied by
// 2^60), mirroring the source's F::from_bits convention for fee rates.
func FromBits(bits uint64) F {
	w := uint256.NewInt(bits)
	f, _ := fFromWord(w)
	return f
}

// Zero is the additive identity.
func Zero() F { return F{} }

// ToFloorU64 truncates toward zero.
func (f F) ToFloorU64() (uint64, error) {
	w := new(uint256.Int).Rsh(&f.v, Scale)
	if !w.IsUint64() {
		return 0, ErrMathOverflow
	}
	return w.Uint64(), nil
}

// ToCeilU64 rounds up to the next integer unless f is already exact.
func (f F) ToCeilU64() (uint64, error) {
	floor := new(uint256.Int).Rsh(&f.v, Scale)
	rem := new(uint256.Int).Sub(&f.v, new(uint256.Int).Lsh(floor, Scale))
	if !rem.IsZero() {
		floor = new(uint256.Int).Add(floor, uint256.NewInt(1))
	}
	if !floor.IsUint64() {
		return 0, ErrMathOverflow
	}
	return floor.Uint64(), nil
}

// ToRoundU64 rounds to the nearest integer, ties rounding up.
func (f F) ToRoundU64() (uint64, error) {
	half := new(uint256.Int).Lsh(uint256.NewInt(1), Scale-1)
	w := new(uint256.Int).Add(&f.v, half)
	w = new(uint256.Int).Rsh(w, Scale)
	if !w.IsUint64() {
		return 0, ErrMathOverflow
	}
	return w.Uint64(), nil
}

// Add returns f+g, checked against the 128-bit bound.
func (f F) Add(g F) (F, error) {
	sum, overflow := new(uint256.Int).AddOverflow(&f.v, &g.v)
	if overflow {
		return F{}, ErrMathOverflow
	}
	return fFromWord(sum)
}

// Sub returns f-g, erroring (not wrapping) on underflow.
func (f F) Sub(g F) (F, error) {
	diff, underflow := new(uint256.Int).SubOverflow(&f.v, &g.v)
	if underflow {
		return F{}, ErrMathOverflow
	}
	return fFromWord(diff)
}

// Mul returns f*g with the result descaled back to 2^60.
func (f F) Mul(g F) (F, error) {
	prod, overflow := new(uint256.Int).MulOverflow(&f.v, &g.v)
	if overflow {
		return F{}, ErrMathOverflow
	}
	w := new(uint256.Int).Div(prod, scaleInt)
	return fFromWord(w)
}

// Div returns f/g, rescaling the numerator before dividing so fractional
// bits survive.
func (f F) Div(g F) (F, error) {
	if g.v.IsZero() {
		return F{}, ErrMathOverflow
	}
	num, overflow := new(uint256.Int).MulOverflow(&f.v, scaleInt)
	if overflow {
		return F{}, ErrMathOverflow
	}
	w := new(uint256.Int).Div(num, &g.v)
	return fFromWord(w)
}

// MulU64 multiplies f by a plain integer without descaling, used where the
// integer side is a token-amount magnitude rather than another fraction.
func (f F) MulU64(x uint64) (F, error) {
	prod, overflow := new(uint256.Int).MulOverflow(&f.v, uint256.NewInt(x))
	if overflow {
		return F{}, ErrMathOverflow
	}
	return fFromWord(prod)
}

// DivU64 divides f by a plain integer.
func (f F) DivU64(x uint64) (F, error) {
	if x == 0 {
		return F{}, ErrMathOverflow
	}
	w := new(uint256.Int).Div(&f.v, uint256.NewInt(x))
	return fFromWord(w)
}

// Min returns the smaller of f and g.
func (f F) Min(g F) F {
	if f.v.Lt(&g.v) {
		return f
	}
	return g
}

// Max returns the larger of f and g.
func (f F) Max(g F) F {
	if f.v.Gt(&g.v) {
		return f
	}
	return g
}

// SaturatingSub returns f-g, clamped to zero instead of erroring.
func (f F) SaturatingSub(g F) F {
	if f.v.Lt(&g.v) {
		return F{}
	}
	diff := new(uint256.Int).Sub(&f.v, &g.v)
	return F{v: *diff}
}

// AbsDiff returns |f-g|.
func (f F) AbsDiff(g F) F {
	if f.v.Lt(&g.v) {
		diff := new(uint256.Int).Sub(&g.v, &f.v)
		return F{v: *diff}
	}
	diff := new(uint256.Int).Sub(&f.v, &g.v)
	return F{v: *diff}
}

// Cmp returns -1, 0, or 1 comparing f to g.
func (f F) Cmp(g F) int { return f.v.Cmp(&g.v) }

// IsZero reports whether f is exactly zero.
func (f F) IsZero() bool { return f.v.IsZero() }

// Bits returns the raw scaled bit pattern, for fee-rate encodings that
// travel as u64 (see reserve.Fees).
func (f F) Bits() uint64 { return f.v.Uint64() }

// ToBF widens f into the 256-bit type without loss.
func (f F) ToBF() BF { return BF{v: f.v} }

// --- BF: the 256-bit cumulative borrow index type ---

// BFOne is the initial cumulative borrow index value (1.0).
func BFOne() BF { return BF{v: *scaleInt} }

// BFFromU64 builds BF representing the integer value x.
func BFFromU64(x uint64) BF {
	return BF{v: *new(uint256.Int).Lsh(uint256.NewInt(x), Scale)}
}

// Mul returns bf*other, descaled back to 2^60. BF never bounds-checks
// against 2^128 — it owns the engine's one field that needs the full
// 256-bit range (spec §9).
func (bf BF) Mul(other BF) (BF, error) {
	prod, overflow := new(uint256.Int).MulOverflow(&bf.v, &other.v)
	if overflow {
		return BF{}, ErrMathOverflow
	}
	w := new(uint256.Int).Div(prod, scaleInt)
	return BF{v: *w}, nil
}

// Div returns bf/other.
func (bf BF) Div(other BF) (BF, error) {
	if other.v.IsZero() {
		return BF{}, ErrMathOverflow
	}
	num, overflow := new(uint256.Int).MulOverflow(&bf.v, scaleInt)
	if overflow {
		return BF{}, ErrMathOverflow
	}
	return BF{v: *new(uint256.Int).Div(num, &other.v)}, nil
}

// Cmp returns -1, 0, or 1 comparing bf to other.
func (bf BF) Cmp(other BF) int { return bf.v.Cmp(&other.v) }

// ToF narrows bf back to the 128-bit type, erroring if it no longer fits.
func (bf BF) ToF() (F, error) {
	return fFromWord(&bf.v)
}
