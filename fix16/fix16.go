// Package fix16 implements signed Q16.16 fixed-point arithmetic with
// saturating overflow semantics, suitable for targets without an FPU.
//
// A value occupies an int32: the upper 16 bits are the integer part, the
// lower 16 the fraction, so the representable range is
// [-32768, 32767.99998] with a resolution of 2^-16. Operations that would
// leave this range clamp to Max or Min instead of wrapping. Mul rounds
// half up; Div truncates toward zero.
package fix16

import (
	"math"
	"math/bits"
	"strconv"
)

// T is a Q16.16 fixed-point value.
type T int32

const (
	// One is the fixed-point representation of 1.
	One T = 1 << 16

	// Max is the largest representable value, 32767 + 65535/65536.
	Max T = math.MaxInt32

	// Min is the most negative representable value, -32768.
	Min T = math.MinInt32

	fracBits = 16
)

// FromInt converts an integer, saturating when it is out of range.
func FromInt(i int) T {
	if i > math.MaxInt16 {
		return Max
	}

	if i < math.MinInt16 {
		return Min
	}

	return T(i << fracBits)
}

// FromFloat converts a float64 to the nearest representable value,
// saturating when it is out of range.
func FromFloat(f float64) T {
	r := math.Round(f * (1 << fracBits))

	if r >= math.MaxInt32 {
		return Max
	}

	if r <= math.MinInt32 {
		return Min
	}

	return T(r)
}

// Float converts t to a float64. The conversion is exact.
func (t T) Float() float64 {
	return float64(t) / (1 << fracBits)
}

// Add returns t + o, saturating on overflow.
func (t T) Add(o T) T {
	return sat(int64(t) + int64(o))
}

// Sub returns t - o, saturating on overflow.
func (t T) Sub(o T) T {
	return sat(int64(t) - int64(o))
}

// Mul returns t * o rounded half up, saturating on overflow.
func (t T) Mul(o T) T {
	p := int64(t) * int64(o)

	return sat((p + 1<<(fracBits-1)) >> fracBits)
}

// Div returns t / o truncated toward zero, saturating on overflow.
// Division by zero saturates in the direction of t's sign.
func (t T) Div(o T) T {
	if o == 0 {
		if t < 0 {
			return Min
		}

		return Max
	}

	return sat((int64(t) << fracBits) / int64(o))
}

// Abs returns the magnitude of t. Abs(Min) saturates to Max.
func (t T) Abs() T {
	if t == Min {
		return Max
	}

	if t < 0 {
		return -t
	}

	return t
}

// Sqrt returns the square root of t, rounded down to the nearest
// representable value. Negative inputs return 0.
func (t T) Sqrt() T {
	if t <= 0 {
		return 0
	}

	// sqrt(v / 2^16) * 2^16 == sqrt(v * 2^16)
	return T(isqrt(uint64(t) << fracBits))
}

// String formats t with full fractional precision.
func (t T) String() string {
	return strconv.FormatFloat(t.Float(), 'f', -1, 64)
}

func sat(v int64) T {
	if v > math.MaxInt32 {
		return Max
	}

	if v < math.MinInt32 {
		return Min
	}

	return T(v)
}

// isqrt computes the integer square root bit pair by bit pair.
func isqrt(v uint64) uint64 {
	if v == 0 {
		return 0
	}

	shift := (63 - bits.LeadingZeros64(v)) &^ 1

	var res uint64

	for bit := uint64(1) << shift; bit != 0; bit >>= 2 {
		if v >= res+bit {
			v -= res + bit
			res = res>>1 + bit
		} else {
			res >>= 1
		}
	}

	return res
}
