package engine

import (
	"math"
	"math/bits"
)

// All monetary and quantity math in the engine goes through these
// primitives. Overflow clamps instead of wrapping, division by zero
// returns the caller's fallback, and any multiply-then-divide on two
// 64-bit operands widens to 128 bits before dividing.

func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// CheckedMul reports whether a*b fits in 64 bits.
func CheckedMul(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, false
	}
	return lo, true
}

// CheckedDiv returns a/b, or fallback when b is zero.
func CheckedDiv(a, b, fallback uint64) uint64 {
	if b == 0 {
		return fallback
	}
	return a / b
}

// MulDiv computes a*b/den with a 128-bit intermediate product,
// saturating when the quotient does not fit in 64 bits or den is zero.
func MulDiv(a, b, den uint64) uint64 {
	if den == 0 {
		return math.MaxUint64
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, den)
	return q
}

// MulDiv3 computes a*b*c/den with a 192-bit intermediate product,
// saturating like MulDiv. Used for curve math where two of the factors
// may each exceed 32 bits.
func MulDiv3(a, b, c, den uint64) uint64 {
	if den == 0 {
		return math.MaxUint64
	}
	hi1, lo1 := bits.Mul64(b, c)
	h2, l2 := bits.Mul64(lo1, a)
	h3, l3 := bits.Mul64(hi1, a)
	mid, carry := bits.Add64(h2, l3, 0)
	top := h3 + carry
	if top != 0 || mid >= den {
		return math.MaxUint64
	}
	q, _ := bits.Div64(mid, l2, den)
	return q
}

// uint128 backs the widened VWAP accumulator.
type uint128 struct {
	hi, lo uint64
}

func mul128(a, b uint64) uint128 {
	hi, lo := bits.Mul64(a, b)
	return uint128{hi: hi, lo: lo}
}

func (u uint128) add(v uint128) uint128 {
	lo, carry := bits.Add64(u.lo, v.lo, 0)
	hi, overflow := bits.Add64(u.hi, v.hi, carry)
	if overflow != 0 {
		// edge case: accumulator saturates instead of wrapping
		return uint128{hi: math.MaxUint64, lo: math.MaxUint64}
	}
	return uint128{hi: hi, lo: lo}
}

// div returns u/den clamped to 64 bits; fallback when den is zero.
func (u uint128) div(den, fallback uint64) uint64 {
	if den == 0 {
		return fallback
	}
	if u.hi >= den {
		return math.MaxUint64
	}
	q, _ := bits.Div64(u.hi, u.lo, den)
	return q
}
