// Package ratio holds the integer helpers shared by the rate model and the
// balancer. Every item count in the synthesis is a non-negative integer, so
// weighted shares are computed exactly instead of through floating point.
package ratio

import "golang.org/x/exp/constraints"

// FloorDiv returns floor(n/d) for n >= 0 and d > 0.
func FloorDiv[T constraints.Integer](n, d T) T {
	if d == 0 {
		return 0
	}
	return n / d
}

// CeilDiv returns ceil(n/d) for n >= 0 and d > 0.
func CeilDiv[T constraints.Integer](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// MulDiv returns floor(x*num/den) without losing precision for the small
// counts used by stream rates.
func MulDiv[T constraints.Integer](x, num, den T) T {
	if den == 0 {
		return 0
	}
	return T(int64(x) * int64(num) / int64(den))
}

// Divides reports whether d divides n evenly.
func Divides[T constraints.Integer](n, d T) bool {
	if d == 0 {
		return false
	}
	return n%d == 0
}
