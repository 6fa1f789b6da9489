package utils

import "math"

// FlatEpsilon absorbs floating point drift when testing whether a running
// quantity has returned to exactly zero.
const FlatEpsilon = 1e-9

// RoundFloat rounds a float64 to a specified number of decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// RoundCents rounds a currency amount to 2 decimals. Only applied at the
// boundary when writing out; internal accumulation keeps full precision.
func RoundCents(val float64) float64 {
	return RoundFloat(val, 2)
}

// IsFlat reports whether a running quantity is zero within FlatEpsilon.
func IsFlat(qty float64) bool {
	return math.Abs(qty) < FlatEpsilon
}

// MinFloat returns the smaller of two float64 values.
func MinFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// AbsFloat returns the absolute value of a float64.
func AbsFloat(x float64) float64 {
	return math.Abs(x)
}

// IsUsableQty reports whether a parsed quantity can enter the engine:
// finite and strictly positive.
func IsUsableQty(qty float64) bool {
	return !math.IsNaN(qty) && !math.IsInf(qty, 0) && qty > 0
}

// IsUsablePrice reports whether a parsed price can enter the engine:
// finite and non-negative. Zero is valid (worthless expiration).
func IsUsablePrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price >= 0
}
