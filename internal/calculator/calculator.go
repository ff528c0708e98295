// Package calculator implements the arithmetic operations behind every
// calculate command. Each function is pure; failures are reported as
// sentinel errors that callers can match with errors.Is.
package calculator

import (
	"errors"
	"math"
)

var (
	// ErrDivisionByZero is returned by Divide when the divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrNegativeRadicand is returned by SquareRoot for negative input.
	ErrNegativeRadicand = errors.New("square root of a negative number")
)

// Add returns a + b.
func Add(a, b float64) float64 {
	return a + b
}

// Subtract returns a - b.
func Subtract(a, b float64) float64 {
	return a - b
}

// Multiply returns a * b.
func Multiply(a, b float64) float64 {
	return a * b
}

// Divide returns a / b. Both +0 and -0 are rejected as divisors.
func Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// Power returns a raised to b. Results outside the float64 range come
// back as ±Inf, and undefined real results (negative base, fractional
// exponent) as NaN.
func Power(a, b float64) float64 {
	return math.Pow(a, b)
}

// SquareRoot returns the principal square root of a.
func SquareRoot(a float64) (float64, error) {
	if a < 0 {
		return 0, ErrNegativeRadicand
	}
	return math.Sqrt(a), nil
}
