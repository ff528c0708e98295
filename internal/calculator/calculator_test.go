package calculator

import (
	"errors"
	"math"
	"testing"
)

var samples = []float64{0, 1, -1, 2.5, -7.25, 1e-9, 123456.789, -1e12, math.MaxInt32}

func TestAdd(t *testing.T) {
	if got := Add(5, 3); got != 8 {
		t.Errorf("Add(5, 3) = %v, want 8", got)
	}
	for _, a := range samples {
		if got := Add(a, 0); got != a {
			t.Errorf("Add(%v, 0) = %v, want %v", a, got, a)
		}
	}
}

func TestSubtract(t *testing.T) {
	if got := Subtract(5, 3); got != 2 {
		t.Errorf("Subtract(5, 3) = %v, want 2", got)
	}
	if got := Subtract(3, 5); got != -2 {
		t.Errorf("Subtract(3, 5) = %v, want -2", got)
	}
}

func TestMultiply(t *testing.T) {
	if got := Multiply(4, 7); got != 28 {
		t.Errorf("Multiply(4, 7) = %v, want 28", got)
	}
	for _, a := range samples {
		if got := Multiply(a, 1); got != a {
			t.Errorf("Multiply(%v, 1) = %v, want %v", a, got, a)
		}
	}
}

func TestDivide(t *testing.T) {
	got, err := Divide(15, 3)
	if err != nil {
		t.Fatalf("Divide(15, 3) returned error: %v", err)
	}
	if got != 5 {
		t.Errorf("Divide(15, 3) = %v, want 5", got)
	}
}

func TestDivideByZero(t *testing.T) {
	for _, a := range samples {
		for _, zero := range []float64{0, math.Copysign(0, -1)} {
			if _, err := Divide(a, zero); !errors.Is(err, ErrDivisionByZero) {
				t.Errorf("Divide(%v, %v) error = %v, want ErrDivisionByZero", a, zero, err)
			}
		}
	}
}

func TestDivideUndoesMultiply(t *testing.T) {
	for _, a := range samples {
		for _, b := range samples {
			if b == 0 {
				continue
			}
			got, err := Divide(Multiply(a, b), b)
			if err != nil {
				t.Fatalf("Divide(%v*%v, %v) returned error: %v", a, b, b, err)
			}
			tolerance := 1e-9 * math.Max(1, math.Abs(a))
			if math.Abs(got-a) > tolerance {
				t.Errorf("Divide(Multiply(%v, %v), %v) = %v, want ≈ %v", a, b, b, got, a)
			}
		}
	}
}

func TestPower(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{2, 3, 8},
		{3, 2, 9},
		{4, 0.5, 2},
		{2, -1, 0.5},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := Power(tt.a, tt.b); got != tt.want {
			t.Errorf("Power(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if got := Power(-8, 1.0/3); !math.IsNaN(got) {
		t.Errorf("Power(-8, 1/3) = %v, want NaN", got)
	}
}

func TestSquareRoot(t *testing.T) {
	got, err := SquareRoot(16)
	if err != nil {
		t.Fatalf("SquareRoot(16) returned error: %v", err)
	}
	if got != 4 {
		t.Errorf("SquareRoot(16) = %v, want 4", got)
	}

	if got, err := SquareRoot(0); err != nil || got != 0 {
		t.Errorf("SquareRoot(0) = %v, %v; want 0, nil", got, err)
	}
}

func TestSquareRootNegative(t *testing.T) {
	for _, a := range []float64{-1, -0.0001, -1e12} {
		if _, err := SquareRoot(a); !errors.Is(err, ErrNegativeRadicand) {
			t.Errorf("SquareRoot(%v) error = %v, want ErrNegativeRadicand", a, err)
		}
	}
}

// Pythagorean triple through the public operations.
func TestChainedOperations(t *testing.T) {
	sum := Add(Power(3, 2), Power(4, 2))
	hyp, err := SquareRoot(sum)
	if err != nil {
		t.Fatal(err)
	}
	if hyp != 5 {
		t.Errorf("hypotenuse = %v, want 5", hyp)
	}

	step, err := Divide(Multiply(Add(5, 3), 2), 4)
	if err != nil {
		t.Fatal(err)
	}
	if step != 4 {
		t.Errorf("(5 + 3) * 2 / 4 = %v, want 4", step)
	}
}
