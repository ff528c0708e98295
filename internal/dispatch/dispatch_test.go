package dispatch

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/organic-programming/calculate/internal/calculator"
)

func TestDispatchSuccess(t *testing.T) {
	tests := []struct {
		op       string
		operands []string
		display  string
	}{
		{"add", []string{"5", "3"}, "8"},
		{"subtract", []string{"5", "3"}, "2"},
		{"multiply", []string{"4", "7"}, "28"},
		{"multiply", []string{"5", "3"}, "15"},
		{"divide", []string{"15", "3"}, "5"},
		{"divide", []string{"5", "3"}, "1.67"},
		{"power", []string{"2", "10"}, "1024"},
		{"sqrt", []string{"16"}, "4"},
		{"sqrt", []string{"2"}, "1.41"},
		{"add", []string{"-2.5", "1e1"}, "7.50"},
		{" ADD ", []string{" 1 ", "2"}, "3"},
	}
	for _, tt := range tests {
		res, err := Dispatch(tt.op, tt.operands)
		if err != nil {
			t.Errorf("Dispatch(%q, %v) returned error: %v", tt.op, tt.operands, err)
			continue
		}
		if got := res.Display(); got != tt.display {
			t.Errorf("Dispatch(%q, %v).Display() = %q, want %q", tt.op, tt.operands, got, tt.display)
		}
	}
}

func TestDispatchResultFields(t *testing.T) {
	res, err := Dispatch("Divide", []string{"5", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Operation != "divide" {
		t.Errorf("Operation = %q, want %q", res.Operation, "divide")
	}
	if len(res.Operands) != 2 || res.Operands[0] != 5 || res.Operands[1] != 3 {
		t.Errorf("Operands = %v, want [5 3]", res.Operands)
	}
	if math.Abs(res.Value-5.0/3) > 1e-12 {
		t.Errorf("Value = %v, want %v", res.Value, 5.0/3)
	}
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		operands []string
		kind     Kind
		message  string
	}{
		{"missing operand", "subtract", []string{"5"}, KindOperandCount, "Operation 'subtract' requires two numbers"},
		{"extra operand", "add", []string{"1", "2", "3"}, KindOperandCount, "Operation 'add' requires two numbers"},
		{"no operands", "power", nil, KindOperandCount, "Operation 'power' requires two numbers"},
		{"sqrt arity", "sqrt", []string{"4", "9"}, KindOperandCount, "Operation 'sqrt' requires one number"},
		{"unknown", "invalid", []string{"1", "2"}, KindUnknownOperation, "Unknown operation 'invalid'"},
		{"unknown no operands", "modulo", nil, KindUnknownOperation, "Unknown operation 'modulo'"},
		{"bad operand", "add", []string{"5", "abc"}, KindInvalidOperand, "Invalid number: 'abc'"},
		{"nan operand", "sqrt", []string{"NaN"}, KindInvalidOperand, "Invalid number: 'NaN'"},
		{"overflow operand", "add", []string{"1e400", "1"}, KindInvalidOperand, "Invalid number: '1e400'"},
		{"divide by zero", "divide", []string{"10", "0"}, KindDivisionByZero, "Cannot divide by zero"},
		{"negative radicand", "sqrt", []string{"-4"}, KindNegativeRadicand, "Cannot calculate the square root of a negative number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Dispatch(tt.op, tt.operands)
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("error = %v (%T), want *Error", err, err)
			}
			if de.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", de.Kind, tt.kind)
			}
			if de.Error() != tt.message {
				t.Errorf("message = %q, want %q", de.Error(), tt.message)
			}
		})
	}
}

func TestDispatchCountCheckedBeforeParsing(t *testing.T) {
	// "abc" is never parsed: the count check fails first.
	_, err := Dispatch("subtract", []string{"abc"})
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindOperandCount {
		t.Fatalf("error = %v, want operand count error", err)
	}
}

func TestDispatchUnknownIgnoresOperands(t *testing.T) {
	for _, operands := range [][]string{nil, {"1"}, {"x", "y", "z"}} {
		_, err := Dispatch("root", operands)
		var de *Error
		if !errors.As(err, &de) || de.Kind != KindUnknownOperation {
			t.Errorf("Dispatch(root, %v) error = %v, want unknown operation", operands, err)
		}
		if !strings.Contains(err.Error(), "Unknown operation") {
			t.Errorf("message %q lacks %q", err.Error(), "Unknown operation")
		}
	}
}

func TestDispatchWrapsDomainErrors(t *testing.T) {
	_, err := Dispatch("divide", []string{"1", "0"})
	if !errors.Is(err, calculator.ErrDivisionByZero) {
		t.Errorf("errors.Is(%v, ErrDivisionByZero) = false", err)
	}
	_, err = Dispatch("sqrt", []string{"-1"})
	if !errors.Is(err, calculator.ErrNegativeRadicand) {
		t.Errorf("errors.Is(%v, ErrNegativeRadicand) = false", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{8, "8"},
		{8.0, "8"},
		{-3, "-3"},
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{5.0 / 3, "1.67"},
		{2.5, "2.50"},
		{-0.001, "0.00"},
		{0.005, "0.01"},
		{1e21, "1000000000000000000000"},
		{math.Inf(1), "Inf"},
		{math.Inf(-1), "-Inf"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOperationsTable(t *testing.T) {
	ops := Operations()
	want := []struct {
		name  string
		arity int
	}{
		{"add", 2}, {"subtract", 2}, {"multiply", 2}, {"divide", 2}, {"power", 2}, {"sqrt", 1},
	}
	if len(ops) != len(want) {
		t.Fatalf("Operations() returned %d entries, want %d", len(ops), len(want))
	}
	for i, w := range want {
		if ops[i].Name != w.name || ops[i].Arity != w.arity {
			t.Errorf("Operations()[%d] = %s/%d, want %s/%d", i, ops[i].Name, ops[i].Arity, w.name, w.arity)
		}
	}

	ops[0].Name = "mutated"
	if op, ok := Lookup("add"); !ok || op.Name != "add" {
		t.Error("Operations() exposed the internal table")
	}
}

func TestKindString(t *testing.T) {
	if got := KindDivisionByZero.String(); got != "division_by_zero" {
		t.Errorf("String() = %q", got)
	}
	if got := KindArithmetic.String(); got != "arithmetic" {
		t.Errorf("String() = %q", got)
	}
}

func TestDomainErrorUnclassified(t *testing.T) {
	cause := errors.New("overflow in accumulator")
	de := domainError("power", cause)

	if de.Kind != KindArithmetic || de.Operation != "power" {
		t.Errorf("error = %+v", de)
	}
	if !errors.Is(de, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if want := "Operation 'power' failed: overflow in accumulator"; de.Error() != want {
		t.Errorf("message = %q, want %q", de.Error(), want)
	}
}
