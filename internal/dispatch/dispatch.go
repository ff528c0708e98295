// Package dispatch routes a named operation and its raw operands to the
// arithmetic library: operand-count validation, operation lookup, operand
// parsing, invocation, and display formatting.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/organic-programming/calculate/internal/calculator"
)

// Operation is one row of the dispatch table.
type Operation struct {
	Name  string
	Arity int
	Usage string

	apply func(args []float64) (float64, error)
}

func binary(fn func(a, b float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		return fn(args[0], args[1]), nil
	}
}

// Adding an operation is a table edit; the order here is the order
// Operations reports.
var table = []Operation{
	{Name: "add", Arity: 2, Usage: "add <a> <b>", apply: binary(calculator.Add)},
	{Name: "subtract", Arity: 2, Usage: "subtract <a> <b>", apply: binary(calculator.Subtract)},
	{Name: "multiply", Arity: 2, Usage: "multiply <a> <b>", apply: binary(calculator.Multiply)},
	{Name: "divide", Arity: 2, Usage: "divide <a> <b>", apply: func(args []float64) (float64, error) {
		return calculator.Divide(args[0], args[1])
	}},
	{Name: "power", Arity: 2, Usage: "power <a> <b>", apply: binary(calculator.Power)},
	{Name: "sqrt", Arity: 1, Usage: "sqrt <a>", apply: func(args []float64) (float64, error) {
		return calculator.SquareRoot(args[0])
	}},
}

var byName = func() map[string]Operation {
	m := make(map[string]Operation, len(table))
	for _, op := range table {
		m[op.Name] = op
	}
	return m
}()

// Operations returns the known operations in declaration order.
func Operations() []Operation {
	out := make([]Operation, len(table))
	copy(out, table)
	return out
}

// Lookup finds an operation by name. Names are case-insensitive and
// surrounding whitespace is ignored.
func Lookup(name string) (Operation, bool) {
	op, ok := byName[normalizeName(name)]
	return op, ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Result is a successful calculation.
type Result struct {
	Operation string
	Operands  []float64
	Value     float64
}

// Display renders the value with the shared display policy.
func (r Result) Display() string {
	return FormatValue(r.Value)
}

// Dispatch validates and runs one invocation. Every failure is an *Error.
func Dispatch(name string, operands []string) (Result, error) {
	op, ok := Lookup(name)
	if !ok {
		return Result{}, unknownOperationError(name)
	}
	if len(operands) != op.Arity {
		return Result{}, operandCountError(op)
	}

	values := make([]float64, len(operands))
	for i, text := range operands {
		v, err := ParseOperand(text)
		if err != nil {
			return Result{}, invalidOperandError(op.Name, text, err)
		}
		values[i] = v
	}

	value, err := op.apply(values)
	if err != nil {
		return Result{}, domainError(op.Name, err)
	}

	return Result{Operation: op.Name, Operands: values, Value: value}, nil
}

func domainError(op string, err error) *Error {
	switch {
	case errors.Is(err, calculator.ErrDivisionByZero):
		return &Error{Kind: KindDivisionByZero, Operation: op, Message: "Cannot divide by zero", Err: err}
	case errors.Is(err, calculator.ErrNegativeRadicand):
		return &Error{
			Kind:      KindNegativeRadicand,
			Operation: op,
			Message:   "Cannot calculate the square root of a negative number",
			Err:       err,
		}
	default:
		return &Error{
			Kind:      KindArithmetic,
			Operation: op,
			Message:   fmt.Sprintf("Operation '%s' failed: %v", op, err),
			Err:       err,
		}
	}
}

// ParseOperand parses a decimal or scientific number. Non-finite and
// out-of-range values are rejected.
func ParseOperand(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("non-finite operand %q", text)
	}
	return v, nil
}

// FormatValue is the display policy shared by every success path:
// integral values without a decimal point, everything else rounded to
// two decimals.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v):
		if v == 0 {
			return "0"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s := strconv.FormatFloat(v, 'f', 2, 64)
		if s == "-0.00" {
			return "0.00"
		}
		return s
	}
}
