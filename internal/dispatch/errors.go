package dispatch

import "fmt"

// Kind classifies a dispatch failure.
type Kind int

const (
	KindOperandCount Kind = iota + 1
	KindUnknownOperation
	KindInvalidOperand
	KindDivisionByZero
	KindNegativeRadicand
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindOperandCount:
		return "operand_count"
	case KindUnknownOperation:
		return "unknown_operation"
	case KindInvalidOperand:
		return "invalid_operand"
	case KindDivisionByZero:
		return "division_by_zero"
	case KindNegativeRadicand:
		return "negative_radicand"
	case KindArithmetic:
		return "arithmetic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure returned by Dispatch. Message is the user-facing
// text and is part of the command's output contract.
type Error struct {
	Kind      Kind
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func operandCountError(op Operation) *Error {
	return &Error{
		Kind:      KindOperandCount,
		Operation: op.Name,
		Message:   fmt.Sprintf("Operation '%s' requires %s", op.Name, arityPhrase(op.Arity)),
	}
}

func unknownOperationError(name string) *Error {
	return &Error{
		Kind:      KindUnknownOperation,
		Operation: name,
		Message:   fmt.Sprintf("Unknown operation '%s'", name),
	}
}

func invalidOperandError(op, text string, err error) *Error {
	return &Error{
		Kind:      KindInvalidOperand,
		Operation: op,
		Message:   fmt.Sprintf("Invalid number: '%s'", text),
		Err:       err,
	}
}

func arityPhrase(n int) string {
	switch n {
	case 1:
		return "one number"
	case 2:
		return "two numbers"
	default:
		return fmt.Sprintf("%d numbers", n)
	}
}
