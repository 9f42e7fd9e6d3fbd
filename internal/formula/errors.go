// Package formula implements the sandboxed expression language used by
// administrator-authored price and time formulas.
//
// Formulas are tokenized, parsed into an AST by a recursive-descent parser
// and evaluated against a Context of resolved field attributes. Only
// arithmetic, comparison, logical and ternary operators are supported; there
// are no assignments, calls or loops, and only names present in the Context
// can be read.
package formula

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFormula      = errors.New("formula is empty")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownAttribute  = errors.New("unknown attribute")
	ErrNonNumericResult  = errors.New("formula result is not a number")
	ErrNonFiniteResult   = errors.New("formula result is not finite")
	ErrUnbalancedParens  = errors.New("unbalanced parentheses")
	ErrUnbalancedTernary = errors.New("unbalanced ternary operator")
)

// SyntaxError reports a formula rejected by the tokenizer, validator or parser.
// Pos is a byte offset into the rendered source, or -1 when not applicable.
type SyntaxError struct {
	Pos int
	Msg string
	Err error
}

func (e *SyntaxError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("formula syntax error: %s", e.Msg)
	}
	return fmt.Sprintf("formula syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

func syntaxErrorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// EvaluationError wraps any failure while evaluating a named formula.
type EvaluationError struct {
	Formula string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Formula == "" {
		return fmt.Sprintf("evaluate formula: %v", e.Err)
	}
	return fmt.Sprintf("evaluate formula %q: %v", e.Formula, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
