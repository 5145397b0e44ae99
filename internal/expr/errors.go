// Package expr implements the small expression language that backs
// Function, Filter, and Aggregate transform statements: column
// references, literals, arithmetic, comparisons, and boolean
// connectives, evaluated against one value.Entry row.
package expr

import "errors"

var (
	// ErrSyntax is returned for any lexing/parsing failure.
	ErrSyntax = errors.New("expr: syntax error")

	// ErrUnknownColumn is returned when an identifier does not name a
	// column present in the row being evaluated.
	ErrUnknownColumn = errors.New("expr: unknown column")

	// ErrTypeMismatch is returned when an operator is applied to
	// operand kinds it does not support.
	ErrTypeMismatch = errors.New("expr: type mismatch")

	// ErrNotBoolean is returned when a Filter predicate evaluates to a
	// non-boolean value.
	ErrNotBoolean = errors.New("expr: predicate did not evaluate to a boolean")
)
