// Package table combines one record store and N column indexes into a
// row-oriented table with point, range, and equality-set access,
// matching the interleaving of storage.Engine and btree.Tree that the
// B+-tree index package builds on.
package table

import "errors"

var (
	// ErrMismatchedInput is returned when an inserted entry carries a
	// column absent from a source table's fixed schema.
	ErrMismatchedInput = errors.New("table: entry has column not present in schema")

	// ErrColumnNotIndexed is returned when a range/equality query names
	// a column that has no backing B+-tree index.
	ErrColumnNotIndexed = errors.New("table: column is not indexed")

	// ErrUnknownColumn is returned when a query names a column the
	// table has never seen.
	ErrUnknownColumn = errors.New("table: unknown column")

	// ErrRecordNotFound is returned when a referenced record root has
	// no live content.
	ErrRecordNotFound = errors.New("table: record not found")
)
