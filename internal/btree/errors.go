// Package btree implements the ordered multi-map index on top of the
// paged block storage engine: a B+-tree keyed by value.EntryValue,
// mapping to record references, supporting point lookup, range scans,
// and single-entry deletion without rebalancing merges.
package btree

import "errors"

var (
	// ErrNotFound is returned by Delete when no entry matches key.
	ErrNotFound = errors.New("btree: no matching entry")

	// ErrNotIndexable is returned when Insert/Delete/search operations
	// are given a key whose kind cannot participate in an index.
	ErrNotIndexable = errors.New("btree: value is not indexable")

	// ErrCorruptNode is returned when a stored node record cannot be
	// decoded, or violates a structural invariant on read.
	ErrCorruptNode = errors.New("btree: corrupt node record")
)
