// Package storage implements the paged block storage engine: a single
// file laid out as an array of fixed-size blocks, exposing
// variable-length "records" as singly-linked chains of blocks with
// free-block reuse and a bounded in-memory cache. This is the bottom
// layer of ReactiveDB; the B+-tree index and table layers are built on
// top of it.
package storage

import "errors"

var (
	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("storage: engine is closed")

	// ErrReadOnlySession is returned when a mutating operation is
	// given a read session instead of a write session.
	ErrReadOnlySession = errors.New("storage: operation requires a write session")

	// ErrSessionReused is returned when an operation is given a
	// session that has already ended.
	ErrSessionReused = errors.New("storage: session already ended")

	// ErrRootBlockReserved is returned if a caller attempts to free
	// block 1, which is permanently reserved (allocation never hands
	// it out).
	ErrRootBlockReserved = errors.New("storage: block 1 is reserved and cannot be allocated or freed")

	// ErrCorruptChain is returned when a block chain cannot be walked
	// consistently (e.g. a next-pointer referencing an unallocated
	// block beyond the file, for V2's checksum mismatch).
	ErrCorruptChain = errors.New("storage: corrupt block chain")

	// ErrLocked is returned when a second process attempts to open a
	// data file already held by this process's engine. This is a
	// fail-fast guard, not support for concurrent processes.
	ErrLocked = errors.New("storage: file is already open by another process")
)
