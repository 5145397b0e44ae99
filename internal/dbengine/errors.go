package dbengine

import "errors"

var (
	// ErrUnknownTable is returned when an edit or query names a table
	// the Database has never opened.
	ErrUnknownTable = errors.New("dbengine: unknown table")

	// ErrProgrammerError marks an edit shape the pipeline never
	// expects from a correctly written hook, e.g. a bare Delete
	// targeting the same table an insert is populating. It indicates
	// a broken hook, not bad client input.
	ErrProgrammerError = errors.New("dbengine: hook produced an invalid edit for this pipeline stage")
)
