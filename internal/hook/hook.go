// Package hook defines the pipeline contract every derived-table
// behavior (transform, listener) implements: a stateful object
// attached to one table that observes insert/delete events and may
// rewrite the edit stream flowing through them.
package hook

import "github.com/reactivedb/reactivedb/internal/value"

// Event identifies the point in the insert/delete pipeline a hook
// fires at. PreInsert and PreDelete see the requested edits before
// they are applied locally; PostInsert and PostDelete see what was
// actually committed.
type Event int

const (
	PreInsert Event = iota
	PostInsert
	PreDelete
	PostDelete
)

func (e Event) String() string {
	switch e {
	case PreInsert:
		return "PreInsert"
	case PostInsert:
		return "PostInsert"
	case PreDelete:
		return "PreDelete"
	case PostDelete:
		return "PostDelete"
	default:
		return "Unknown"
	}
}

// EditKind tags a DBEdit's requested operation.
type EditKind int

const (
	Insert EditKind = iota
	Delete
	Update
)

// DBEdit is a request token flowing through the pipeline: either an
// Insert of Entry, a Delete keyed by (Column, Key), or an Update that
// replaces every row matching (Column, Key) with Entry.
type DBEdit struct {
	Table  string
	Kind   EditKind
	Entry  *value.Entry
	Column string
	Key    value.EntryValue
}

func NewInsert(table string, entry *value.Entry) DBEdit {
	return DBEdit{Table: table, Kind: Insert, Entry: entry}
}

func NewDelete(table, column string, key value.EntryValue) DBEdit {
	return DBEdit{Table: table, Kind: Delete, Column: column, Key: key}
}

func NewUpdate(table string, entry *value.Entry, column string, key value.EntryValue) DBEdit {
	return DBEdit{Table: table, Kind: Update, Entry: entry, Column: column, Key: key}
}

// CommittedEdit is a result token: an edit that has actually been
// applied to Table, producing Entry.
type CommittedEdit struct {
	Table string
	Entry *value.Entry
}

// Database is the subset of the database manager a hook needs: enough
// to look up rows in other tables while deciding how to rewrite an
// edit stream, without granting hooks direct access to transaction or
// connection state.
type Database interface {
	FindOne(table, column string, key value.EntryValue) (*value.Entry, error)
	GetAll(table, column string, key value.EntryValue) ([]*value.Entry, error)
}

// Workspace carries per-invocation, hook-kind-specific state (e.g. the
// action sandbox's working directory). Most hooks ignore it.
type Workspace interface{}

// Hook is subscribed to a subset of Events on one table. Invoke
// receives the edits proposed so far (requestedEdits for Pre* events,
// committedEdits for Post* events) and may return a replacement edit
// list; returning nil leaves the stream unchanged.
type Hook interface {
	Events() []Event
	Invoke(event Event, requestedEdits []DBEdit, committedEdits []CommittedEdit, db Database, ws Workspace) ([]DBEdit, error)
}
