// Package dbengine implements the insert/delete pipeline: the Database
// that owns every open table, runs the
// PreInsert/PostInsert/PreDelete/PostDelete hook chain around each
// edit, recursively dispatches edits a hook fans out to other tables,
// and rolls an entire top-level call back to its starting state if any
// step downstream fails.
package dbengine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/table"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Database owns every open table and the hooks attached to each, and
// drives the edit pipeline. All exported methods are safe for
// concurrent use; mutations are serialised so one logical edit session
// has exclusive access to all tables for its whole fan-out.
type Database struct {
	// editMu serialises top-level Insert/DeleteAll calls: one logical
	// mutation session has exclusive access to all tables for its whole
	// fan-out. mu only guards the table/hook maps and may be taken and
	// released many times inside one pipeline run.
	editMu sync.Mutex

	mu        sync.Mutex
	tables    map[string]*table.Table
	hooks     map[string][]hook.Hook
	workspace hook.Workspace
}

// New returns a Database with no tables open. ws is passed to every
// hook invocation (only action hooks currently look at it).
func New(ws hook.Workspace) *Database {
	return &Database{
		tables:    make(map[string]*table.Table),
		hooks:     make(map[string][]hook.Hook),
		workspace: ws,
	}
}

// AddTable registers an already-open table with the manager. Tables
// must be added before any hook referencing them is registered or any
// edit naming them is dispatched.
func (db *Database) AddTable(t *table.Table) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[t.Name] = t
}

// TableNames returns every table name currently registered, in no
// particular order. Used by callers that need to release every
// table's resources (e.g. bootstrap.Result.Close) without tracking
// the set separately.
func (db *Database) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.tables))
	for name := range db.tables {
		out = append(out, name)
	}
	return out
}

// Table returns the named table, or nil if it was never added.
func (db *Database) Table(name string) *table.Table {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tables[name]
}

// RegisterHook attaches h to tableName, subscribed to whatever events
// h.Events() names. Hooks fire in registration order within one event.
func (db *Database) RegisterHook(tableName string, h hook.Hook) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hooks[tableName] = append(db.hooks[tableName], h)
}

// FindOne implements hook.Database.
func (db *Database) FindOne(tableName, column string, key value.EntryValue) (*value.Entry, error) {
	t, err := db.table(tableName)
	if err != nil {
		return nil, err
	}
	return t.FindOne(column, key)
}

// GetAll implements hook.Database.
func (db *Database) GetAll(tableName, column string, key value.EntryValue) ([]*value.Entry, error) {
	t, err := db.table(tableName)
	if err != nil {
		return nil, err
	}
	return t.GetAll(column, key)
}

// LessThan answers a range query below key.
func (db *Database) LessThan(tableName, column string, key value.EntryValue, inclusive bool) ([]*value.Entry, error) {
	t, err := db.table(tableName)
	if err != nil {
		return nil, err
	}
	return t.LessThan(column, key, inclusive)
}

// GreaterThan answers a range query at or above key.
func (db *Database) GreaterThan(tableName, column string, key value.EntryValue) ([]*value.Entry, error) {
	t, err := db.table(tableName)
	if err != nil {
		return nil, err
	}
	return t.GreaterThan(column, key)
}

func (db *Database) table(name string) (*table.Table, error) {
	db.mu.Lock()
	t, ok := db.tables[name]
	db.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

func (db *Database) hooksFor(tableName string, event hook.Event) []hook.Hook {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []hook.Hook
	for _, h := range db.hooks[tableName] {
		for _, e := range h.Events() {
			if e == event {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// Insert is the public entry point for inserting one row into
// tableName, started as a fresh transaction. On any downstream failure
// every edit applied so far under this call (including ones fanned out
// to other tables) is rolled back and the error is returned.
func (db *Database) Insert(tableName string, entry *value.Entry) ([]hook.CommittedEdit, error) {
	db.editMu.Lock()
	defer db.editMu.Unlock()

	txn := newTransaction(uuid.NewString())
	committed, err := db.insertEntry(txn, tableName, entry, tableName)
	if err != nil {
		db.rollback(txn)
		return nil, err
	}
	return committed, nil
}

// DeleteAll is the public entry point for deleting every row of
// tableName whose column equals key, cascading through whatever hooks
// are attached.
func (db *Database) DeleteAll(tableName, column string, key value.EntryValue) ([]hook.CommittedEdit, error) {
	db.editMu.Lock()
	defer db.editMu.Unlock()

	txn := newTransaction(uuid.NewString())
	committed, err := db.deleteEntries(txn, tableName, column, key, tableName)
	if err != nil {
		db.rollback(txn)
		return nil, err
	}
	return committed, nil
}

// insertEntry runs the full insert pipeline for one (table, entry)
// pair under an already-open transaction: pre-hooks, local apply,
// foreign dispatch, post-hook fan-out.
func (db *Database) insertEntry(txn *transaction, tableName string, entry *value.Entry, sourceTable string) ([]hook.CommittedEdit, error) {
	edits, err := db.runPreHooks(tableName, hook.PreInsert, []hook.DBEdit{hook.NewInsert(tableName, entry)})
	if err != nil {
		return nil, err
	}

	local, foreign := partition(tableName, edits)

	var committed []hook.CommittedEdit
	for _, e := range local {
		if e.Kind == hook.Delete {
			return nil, fmt.Errorf("%w: insert pipeline on %q received a bare Delete", ErrProgrammerError, tableName)
		}
		c, err := db.applyLocalInsert(txn, tableName, e)
		if err != nil {
			return nil, err
		}
		committed = append(committed, c)
	}

	for _, e := range foreign {
		cs, err := db.dispatch(txn, e, tableName)
		if err != nil {
			return nil, err
		}
		committed = append(committed, cs...)
	}

	fanout, err := db.runPostHooks(tableName, hook.PostInsert, committed)
	if err != nil {
		return nil, err
	}
	for _, e := range fanout {
		cs, err := db.dispatch(txn, e, tableName)
		if err != nil {
			return nil, err
		}
		committed = append(committed, cs...)
	}

	return committed, nil
}

// deleteEntries runs the full delete pipeline for one (table, column,
// key) selector under an already-open transaction.
func (db *Database) deleteEntries(txn *transaction, tableName, column string, key value.EntryValue, sourceTable string) ([]hook.CommittedEdit, error) {
	edits, err := db.runPreHooks(tableName, hook.PreDelete, []hook.DBEdit{hook.NewDelete(tableName, column, key)})
	if err != nil {
		return nil, err
	}

	local, foreign := partition(tableName, edits)

	var committed []hook.CommittedEdit
	for _, e := range local {
		if e.Kind != hook.Delete {
			return nil, fmt.Errorf("%w: delete pipeline on %q received a non-Delete local edit", ErrProgrammerError, tableName)
		}
		t, err := db.table(tableName)
		if err != nil {
			return nil, err
		}
		rows, err := t.Delete(e.Column, e.Key)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			txn.record(hook.NewInsert(tableName, row))
			committed = append(committed, hook.CommittedEdit{Table: tableName, Entry: row})
		}
	}

	for _, e := range foreign {
		cs, err := db.dispatch(txn, e, tableName)
		if err != nil {
			return nil, err
		}
		committed = append(committed, cs...)
	}

	fanout, err := db.runPostHooks(tableName, hook.PostDelete, committed)
	if err != nil {
		return nil, err
	}
	for _, e := range fanout {
		cs, err := db.dispatch(txn, e, tableName)
		if err != nil {
			return nil, err
		}
		committed = append(committed, cs...)
	}

	return committed, nil
}

// applyLocalInsert applies one local (same-table) edit from the
// PreInsert-transformed list: an Insert is applied directly, an Update
// is expanded into a delete of every row matching (col, key) followed
// by an insert of the replacement entry.
func (db *Database) applyLocalInsert(txn *transaction, tableName string, e hook.DBEdit) (hook.CommittedEdit, error) {
	if e.Kind == hook.Update {
		if _, err := db.deleteEntries(txn, tableName, e.Column, e.Key, tableName); err != nil {
			return hook.CommittedEdit{}, err
		}
	}

	t, err := db.table(tableName)
	if err != nil {
		return hook.CommittedEdit{}, err
	}
	stored, err := t.Insert(e.Entry)
	if err != nil {
		return hook.CommittedEdit{}, err
	}
	if id, ok := stored.EntryID(); ok {
		txn.record(hook.NewDelete(tableName, value.ColEntryID, value.Identifier(id)))
	}
	return hook.CommittedEdit{Table: tableName, Entry: stored}, nil
}

// dispatch recursively applies an edit a hook produced, regardless of
// whether it targets the table already being processed or a different
// one: Insert re-enters insertEntry, Delete re-enters deleteEntries,
// and Update expands to a delete followed by an insert.
func (db *Database) dispatch(txn *transaction, e hook.DBEdit, sourceTable string) ([]hook.CommittedEdit, error) {
	switch e.Kind {
	case hook.Insert:
		return db.insertEntry(txn, e.Table, e.Entry, sourceTable)
	case hook.Update:
		if _, err := db.deleteEntries(txn, e.Table, e.Column, e.Key, sourceTable); err != nil {
			return nil, err
		}
		return db.insertEntry(txn, e.Table, e.Entry, sourceTable)
	case hook.Delete:
		return db.deleteEntries(txn, e.Table, e.Column, e.Key, sourceTable)
	default:
		return nil, fmt.Errorf("%w: unknown edit kind on %q", ErrProgrammerError, e.Table)
	}
}

// runPreHooks threads edits through every hook subscribed to event in
// registration order; each hook sees the previous hook's output, and a
// nil return leaves the list unchanged.
func (db *Database) runPreHooks(tableName string, event hook.Event, edits []hook.DBEdit) ([]hook.DBEdit, error) {
	for _, h := range db.hooksFor(tableName, event) {
		replacement, err := h.Invoke(event, edits, nil, db, db.workspace)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			edits = replacement
		}
	}
	return edits, nil
}

// runPostHooks feeds the same committed-edit list to every hook
// subscribed to event and concatenates whatever each one fans out;
// unlike Pre hooks, Post hooks do not chain off each other's output
// since each is reacting independently to what already happened.
func (db *Database) runPostHooks(tableName string, event hook.Event, committed []hook.CommittedEdit) ([]hook.DBEdit, error) {
	var out []hook.DBEdit
	for _, h := range db.hooksFor(tableName, event) {
		fanout, err := h.Invoke(event, nil, committed, db, db.workspace)
		if err != nil {
			return nil, err
		}
		out = append(out, fanout...)
	}
	return out, nil
}

// partition splits edits into those targeting tableName (applied
// directly) and those targeting some other table (dispatched
// recursively).
func partition(tableName string, edits []hook.DBEdit) (local, foreign []hook.DBEdit) {
	for _, e := range edits {
		if e.Table == tableName {
			local = append(local, e)
		} else {
			foreign = append(foreign, e)
		}
	}
	return local, foreign
}

// rollback undoes every edit recorded on txn, most recent first,
// applying the raw table operation directly so no hook fires again
// and the walk-back cannot loop. Rollback is best-effort: a failure
// partway through is not itself retried, since the transaction is
// already being abandoned.
func (db *Database) rollback(txn *transaction) {
	for i := len(txn.invert) - 1; i >= 0; i-- {
		e := txn.invert[i]
		t, err := db.table(e.Table)
		if err != nil {
			continue
		}
		switch e.Kind {
		case hook.Insert:
			t.Insert(e.Entry)
		case hook.Delete:
			t.Delete(e.Column, e.Key)
		}
	}
}
