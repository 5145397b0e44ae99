package table

import (
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/reactivedb/reactivedb/internal/btree"
	"github.com/reactivedb/reactivedb/internal/storage"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Kind distinguishes a table populated directly by clients (Source)
// from one populated entirely by the hook pipeline (Derived). Derived
// tables auto-register columns they have never seen before, since
// their schema is discovered from whatever a transform first produces.
type Kind int

const (
	Source Kind = iota
	Derived
)

// firstRecordBlock is the block a freshly created record store writes
// its first row to, used by Derived tables to recover a previously
// discovered schema across a restart.
const firstRecordBlock = 2

// Table combines one record store with one B+-tree index per indexable
// column.
type Table struct {
	Name string
	Kind Kind

	dir     string
	records *storage.Engine

	columns   []value.Column
	columnIdx map[string]int
	indexes   map[string]*btree.Tree
}

// Open opens (creating if necessary) a table's record store and
// per-column index files under dir.
func Open(dir, name string, columns []value.Column, kind Kind) (*Table, error) {
	eng, err := storage.Open(filepath.Join(dir, name+".db"), storage.Config{})
	if err != nil {
		return nil, err
	}

	t := &Table{
		Name:      name,
		Kind:      kind,
		dir:       dir,
		records:   eng,
		columnIdx: make(map[string]int),
		indexes:   make(map[string]*btree.Tree),
	}

	// Every table indexes _entryId, so a row can be located by the
	// identity Insert assigned it: invert-edit rollback and cascade
	// deletes both key off it.
	if err := t.addColumn(value.NewColumn(value.ColEntryID, value.TypeID)); err != nil {
		return nil, err
	}
	for _, c := range columns {
		if err := t.addColumn(c); err != nil {
			return nil, err
		}
	}

	if kind == Derived {
		if err := t.discoverColumnsFromFirstRecord(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// discoverColumnsFromFirstRecord reads the table's first-ever record,
// if one survived a restart, and registers any columns found in it
// that construction didn't already know about.
func (t *Table) discoverColumnsFromFirstRecord() error {
	sess, err := t.records.StartReadSession()
	if err != nil {
		return err
	}
	defer sess.End()

	empty, err := t.records.IsEmpty(sess, firstRecordBlock)
	if err != nil {
		return err
	}
	if empty {
		return nil
	}

	raw, err := t.records.ReadData(sess, firstRecordBlock)
	if err != nil {
		// A partially written or corrupt first record must not block
		// opening the table; auto-registration is best effort.
		return nil
	}
	var e value.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	for _, k := range e.Keys() {
		if _, ok := t.columnIdx[k]; ok {
			continue
		}
		v, _ := e.Get(k)
		if err := t.addColumn(value.NewColumn(k, dataTypeOf(v))); err != nil {
			return err
		}
	}
	return nil
}

// dataTypeOf maps a value's Kind to the equivalent DataType. The two
// enums share the same declaration order by design, so this is a
// direct conversion rather than a lookup.
func dataTypeOf(v value.EntryValue) value.DataType {
	return value.DataType(v.Kind)
}

func (t *Table) addColumn(c value.Column) error {
	c.IndexLoc = len(t.columns)
	t.columns = append(t.columns, c)
	t.columnIdx[c.Name] = c.IndexLoc
	if !c.Indexed {
		return nil
	}
	idx, err := btree.Open(filepath.Join(t.dir, t.Name+"_"+c.Name+".index"))
	if err != nil {
		return fmt.Errorf("table %s: open index for column %s: %w", t.Name, c.Name, err)
	}
	t.indexes[c.Name] = idx
	return nil
}

// Close releases the record store and every index file.
func (t *Table) Close() error {
	var firstErr error
	if err := t.records.Close(); err != nil {
		firstErr = err
	}
	for _, idx := range t.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Columns returns the table's column definitions in declaration order.
func (t *Table) Columns() []value.Column {
	out := make([]value.Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Insert assigns entry a fresh _entryId, indexes it on every indexed
// column present, and persists it. Source tables reject a column not
// already in their schema; derived tables register it on the fly.
func (t *Table) Insert(entry *value.Entry) (*value.Entry, error) {
	sess, err := t.records.StartWriteSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	e := entry.Clone()
	e.Set(value.ColEntryID, value.Identifier(uuid.NewString()))

	for _, k := range e.Keys() {
		if _, ok := t.columnIdx[k]; ok {
			continue
		}
		if t.Kind == Source {
			return nil, fmt.Errorf("table %s: %w: column %q", t.Name, ErrMismatchedInput, k)
		}
		v, _ := e.Get(k)
		if err := t.addColumn(value.NewColumn(k, dataTypeOf(v))); err != nil {
			return nil, err
		}
	}

	root, err := t.records.AllocateBlock(sess)
	if err != nil {
		return nil, err
	}

	indexed := make([]value.Column, 0, len(t.columns))
	for _, col := range t.columns {
		if !col.Indexed {
			continue
		}
		v, ok := e.Get(col.Name)
		if !ok {
			continue
		}
		if err := t.indexes[col.Name].Insert(v, root); err != nil {
			t.unindex(e, indexed, root)
			return nil, err
		}
		indexed = append(indexed, col)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		t.unindex(e, indexed, root)
		return nil, err
	}
	if _, err := t.records.WriteData(sess, raw, &root); err != nil {
		t.unindex(e, indexed, root)
		return nil, err
	}
	return e, nil
}

// unindex removes the index entries a failed Insert already placed for
// root, so no index is left referencing a record that was never
// written.
func (t *Table) unindex(e *value.Entry, indexed []value.Column, root uint32) {
	for _, col := range indexed {
		v, _ := e.Get(col.Name)
		t.indexes[col.Name].DeleteRef(v, root)
	}
}

// fetch reads and decodes the record at root.
func (t *Table) fetch(sess *storage.Session, root uint32) (*value.Entry, error) {
	raw, err := t.records.ReadData(sess, root)
	if err != nil {
		return nil, err
	}
	e := value.NewEntry()
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *Table) indexFor(column string) (*btree.Tree, error) {
	col, ok := t.columnIdx[column]
	if !ok {
		// A derived table's schema is discovered from what its
		// transform produces; until the first matching row arrives, a
		// never-seen column simply has no rows rather than being a
		// caller error.
		if t.Kind == Derived {
			return nil, nil
		}
		return nil, fmt.Errorf("table %s: %w: %q", t.Name, ErrUnknownColumn, column)
	}
	if !t.columns[col].Indexed {
		return nil, fmt.Errorf("table %s: %w: %q", t.Name, ErrColumnNotIndexed, column)
	}
	return t.indexes[column], nil
}

// FindOne returns the first row whose column equals key, if any.
func (t *Table) FindOne(column string, key value.EntryValue) (*value.Entry, error) {
	idx, err := t.indexFor(column)
	if err != nil || idx == nil {
		return nil, err
	}
	sess, err := t.records.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	e, err := idx.SearchExact(key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return t.fetch(sess, e.Left)
}

// GetAll returns every live row whose column equals key.
func (t *Table) GetAll(column string, key value.EntryValue) ([]*value.Entry, error) {
	idx, err := t.indexFor(column)
	if err != nil || idx == nil {
		return nil, err
	}
	matches, err := idx.GetAll(key)
	if err != nil {
		return nil, err
	}
	return t.fetchAll(matches)
}

// LessThan returns every live row whose column compares less than (or,
// with inclusive, less-than-or-equal-to) key.
func (t *Table) LessThan(column string, key value.EntryValue, inclusive bool) ([]*value.Entry, error) {
	idx, err := t.indexFor(column)
	if err != nil || idx == nil {
		return nil, err
	}
	matches, err := idx.LessThan(key, inclusive)
	if err != nil {
		return nil, err
	}
	return t.fetchAll(matches)
}

// GreaterThan returns every live row whose column compares
// greater-than-or-equal-to key.
func (t *Table) GreaterThan(column string, key value.EntryValue) ([]*value.Entry, error) {
	idx, err := t.indexFor(column)
	if err != nil || idx == nil {
		return nil, err
	}
	matches, err := idx.GreaterThan(key)
	if err != nil {
		return nil, err
	}
	return t.fetchAll(matches)
}

func (t *Table) fetchAll(matches []btree.NodeEntry) ([]*value.Entry, error) {
	sess, err := t.records.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	out := make([]*value.Entry, 0, len(matches))
	for _, m := range matches {
		e, err := t.fetch(sess, m.Left)
		if err != nil {
			continue // a stale index entry past a concurrent delete; skip rather than fail the whole scan
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete removes every row whose column equals key, returning the
// deleted rows.
func (t *Table) Delete(column string, key value.EntryValue) ([]*value.Entry, error) {
	idx, err := t.indexFor(column)
	if err != nil || idx == nil {
		return nil, err
	}

	sess, err := t.records.StartWriteSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	matches, err := idx.GetAll(key)
	if err != nil {
		return nil, err
	}

	var deleted []*value.Entry
	for _, m := range matches {
		e, err := t.fetch(sess, m.Left)
		if err != nil {
			continue
		}
		if err := t.records.DeleteData(sess, m.Left); err != nil {
			return deleted, err
		}
		for _, col := range t.columns {
			if !col.Indexed {
				continue
			}
			v, ok := e.Get(col.Name)
			if !ok {
				continue
			}
			t.indexes[col.Name].DeleteRef(v, m.Left)
		}
		deleted = append(deleted, e)
	}
	return deleted, nil
}
