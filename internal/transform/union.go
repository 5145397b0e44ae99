package transform

import (
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// UnionHook merges committed rows from one of several source tables
// into a shared derived table, keyed by a foreign value each source
// carries under a (possibly different) column name. One UnionHook
// instance is registered per (table, foreign_key) pair named in the
// transform's configuration; all instances for one derived table share
// its name but each knows only its own source table and key column.
//
// A union row can be built from more than one source row, so deleting
// one contributing source row does not imply the merged row should
// vanish — it may still be valid from the other side of the union.
// Union therefore does not cascade deletes; Function, Filter, Action,
// and Aggregate do, whose derived rows are 1:1 or group-keyed.
type UnionHook struct {
	SourceTable  string
	DerivedTable string
	ForeignKey   string // column on SourceTable carrying the union match value
}

func (h *UnionHook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert}
}

func (h *UnionHook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, db hook.Database, _ hook.Workspace) ([]hook.DBEdit, error) {
	var out []hook.DBEdit
	for _, c := range committedEdits {
		row, _ := rowEntry(c.Entry)

		foreign, ok := row.Get(h.ForeignKey)
		if !ok {
			continue
		}

		existing, err := db.GetAll(h.DerivedTable, value.ColUnionMatchingKey, foreign)
		if err != nil {
			return nil, err
		}

		var merged *value.Entry
		if len(existing) > 0 {
			merged = existing[0].Clone()
		} else {
			merged = value.NewEntry()
			merged.Set(value.ColUnionMatchingKey, foreign)
		}
		for _, k := range row.Keys() {
			if k == value.ColEntryID {
				continue
			}
			v, _ := row.Get(k)
			merged.Set(k, v)
		}

		out = append(out, hook.NewUpdate(h.DerivedTable, merged, value.ColUnionMatchingKey, foreign))
	}
	return out, nil
}
