package transform

import (
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// AggregateHook folds every assignment Statement across all
// SourceTable rows sharing a group value, re-deriving the single
// DerivedTable row keyed by _aggregationKey = group value whenever any
// member row is inserted or deleted.
type AggregateHook struct {
	SourceTable  string
	DerivedTable string
	GroupColumn  string
	Statements   []Statement
}

func (h *AggregateHook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert, hook.PostDelete}
}

func (h *AggregateHook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, db hook.Database, _ hook.Workspace) ([]hook.DBEdit, error) {
	seen := make(map[string]bool)
	var out []hook.DBEdit
	for _, c := range committedEdits {
		row, _ := rowEntry(c.Entry)
		group, ok := row.Get(h.GroupColumn)
		if !ok {
			continue
		}
		key, err := valueKey(group)
		if err != nil {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		members, err := db.GetAll(h.SourceTable, h.GroupColumn, group)
		if err != nil {
			return nil, err
		}

		if len(members) == 0 {
			out = append(out, hook.NewDelete(h.DerivedTable, value.ColAggregationKey, group))
			continue
		}

		result := h.fold(members)
		result.Set(value.ColAggregationKey, group)
		out = append(out, hook.NewUpdate(h.DerivedTable, result, value.ColAggregationKey, group))
	}
	return out, nil
}

// fold threads an accumulator across members in order, running each
// statement's expression against that member's row plus the
// accumulator's current value for the statement's own column exposed
// under memo.<column>, then storing the result both as the visible
// column and as the next memo seed.
func (h *AggregateHook) fold(members []*value.Entry) *value.Entry {
	acc := value.NewEntry()
	for _, m := range members {
		for _, stmt := range h.Statements {
			ctx := m.Clone()
			if prev, ok := acc.Get(stmt.Column); ok {
				ctx.Set(value.MemoPrefix+stmt.Column, prev)
			}
			v, err := stmt.Expr.Eval(*ctx)
			if err != nil {
				continue
			}
			acc.Set(stmt.Column, v)
		}
	}
	return acc
}

// valueKey renders an EntryValue as a stable map key for dedup purposes
// within one Invoke call, via its own JSON encoding. It need not be a
// total order, only collision-free for values that legitimately
// differ.
func valueKey(v value.EntryValue) (string, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
