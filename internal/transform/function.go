package transform

import (
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// FunctionHook evaluates a fixed set of "column ~ expression"
// statements against every committed row of SourceTable, emitting one
// derived row per source row into DerivedTable tagged with
// _sourceEntryId.
type FunctionHook struct {
	SourceTable  string
	DerivedTable string
	Statements   []Statement
}

func (h *FunctionHook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert, hook.PostDelete}
}

func (h *FunctionHook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, _ hook.Database, _ hook.Workspace) ([]hook.DBEdit, error) {
	if event == hook.PostDelete {
		return cascadeDelete(h.DerivedTable, committedEdits), nil
	}

	var out []hook.DBEdit
	for _, c := range committedEdits {
		row, id := rowEntry(c.Entry)
		if id == "" {
			continue
		}

		derived := value.NewEntry()
		derived.Set(value.ColSourceEntryID, value.Identifier(id))
		for _, stmt := range h.Statements {
			v, err := stmt.Expr.Eval(row)
			if err != nil {
				// A statement that fails to evaluate (e.g. a missing
				// column) drops only its own assignment; the derived
				// row still carries _sourceEntryId and every other
				// successfully computed column.
				continue
			}
			derived.Set(stmt.Column, v)
		}
		out = append(out, hook.NewInsert(h.DerivedTable, derived))
	}
	return out, nil
}
