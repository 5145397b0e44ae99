package transform

import (
	"github.com/reactivedb/reactivedb/internal/expr"
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// FilterHook copies a committed row of SourceTable into DerivedTable,
// tagged with _sourceEntryId, whenever Predicate evaluates true
// against it.
type FilterHook struct {
	SourceTable  string
	DerivedTable string
	Predicate    *expr.Expr
}

func (h *FilterHook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert, hook.PostDelete}
}

func (h *FilterHook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, _ hook.Database, _ hook.Workspace) ([]hook.DBEdit, error) {
	if event == hook.PostDelete {
		return cascadeDelete(h.DerivedTable, committedEdits), nil
	}

	var out []hook.DBEdit
	for _, c := range committedEdits {
		row, id := rowEntry(c.Entry)
		if id == "" {
			continue
		}

		result, err := h.Predicate.Eval(row)
		if err != nil || result.Kind != value.KindBool {
			// A predicate that errors or yields a non-boolean drops
			// the row rather than failing the source insert.
			continue
		}
		if !result.Bool {
			continue
		}

		derived := row.Clone()
		derived.Set(value.ColSourceEntryID, value.Identifier(id))
		out = append(out, hook.NewInsert(h.DerivedTable, derived))
	}
	return out, nil
}
