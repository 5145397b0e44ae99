package transform

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/reactivedb/reactivedb/internal/action"
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// ActionHook hands each committed source row to an external action
// module and inserts whatever it returns as the derived row, tagged
// with _sourceEntryId.
type ActionHook struct {
	SourceTable  string
	DerivedTable string
	ActionName   string
	Runner       action.Runner
	Workspace    action.Workspace
}

func (h *ActionHook) Events() []hook.Event {
	return []hook.Event{hook.PostInsert, hook.PostDelete}
}

func (h *ActionHook) Invoke(event hook.Event, _ []hook.DBEdit, committedEdits []hook.CommittedEdit, _ hook.Database, ws hook.Workspace) ([]hook.DBEdit, error) {
	if event == hook.PostDelete {
		return cascadeDelete(h.DerivedTable, committedEdits), nil
	}

	var out []hook.DBEdit
	for _, c := range committedEdits {
		row, id := rowEntry(c.Entry)
		if id == "" {
			continue
		}

		in, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}

		actionWS, _ := ws.(action.Workspace)
		if actionWS == nil {
			actionWS = h.Workspace
		}

		raw, err := h.Runner.Run(context.Background(), h.ActionName, in, actionWS)
		if err != nil {
			continue
		}

		derived := value.NewEntry()
		if err := json.Unmarshal(raw, derived); err != nil {
			continue
		}
		derived.Set(value.ColSourceEntryID, value.Identifier(id))
		out = append(out, hook.NewInsert(h.DerivedTable, derived))
	}
	return out, nil
}
