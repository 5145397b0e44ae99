package dbengine

import "github.com/reactivedb/reactivedb/internal/hook"

// transaction tracks the invert-edits needed to roll back one
// top-level Insert/DeleteAll call if any step downstream fails. Edits
// recorded here are kept in application order and replayed
// back-to-front on failure, so a later edit (which may depend on an
// earlier one having already happened) is undone before the edit it
// depended on.
type transaction struct {
	id     string
	invert []hook.DBEdit
}

func newTransaction(id string) *transaction {
	return &transaction{id: id}
}

// record appends the edit that undoes one already-applied step.
func (t *transaction) record(e hook.DBEdit) {
	t.invert = append(t.invert, e)
}
