// Package transform implements the five derived-table transform kinds:
// Function, Filter, Union, Aggregate, and Action. Each is a hook.Hook
// attached to one source table, translating a committed source-table
// edit into an edit against the transform's derived table, and
// cascading deletes downstream.
//
// Transforms subscribe to PostInsert rather than PreInsert: a derived
// row carries _sourceEntryId, the source row's assigned entry id,
// which does not exist until Table.Insert has actually committed the
// source row.
package transform

import (
	"fmt"
	"strings"

	"github.com/reactivedb/reactivedb/internal/expr"
	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Statement is one "column ~ expression" assignment, the unit a
// Function transform or an Aggregate fold statement is built from.
type Statement struct {
	Column string
	Expr   *expr.Expr
}

// ParseStatement splits src on its first "~" into a column name and an
// expression, then parses the expression half with internal/expr.
func ParseStatement(src string) (Statement, error) {
	i := strings.IndexByte(src, '~')
	if i < 0 {
		return Statement{}, fmt.Errorf("transform: statement %q missing '~' separator", src)
	}
	col := strings.TrimSpace(src[:i])
	if col == "" {
		return Statement{}, fmt.Errorf("transform: statement %q has empty column", src)
	}
	e, err := expr.Parse(strings.TrimSpace(src[i+1:]))
	if err != nil {
		return Statement{}, fmt.Errorf("transform: statement %q: %w", src, err)
	}
	return Statement{Column: col, Expr: e}, nil
}

// rowEntry unpacks a committed source row into the row itself plus its
// _entryId, so callers can attach _sourceEntryId to the derived row
// explicitly.
func rowEntry(e *value.Entry) (value.Entry, string) {
	id, _ := e.EntryID()
	return *e, id
}

// cascadeDelete is the shared PostDelete behaviour for transforms that
// track rows 1:1 via _sourceEntryId (Function, Filter, Action): for every
// deleted source row, delete every derived row whose _sourceEntryId
// matches it.
func cascadeDelete(derivedTable string, committedEdits []hook.CommittedEdit) []hook.DBEdit {
	var out []hook.DBEdit
	for _, c := range committedEdits {
		id, ok := c.Entry.EntryID()
		if !ok {
			continue
		}
		out = append(out, hook.NewDelete(derivedTable, value.ColSourceEntryID, value.Identifier(id)))
	}
	return out
}
