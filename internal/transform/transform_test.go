package transform

import (
	"testing"

	"github.com/reactivedb/reactivedb/internal/hook"
	"github.com/reactivedb/reactivedb/internal/value"
)

func TestParseStatementSplitsOnTilde(t *testing.T) {
	stmt, err := ParseStatement("b ~ a + 1")
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if stmt.Column != "b" {
		t.Fatalf("column = %q, want %q", stmt.Column, "b")
	}

	row := value.NewEntry()
	row.Set("a", value.Int(4))
	v, err := stmt.Expr.Eval(*row)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.Integer != 5 {
		t.Fatalf("b = %d, want 5", v.Integer)
	}
}

func TestParseStatementTrimsWhitespace(t *testing.T) {
	stmt, err := ParseStatement("  total  ~  a * 2  ")
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if stmt.Column != "total" {
		t.Fatalf("column = %q, want %q", stmt.Column, "total")
	}
}

func TestParseStatementRejectsMissingSeparator(t *testing.T) {
	if _, err := ParseStatement("a + 1"); err == nil {
		t.Fatalf("expected an error for a statement with no '~'")
	}
}

func TestParseStatementRejectsEmptyColumn(t *testing.T) {
	if _, err := ParseStatement(" ~ a + 1"); err == nil {
		t.Fatalf("expected an error for a statement with an empty column")
	}
}

func TestParseStatementRejectsUnparsableExpression(t *testing.T) {
	if _, err := ParseStatement("b ~ a +"); err == nil {
		t.Fatalf("expected an error for an unparsable expression")
	}
}

func TestFunctionHookInsertDerivesRowWithSourceEntryID(t *testing.T) {
	stmt, err := ParseStatement("b ~ a + 1")
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	h := &FunctionHook{SourceTable: "t", DerivedTable: "d", Statements: []Statement{stmt}}

	src := value.NewEntry()
	src.Set(value.ColEntryID, value.Identifier("src-1"))
	src.Set("a", value.Int(9))

	edits, err := h.Invoke(hook.PostInsert, nil, []hook.CommittedEdit{{Table: "t", Entry: src}}, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("expected exactly 1 derived edit, got %d", len(edits))
	}
	derived := edits[0]
	if derived.Table != "d" || derived.Kind != hook.Insert {
		t.Fatalf("unexpected edit: %+v", derived)
	}
	srcID, ok := derived.Entry.Get(value.ColSourceEntryID)
	if !ok || srcID.ID != "src-1" {
		t.Fatalf("expected _sourceEntryId src-1, got %+v ok=%v", srcID, ok)
	}
	b, ok := derived.Entry.Get("b")
	if !ok || b.Integer != 10 {
		t.Fatalf("expected b=10, got %+v ok=%v", b, ok)
	}
}

func TestFunctionHookCascadesDeletes(t *testing.T) {
	h := &FunctionHook{SourceTable: "t", DerivedTable: "d"}

	src := value.NewEntry()
	src.Set(value.ColEntryID, value.Identifier("src-1"))

	edits, err := h.Invoke(hook.PostDelete, nil, []hook.CommittedEdit{{Table: "t", Entry: src}}, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("expected exactly 1 cascade delete, got %d", len(edits))
	}
	if edits[0].Table != "d" || edits[0].Kind != hook.Delete || edits[0].Column != value.ColSourceEntryID {
		t.Fatalf("unexpected cascade delete edit: %+v", edits[0])
	}
	if edits[0].Key.ID != "src-1" {
		t.Fatalf("expected cascade delete keyed on src-1, got %+v", edits[0].Key)
	}
}

func TestFunctionHookSkipsStatementOnMissingColumn(t *testing.T) {
	stmt, err := ParseStatement("b ~ missing + 1")
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	h := &FunctionHook{SourceTable: "t", DerivedTable: "d", Statements: []Statement{stmt}}

	src := value.NewEntry()
	src.Set(value.ColEntryID, value.Identifier("src-1"))
	src.Set("a", value.Int(1))

	edits, err := h.Invoke(hook.PostInsert, nil, []hook.CommittedEdit{{Table: "t", Entry: src}}, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("expected the derived row to still be emitted, got %d edits", len(edits))
	}
	if _, ok := edits[0].Entry.Get("b"); ok {
		t.Fatalf("expected column b to be absent when its statement fails to evaluate")
	}
	if _, ok := edits[0].Entry.Get(value.ColSourceEntryID); !ok {
		t.Fatalf("expected _sourceEntryId to still be set")
	}
}
