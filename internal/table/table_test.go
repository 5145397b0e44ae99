package table

import (
	"errors"
	"testing"

	"github.com/reactivedb/reactivedb/internal/value"
)

func openTestTable(t *testing.T, name string, columns []value.Column, kind Kind) *Table {
	t.Helper()
	tbl, err := Open(t.TempDir(), name, columns, kind)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestInsertAssignsEntryID(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("a", value.TypeInteger)}, Source)

	e := value.NewEntry()
	e.Set("a", value.Int(1))
	stored, err := tbl.Insert(e)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	id, ok := stored.EntryID()
	if !ok || id == "" {
		t.Fatalf("expected a non-empty _entryId, got %q ok=%v", id, ok)
	}

	found, err := tbl.FindOne(value.ColEntryID, value.Identifier(id))
	if err != nil {
		t.Fatalf("FindOne by _entryId: %v", err)
	}
	if found == nil {
		t.Fatalf("expected the row to be addressable by its _entryId")
	}
}

func TestFindOneAfterInsert(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("a", value.TypeInteger)}, Source)

	e := value.NewEntry()
	e.Set("a", value.Int(1))
	if _, err := tbl.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := tbl.FindOne("a", value.Int(1))
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found == nil {
		t.Fatalf("expected a row with a=1")
	}
	v, _ := found.Get("a")
	if v.Integer != 1 {
		t.Fatalf("found row has a=%d, want 1", v.Integer)
	}
}

func TestRangeQueries(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("a", value.TypeInteger)}, Source)
	for i := int64(0); i < 10; i++ {
		e := value.NewEntry()
		e.Set("a", value.Int(i))
		if _, err := tbl.Insert(e); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	lt, err := tbl.LessThan("a", value.Int(5), false)
	if err != nil {
		t.Fatalf("LessThan: %v", err)
	}
	if len(lt) != 5 {
		t.Fatalf("LessThan(5): got %d rows, want 5", len(lt))
	}

	gt, err := tbl.GreaterThan("a", value.Int(5))
	if err != nil {
		t.Fatalf("GreaterThan: %v", err)
	}
	if len(gt) != 5 {
		t.Fatalf("GreaterThan(5): got %d rows, want 5", len(gt))
	}
}

func TestSourceTableRejectsMismatchedInput(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("a", value.TypeInteger)}, Source)

	e := value.NewEntry()
	e.Set("a", value.Int(1))
	e.Set("b", value.String("unexpected"))
	if _, err := tbl.Insert(e); !errors.Is(err, ErrMismatchedInput) {
		t.Fatalf("expected ErrMismatchedInput, got %v", err)
	}
}

func TestDerivedTableAutoRegistersColumns(t *testing.T) {
	tbl := openTestTable(t, "d", nil, Derived)

	e := value.NewEntry()
	e.Set("b", value.Int(8))
	if _, err := tbl.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := tbl.FindOne("b", value.Int(8))
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found == nil {
		t.Fatalf("expected auto-registered column 'b' to be queryable")
	}
}

func TestDeleteRemovesRowAndIndexEntries(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("a", value.TypeInteger)}, Source)

	e := value.NewEntry()
	e.Set("a", value.Int(1))
	if _, err := tbl.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	deleted, err := tbl.Delete("a", value.Int(1))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted row, got %d", len(deleted))
	}

	found, err := tbl.FindOne("a", value.Int(1))
	if err != nil {
		t.Fatalf("FindOne after delete: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no row after delete, got %+v", found)
	}
}

func TestDeleteWithSharedColumnValueOnlyRemovesMatchingRows(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{
		value.NewColumn("group", value.TypeInteger),
		value.NewColumn("name", value.TypeStr),
	}, Source)

	e1 := value.NewEntry()
	e1.Set("group", value.Int(1))
	e1.Set("name", value.String("alice"))
	tbl.Insert(e1)

	e2 := value.NewEntry()
	e2.Set("group", value.Int(1))
	e2.Set("name", value.String("bob"))
	tbl.Insert(e2)

	deleted, err := tbl.Delete("name", value.String("alice"))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted row, got %d", len(deleted))
	}

	remaining, err := tbl.GetAll("group", value.Int(1))
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining row in group 1, got %d", len(remaining))
	}
	name, _ := remaining[0].Get("name")
	if name.Str != "bob" {
		t.Fatalf("expected remaining row to be bob, got %q", name.Str)
	}
}

func TestQueryOnUnindexedColumnFails(t *testing.T) {
	tbl := openTestTable(t, "t", []value.Column{value.NewColumn("m", value.TypeMap)}, Source)
	e := value.NewEntry()
	e.Set("m", value.Obj(map[string]value.EntryValue{"k": value.Int(1)}))
	if _, err := tbl.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := tbl.FindOne("m", value.Int(1)); !errors.Is(err, ErrColumnNotIndexed) {
		t.Fatalf("expected ErrColumnNotIndexed, got %v", err)
	}
}
