package btree

import (
	"path/filepath"
	"testing"

	"github.com/reactivedb/reactivedb/internal/value"
)

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestInsertAndSearchExact(t *testing.T) {
	tr := openTestTree(t)
	if err := tr.Insert(value.Int(42), 7); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	e, err := tr.SearchExact(value.Int(42))
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if e == nil || e.Left != 7 {
		t.Fatalf("expected entry with ref 7, got %+v", e)
	}
}

func TestSearchExactMissReturnsNil(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert(value.Int(1), 1)
	e, err := tr.SearchExact(value.Int(99))
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil for missing key, got %+v", e)
	}
}

func TestGreaterThanAndLessThanOrdering(t *testing.T) {
	tr := openTestTree(t)
	for i := int64(0); i < 10; i++ {
		if err := tr.Insert(value.Int(i), uint32(100+i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	ge, err := tr.GreaterThan(value.Int(5))
	if err != nil {
		t.Fatalf("GreaterThan: %v", err)
	}
	wantGE := []int64{5, 6, 7, 8, 9}
	if len(ge) != len(wantGE) {
		t.Fatalf("GreaterThan(5): got %d entries, want %d", len(ge), len(wantGE))
	}
	for i := 1; i < len(ge); i++ {
		if value.Compare(ge[i-1].Index, ge[i].Index) > 0 {
			t.Fatalf("GreaterThan result not ordered: %v then %v", ge[i-1].Index, ge[i].Index)
		}
	}
	for i, e := range ge {
		if e.Index.Integer != wantGE[i] {
			t.Fatalf("GreaterThan[%d] = %d, want %d", i, e.Index.Integer, wantGE[i])
		}
	}

	lt, err := tr.LessThan(value.Int(5), false)
	if err != nil {
		t.Fatalf("LessThan: %v", err)
	}
	for _, e := range lt {
		if value.Compare(e.Index, value.Int(5)) >= 0 {
			t.Fatalf("LessThan(5, false) included non-strict entry %v", e.Index)
		}
	}
	if len(lt) != 5 {
		t.Fatalf("LessThan(5, false): got %d entries, want 5", len(lt))
	}

	ltInclusive, err := tr.LessThan(value.Int(5), true)
	if err != nil {
		t.Fatalf("LessThan inclusive: %v", err)
	}
	if len(ltInclusive) != 6 {
		t.Fatalf("LessThan(5, true): got %d entries, want 6", len(ltInclusive))
	}
}

func TestNodeSplitAcrossManyInserts(t *testing.T) {
	tr := openTestTree(t)
	const n = 500
	for i := int64(0); i < n; i++ {
		if err := tr.Insert(value.Int(i), uint32(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(0); i < n; i++ {
		e, err := tr.SearchExact(value.Int(i))
		if err != nil {
			t.Fatalf("SearchExact(%d): %v", i, err)
		}
		if e == nil || e.Left != uint32(i) {
			t.Fatalf("SearchExact(%d): got %+v", i, e)
		}
	}
	all, err := tr.GreaterThan(value.Int(0))
	if err != nil {
		t.Fatalf("GreaterThan: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d entries reachable via leaf chain, got %d", n, len(all))
	}
	for i := 1; i < len(all); i++ {
		if value.Compare(all[i-1].Index, all[i].Index) > 0 {
			t.Fatalf("leaf-chain walk not ordered at position %d", i)
		}
	}
}

func TestMultiValuedKeyGetAll(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert(value.String("x"), 1)
	tr.Insert(value.String("x"), 2)
	tr.Insert(value.String("x"), 3)
	tr.Insert(value.String("y"), 4)

	got, err := tr.GetAll(value.String("x"))
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetAll(x): got %d entries, want 3", len(got))
	}
	refs := map[uint32]bool{}
	for _, e := range got {
		refs[e.Left] = true
	}
	for _, want := range []uint32{1, 2, 3} {
		if !refs[want] {
			t.Fatalf("GetAll(x) missing ref %d: %+v", want, got)
		}
	}
}

func TestDeleteRemovesSingleEntryWithoutMerge(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert(value.Int(1), 10)
	tr.Insert(value.Int(1), 11)

	removed, err := tr.Delete(value.Int(1))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed == nil {
		t.Fatalf("expected a removed entry")
	}

	remaining, err := tr.GetAll(value.Int(1))
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected exactly one remaining entry with key 1, got %d", len(remaining))
	}
}

func TestDeleteMissingKeyReturnsErrNotFound(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert(value.Int(1), 1)
	if _, err := tr.Delete(value.Int(2)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllRemovesEveryMatchingEntry(t *testing.T) {
	tr := openTestTree(t)
	for i := 0; i < 5; i++ {
		tr.Insert(value.String("dup"), uint32(i))
	}
	tr.Insert(value.String("other"), 99)

	removed, err := tr.DeleteAll(value.String("dup"))
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if len(removed) != 5 {
		t.Fatalf("expected 5 removed entries, got %d", len(removed))
	}

	remaining, err := tr.GetAll(value.String("dup"))
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining dup entries, got %d", len(remaining))
	}
	other, err := tr.SearchExact(value.String("other"))
	if err != nil || other == nil {
		t.Fatalf("expected 'other' entry to survive, got %+v, err %v", other, err)
	}
}

func TestInsertRejectsNonIndexableKind(t *testing.T) {
	tr := openTestTree(t)
	if err := tr.Insert(value.Flt(1.5), 1); err != ErrNotIndexable {
		t.Fatalf("expected ErrNotIndexable, got %v", err)
	}
}

func TestReopenPreservesTreeContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := int64(0); i < 50; i++ {
		tr.Insert(value.Int(i), uint32(i))
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	e, err := reopened.SearchExact(value.Int(25))
	if err != nil {
		t.Fatalf("SearchExact after reopen: %v", err)
	}
	if e == nil || e.Left != 25 {
		t.Fatalf("expected entry with ref 25 after reopen, got %+v", e)
	}
}
