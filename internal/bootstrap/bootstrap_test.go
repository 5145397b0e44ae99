package bootstrap

import (
	"context"
	"testing"

	"github.com/reactivedb/reactivedb/internal/config"
	"github.com/reactivedb/reactivedb/internal/listener"
	"github.com/reactivedb/reactivedb/internal/value"
)

func build(t *testing.T, cfg *config.Config) *Result {
	t.Helper()
	cfg.StorageDestination = t.TempDir()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { res.Close() })
	return res
}

// TestFunctionTransformScenario: a Function transform derives
// b = a + 1 from source column a.
func TestFunctionTransformScenario(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "t", Type: config.KindSource, Columns: map[string]string{"a": "integer"}},
			{Name: "d", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind:        config.TransformFunction,
				SourceTable: "t",
				Functions:   []string{"b ~ a + 1"},
			}},
		},
	}
	res := build(t, cfg)

	e := value.NewEntry()
	e.Set("a", value.Int(7))
	committed, err := res.Database.Insert("t", e)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	srcID, ok := committed[0].Entry.EntryID()
	if !ok {
		t.Fatalf("inserted row has no _entryId")
	}

	derived, err := res.Database.FindOne("d", value.ColSourceEntryID, value.Identifier(srcID))
	if err != nil {
		t.Fatalf("FindOne on d: %v", err)
	}
	if derived == nil {
		t.Fatalf("expected a derived row referencing %s", srcID)
	}
	b, ok := derived.Get("b")
	if !ok || b.Integer != 8 {
		t.Fatalf("derived row b=%v, want 8", b)
	}
}

// TestCascadeDeleteScenario: deleting the source row removes the row
// the Function transform derived from it.
func TestCascadeDeleteScenario(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "t", Type: config.KindSource, Columns: map[string]string{"a": "integer"}},
			{Name: "d", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind:        config.TransformFunction,
				SourceTable: "t",
				Functions:   []string{"b ~ a + 1"},
			}},
		},
	}
	res := build(t, cfg)

	e := value.NewEntry()
	e.Set("a", value.Int(7))
	committed, err := res.Database.Insert("t", e)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	srcID, _ := committed[0].Entry.EntryID()

	if _, err := res.Database.DeleteAll("t", value.ColEntryID, value.Identifier(srcID)); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	derived, err := res.Database.FindOne("d", value.ColSourceEntryID, value.Identifier(srcID))
	if err != nil {
		t.Fatalf("FindOne on d: %v", err)
	}
	if derived != nil {
		t.Fatalf("expected no derived row after cascade delete, got %+v", derived)
	}
}

// TestUnionTransformScenario: rows from two source tables merge into
// one union row keyed by a shared foreign value.
func TestUnionTransformScenario(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "u1", Type: config.KindSource, Columns: map[string]string{"k": "str", "x": "integer"}},
			{Name: "u2", Type: config.KindSource, Columns: map[string]string{"k": "str", "y": "integer"}},
			{Name: "m", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind: config.TransformUnion,
				TablesAndForeignKeys: []config.UnionSource{
					{Table: "u1", ForeignKey: "k"},
					{Table: "u2", ForeignKey: "k"},
				},
			}},
		},
	}
	res := build(t, cfg)

	e1 := value.NewEntry()
	e1.Set("k", value.String("x"))
	e1.Set("x", value.Int(1))
	if _, err := res.Database.Insert("u1", e1); err != nil {
		t.Fatalf("Insert u1: %v", err)
	}

	e2 := value.NewEntry()
	e2.Set("k", value.String("x"))
	e2.Set("y", value.Int(2))
	if _, err := res.Database.Insert("u2", e2); err != nil {
		t.Fatalf("Insert u2: %v", err)
	}

	merged, err := res.Database.FindOne("m", value.ColUnionMatchingKey, value.String("x"))
	if err != nil {
		t.Fatalf("FindOne on m: %v", err)
	}
	if merged == nil {
		t.Fatalf("expected a merged union row for k=x")
	}
	xv, ok := merged.Get("x")
	if !ok || xv.Integer != 1 {
		t.Fatalf("merged row x=%v, want 1", xv)
	}
	yv, ok := merged.Get("y")
	if !ok || yv.Integer != 2 {
		t.Fatalf("merged row y=%v, want 2", yv)
	}
}

// TestFilterTransformDropsNonMatchingRows reproduces the Filter
// transform's selective copy behaviour.
func TestFilterTransformDropsNonMatchingRows(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "t", Type: config.KindSource, Columns: map[string]string{"a": "integer"}},
			{Name: "d", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind:        config.TransformFilter,
				SourceTable: "t",
				Filter:      "a > 5",
			}},
		},
	}
	res := build(t, cfg)

	for _, a := range []int64{3, 9} {
		e := value.NewEntry()
		e.Set("a", value.Int(a))
		if _, err := res.Database.Insert("t", e); err != nil {
			t.Fatalf("Insert a=%d: %v", a, err)
		}
	}

	rows, err := res.Database.GreaterThan("d", "a", value.Int(0))
	if err != nil {
		t.Fatalf("GreaterThan on d: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 filtered row, got %d", len(rows))
	}
	v, _ := rows[0].Get("a")
	if v.Integer != 9 {
		t.Fatalf("filtered row a=%d, want 9", v.Integer)
	}
}

// TestAggregateTransformRefoldsOnInsert checks that an Aggregate
// transform re-derives its grouped row as new members arrive, folding
// every statement across all current members of the group in order.
// The fold statement reads back its own running value via the
// memo.<column> column once a prior member has set one, so "count ~
// memo.count + 1" would require a default-if-absent rule the
// expression grammar does not provide; this test instead folds a
// statement that only ever reads the current member, which still
// exercises grouping, re-fold-on-insert, and the memo plumbing's
// absence on the first member.
func TestAggregateTransformRefoldsOnInsert(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "t", Type: config.KindSource, Columns: map[string]string{
				"grp": "str", "a": "integer",
			}},
			{Name: "d", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind:             config.TransformAggregation,
				SourceTable:      "t",
				AggregatedColumn: "grp",
				Functions:        []string{"last ~ a"},
			}},
		},
	}
	res := build(t, cfg)

	for _, a := range []int64{1, 2, 3} {
		e := value.NewEntry()
		e.Set("grp", value.String("g"))
		e.Set("a", value.Int(a))
		if _, err := res.Database.Insert("t", e); err != nil {
			t.Fatalf("Insert a=%d: %v", a, err)
		}
	}

	agg, err := res.Database.FindOne("d", value.ColAggregationKey, value.String("g"))
	if err != nil {
		t.Fatalf("FindOne on d: %v", err)
	}
	if agg == nil {
		t.Fatalf("expected an aggregated row for grp=g")
	}
	last, ok := agg.Get("last")
	if !ok {
		t.Fatalf("aggregated row missing last")
	}
	if last.Integer != 3 {
		t.Fatalf("aggregated last=%d, want 3 (fold over all 3 members, in order)", last.Integer)
	}
}

// TestCyclicConfigRejected checks that a derived table cycle is
// rejected before Build ever opens a file.
func TestCyclicConfigRejected(t *testing.T) {
	cfg := &config.Config{
		StorageDestination: t.TempDir(),
		Tables: []config.TableConfig{
			{Name: "a", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind: config.TransformFilter, SourceTable: "b", Filter: "x > 0",
			}},
			{Name: "b", Type: config.KindDerived, Transform: &config.TransformConfig{
				Kind: config.TransformFilter, SourceTable: "a", Filter: "x > 0",
			}},
		},
	}
	if err := config.Validate(cfg); err == nil {
		t.Fatalf("expected Validate to reject a cycle")
	}
}

// TestListenerReceivesInsertEvent: a subscriber registered on a
// table's listener hook gets exactly one event per committed insert.
func TestListenerReceivesInsertEvent(t *testing.T) {
	cfg := &config.Config{
		Tables: []config.TableConfig{
			{Name: "t", Type: config.KindSource, Columns: map[string]string{"a": "integer"}},
		},
	}
	res := build(t, cfg)

	lh := res.Listeners["t"]
	if lh == nil {
		t.Fatalf("expected a listener hook for table t")
	}

	ch := make(chan listener.Response, 4)
	lh.Register(listener.Insert, "sub-1", ch)

	e := value.NewEntry()
	e.Set("a", value.Int(1))
	if _, err := res.Database.Insert("t", e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	select {
	case resp := <-ch:
		if resp.Table != "t" || resp.Event != listener.Insert || len(resp.Entries) != 1 {
			t.Fatalf("unexpected event: %+v", resp)
		}
	default:
		t.Fatalf("expected exactly one buffered insert event")
	}

	select {
	case extra := <-ch:
		t.Fatalf("expected no second event, got %+v", extra)
	default:
	}
}
