package value

import (
	"testing"
)

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a, b EntryValue
		want int
	}{
		{Int(1), Int(2), -1},
		{Int(5), Int(5), 0},
		{String("a"), String("b"), -1},
		{Boolean(false), Boolean(true), -1},
		{Identifier("a"), Identifier("a"), 0},
		{Arr(Int(1), Int(2)), Arr(Int(1), Int(3)), -1},
		{Arr(Int(1)), Arr(Int(1), Int(0)), -1},
	}
	for _, c := range cases {
		got := Compare(c.a, c.b)
		if (got < 0 && c.want >= 0) || (got > 0 && c.want <= 0) || (got == 0 && c.want != 0) {
			t.Errorf("Compare(%v, %v) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func TestIntegerDecimalCrossCompare(t *testing.T) {
	if Compare(Int(3), Dec(NewDecimal(3, 0))) != 0 {
		t.Fatal("expected integer 3 == decimal 3")
	}
	if Compare(Int(2), Dec(NewDecimal(25, 1))) >= 0 {
		t.Fatal("expected 2 < 2.5")
	}
}

func TestDecimalArithmeticNoCommute(t *testing.T) {
	a := NewDecimal(10, 0) // 10
	b := NewDecimal(3, 0)  // 3
	if got := a.Sub(b); got.Cmp(NewDecimal(7, 0)) != 0 {
		t.Fatalf("10-3 = %v, want 7", got)
	}
	if got := b.Sub(a); got.Cmp(NewDecimal(-7, 0)) != 0 {
		t.Fatalf("3-10 = %v, want -7", got)
	}
}

func TestIndexable(t *testing.T) {
	if !Int(1).Indexable() {
		t.Fatal("integer should be indexable")
	}
	if Flt(1.5).Indexable() {
		t.Fatal("float must never be indexable")
	}
	if Obj(map[string]EntryValue{"a": Int(1)}).Indexable() {
		t.Fatal("map must never be indexable")
	}
	if !Arr(Int(1), String("x")).Indexable() {
		t.Fatal("array of indexable values should be indexable")
	}
	if Arr(Flt(1.0)).Indexable() {
		t.Fatal("array containing a float must not be indexable")
	}
}

func TestEntryJSONRoundTrip(t *testing.T) {
	e := NewEntry()
	e.Set("z", Int(1))
	e.Set("a", String("hi"))
	e.Set(ColEntryID, Identifier("abc-123"))

	b, err := e.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	out := NewEntry()
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if got := out.Keys(); len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != ColEntryID {
		t.Fatalf("key order not preserved: %v", got)
	}
	id, ok := out.EntryID()
	if !ok || id != "abc-123" {
		t.Fatalf("entry id not preserved: %v %v", id, ok)
	}
}

func TestEntryValueJSONRoundTripDecimal(t *testing.T) {
	v := Dec(NewDecimal(12345, 2))
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var out EntryValue
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if out.Decimal.Cmp(v.Decimal) != 0 {
		t.Fatalf("decimal round trip mismatch: %v != %v", out.Decimal, v.Decimal)
	}
}
