// Package value defines the ReactiveDB scalar data model: EntryValue (the
// sum type every column value belongs to), its indexable subset
// IndexValue, and Entry, the ordered column-name-to-value row type that
// flows through storage, indexes, and the hook pipeline.
package value

import (
	"cmp"
	"fmt"
	"math/big"
)

// Kind tags the variant of an EntryValue.
type Kind int

const (
	KindInteger Kind = iota
	KindStr
	KindBool
	KindID
	KindDecimal
	KindArray
	KindMap
	KindFloat
)

// EntryValue is a sum type over scalar column values. Exactly one of
// the typed fields is meaningful, selected by Kind.
type EntryValue struct {
	Kind    Kind
	Integer int64
	Str     string
	Bool    bool
	ID      string
	Decimal Decimal
	Float   float64
	Array   []EntryValue
	Map     map[string]EntryValue
}

// Decimal is a fixed-precision number: Unscaled * 10^-Scale. Unlike a
// float, equal values compare equal and arithmetic never loses
// precision from binary/decimal conversion.
type Decimal struct {
	Unscaled *big.Int
	Scale    int32
}

func NewDecimal(unscaled int64, scale int32) Decimal {
	return Decimal{Unscaled: big.NewInt(unscaled), Scale: scale}
}

// rescale returns a copy of d scaled to newScale (newScale >= d.Scale).
func (d Decimal) rescale(newScale int32) Decimal {
	if newScale == d.Scale {
		return d
	}
	diff := newScale - d.Scale
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(diff)), nil)
	return Decimal{Unscaled: new(big.Int).Mul(d.Unscaled, factor), Scale: newScale}
}

func (d Decimal) Cmp(o Decimal) int {
	scale := d.Scale
	if o.Scale > scale {
		scale = o.Scale
	}
	return d.rescale(scale).Unscaled.Cmp(o.rescale(scale).Unscaled)
}

func (d Decimal) String() string {
	return fmt.Sprintf("%sE-%d", d.Unscaled.String(), d.Scale)
}

// Add, Sub, Mul, Div implement Decimal arithmetic. Sub and Div never
// commute their operands: a.Sub(b) is a-b, a.Div(b) is a/b, even when
// one operand arrived via integer promotion (see PromoteToDecimal).
func (d Decimal) Add(o Decimal) Decimal {
	scale := max(d.Scale, o.Scale)
	return Decimal{Unscaled: new(big.Int).Add(d.rescale(scale).Unscaled, o.rescale(scale).Unscaled), Scale: scale}
}

func (d Decimal) Sub(o Decimal) Decimal {
	scale := max(d.Scale, o.Scale)
	return Decimal{Unscaled: new(big.Int).Sub(d.rescale(scale).Unscaled, o.rescale(scale).Unscaled), Scale: scale}
}

func (d Decimal) Mul(o Decimal) Decimal {
	return Decimal{Unscaled: new(big.Int).Mul(d.Unscaled, o.Unscaled), Scale: d.Scale + o.Scale}
}

// Div divides to a fixed extra precision of 12 digits beyond the
// larger input scale, truncating (never rounding up).
func (d Decimal) Div(o Decimal) Decimal {
	const extra = 12
	scale := max(d.Scale, o.Scale) + extra
	// numerator needs (o.Scale + scale) digits of scale relative to o to divide cleanly
	numScaled := new(big.Int).Mul(d.Unscaled, pow10(scale-d.Scale+o.Scale))
	return Decimal{Unscaled: new(big.Int).Quo(numScaled, o.Unscaled), Scale: scale}
}

func pow10(n int32) *big.Int {
	if n < 0 {
		n = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// PromoteToDecimal lifts an EntryValue to Decimal: integers promote to
// decimal scale 0, decimals pass through unchanged. Any other kind is
// an error.
func PromoteToDecimal(v EntryValue) (Decimal, error) {
	switch v.Kind {
	case KindInteger:
		return NewDecimal(v.Integer, 0), nil
	case KindDecimal:
		return v.Decimal, nil
	default:
		return Decimal{}, fmt.Errorf("cannot promote %v to decimal", v.Kind)
	}
}

// Integer, Str, Bool, ID, Array, Map, Float constructors for readability
// at call sites building literal Entry values.

func Int(v int64) EntryValue                 { return EntryValue{Kind: KindInteger, Integer: v} }
func String(v string) EntryValue             { return EntryValue{Kind: KindStr, Str: v} }
func Boolean(v bool) EntryValue              { return EntryValue{Kind: KindBool, Bool: v} }
func Identifier(v string) EntryValue         { return EntryValue{Kind: KindID, ID: v} }
func Dec(v Decimal) EntryValue               { return EntryValue{Kind: KindDecimal, Decimal: v} }
func Arr(v ...EntryValue) EntryValue         { return EntryValue{Kind: KindArray, Array: v} }
func Obj(v map[string]EntryValue) EntryValue { return EntryValue{Kind: KindMap, Map: v} }
func Flt(v float64) EntryValue               { return EntryValue{Kind: KindFloat, Float: v} }

// Indexable reports whether a value's kind can participate in a
// B+-tree index: Integer, Str, Bool, ID, Decimal, and Array of
// indexable values. Map and Float are never indexable.
func (v EntryValue) Indexable() bool {
	switch v.Kind {
	case KindInteger, KindStr, KindBool, KindID, KindDecimal:
		return true
	case KindArray:
		for _, e := range v.Array {
			if !e.Indexable() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two EntryValues of the same Kind. Comparing across
// incompatible kinds panics — callers (the B+-tree, column schema
// checks) must never mix kinds within one index.
func Compare(a, b EntryValue) int {
	if a.Kind != b.Kind {
		// Allow Integer/Decimal cross-comparison via promotion, since
		// a column may mix the two kinds over its lifetime.
		if (a.Kind == KindInteger || a.Kind == KindDecimal) && (b.Kind == KindInteger || b.Kind == KindDecimal) {
			da, _ := PromoteToDecimal(a)
			db_, _ := PromoteToDecimal(b)
			return da.Cmp(db_)
		}
		panic(fmt.Sprintf("value: cannot compare %v with %v", a.Kind, b.Kind))
	}
	switch a.Kind {
	case KindInteger:
		return cmp.Compare(a.Integer, b.Integer)
	case KindStr:
		return cmp.Compare(a.Str, b.Str)
	case KindBool:
		return cmp.Compare(boolInt(a.Bool), boolInt(b.Bool))
	case KindID:
		return cmp.Compare(a.ID, b.ID)
	case KindDecimal:
		return a.Decimal.Cmp(b.Decimal)
	case KindArray:
		n := min(len(a.Array), len(b.Array))
		for i := 0; i < n; i++ {
			if c := Compare(a.Array[i], b.Array[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.Array), len(b.Array))
	default:
		panic(fmt.Sprintf("value: kind %v has no defined order", a.Kind))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Equal reports whether two values compare equal under Compare. Map
// values are never equal to anything, including themselves, since Map
// carries no ordering.
func Equal(a, b EntryValue) bool {
	if a.Kind == KindMap || b.Kind == KindMap {
		return false
	}
	return Compare(a, b) == 0
}
