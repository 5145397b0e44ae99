// JSON codec for EntryValue. Every persisted record (table rows,
// B+-tree node entries, wire protocol payloads) goes through this
// encoding.
package value

import (
	"math/big"

	json "github.com/goccy/go-json"
)

// wireValue is the self-describing on-the-wire shape of an EntryValue.
// "t" is the kind discriminator; only the field matching t is set.
type wireValue struct {
	T  string               `json:"t"`
	I  int64                `json:"i,omitempty"`
	S  string               `json:"s,omitempty"`
	B  bool                 `json:"b,omitempty"`
	ID string               `json:"id,omitempty"`
	DU string               `json:"du,omitempty"` // decimal unscaled, base-10 string
	DS int32                `json:"ds,omitempty"` // decimal scale
	F  float64              `json:"f,omitempty"`
	A  []wireValue          `json:"a,omitempty"`
	M  map[string]wireValue `json:"m,omitempty"`
}

var kindTag = map[Kind]string{
	KindInteger: "i",
	KindStr:     "s",
	KindBool:    "b",
	KindID:      "id",
	KindDecimal: "d",
	KindArray:   "a",
	KindMap:     "m",
	KindFloat:   "f",
}

var tagKind = map[string]Kind{
	"i": KindInteger, "s": KindStr, "b": KindBool, "id": KindID,
	"d": KindDecimal, "a": KindArray, "m": KindMap, "f": KindFloat,
}

func toWire(v EntryValue) wireValue {
	w := wireValue{T: kindTag[v.Kind]}
	switch v.Kind {
	case KindInteger:
		w.I = v.Integer
	case KindStr:
		w.S = v.Str
	case KindBool:
		w.B = v.Bool
	case KindID:
		w.ID = v.ID
	case KindDecimal:
		if v.Decimal.Unscaled != nil {
			w.DU = v.Decimal.Unscaled.String()
		} else {
			w.DU = "0"
		}
		w.DS = v.Decimal.Scale
	case KindFloat:
		w.F = v.Float
	case KindArray:
		w.A = make([]wireValue, len(v.Array))
		for i, e := range v.Array {
			w.A[i] = toWire(e)
		}
	case KindMap:
		w.M = make(map[string]wireValue, len(v.Map))
		for k, e := range v.Map {
			w.M[k] = toWire(e)
		}
	}
	return w
}

func fromWire(w wireValue) (EntryValue, error) {
	k, ok := tagKind[w.T]
	if !ok {
		return EntryValue{}, &UnknownKindError{Tag: w.T}
	}
	switch k {
	case KindInteger:
		return Int(w.I), nil
	case KindStr:
		return String(w.S), nil
	case KindBool:
		return Boolean(w.B), nil
	case KindID:
		return Identifier(w.ID), nil
	case KindDecimal:
		u, ok := new(big.Int).SetString(w.DU, 10)
		if !ok {
			return EntryValue{}, &UnknownKindError{Tag: "decimal:" + w.DU}
		}
		return Dec(Decimal{Unscaled: u, Scale: w.DS}), nil
	case KindFloat:
		return Flt(w.F), nil
	case KindArray:
		arr := make([]EntryValue, len(w.A))
		for i, e := range w.A {
			v, err := fromWire(e)
			if err != nil {
				return EntryValue{}, err
			}
			arr[i] = v
		}
		return Arr(arr...), nil
	case KindMap:
		m := make(map[string]EntryValue, len(w.M))
		for key, e := range w.M {
			v, err := fromWire(e)
			if err != nil {
				return EntryValue{}, err
			}
			m[key] = v
		}
		return Obj(m), nil
	}
	return EntryValue{}, &UnknownKindError{Tag: w.T}
}

func (v EntryValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(v))
}

func (v *EntryValue) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	parsed, err := fromWire(w)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
