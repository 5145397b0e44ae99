package value

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Reserved column names, implementation-owned. User schemas must not
// declare these (enforced by config.Validate, not here).
const (
	ColEntryID          = "_entryId"
	ColSourceEntryID    = "_sourceEntryId"
	ColUnionMatchingKey = "_unionMatchingKey"
	ColAggregationKey   = "_aggregationKey"
	MemoPrefix          = "memo."
)

// Entry is an ordered mapping from column name to EntryValue. Key
// order is insertion order and is preserved across JSON round-trips,
// so iteration is deterministic.
type Entry struct {
	keys   []string
	values map[string]EntryValue
}

// NewEntry returns an empty Entry ready for Set calls.
func NewEntry() *Entry {
	return &Entry{values: make(map[string]EntryValue)}
}

// Set assigns col to v, appending col to the key order if new.
func (e *Entry) Set(col string, v EntryValue) {
	if e.values == nil {
		e.values = make(map[string]EntryValue)
	}
	if _, ok := e.values[col]; !ok {
		e.keys = append(e.keys, col)
	}
	e.values[col] = v
}

// Get returns the value for col and whether it is present.
func (e *Entry) Get(col string) (EntryValue, bool) {
	v, ok := e.values[col]
	return v, ok
}

// Has reports whether col is present.
func (e *Entry) Has(col string) bool {
	_, ok := e.values[col]
	return ok
}

// Delete removes col, if present.
func (e *Entry) Delete(col string) {
	if _, ok := e.values[col]; !ok {
		return
	}
	delete(e.values, col)
	for i, k := range e.keys {
		if k == col {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
}

// Keys returns column names in deterministic (insertion) order.
func (e *Entry) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len reports the number of columns.
func (e *Entry) Len() int { return len(e.keys) }

// Clone returns a deep-enough copy (values are immutable sum types,
// so only the key/map structure needs copying).
func (e *Entry) Clone() *Entry {
	out := &Entry{
		keys:   append([]string(nil), e.keys...),
		values: make(map[string]EntryValue, len(e.values)),
	}
	for k, v := range e.values {
		out.values[k] = v
	}
	return out
}

// EntryID returns the reserved _entryId column, if present.
func (e *Entry) EntryID() (string, bool) {
	v, ok := e.Get(ColEntryID)
	if !ok || v.Kind != KindID {
		return "", false
	}
	return v.ID, true
}

// MarshalJSON writes the entry as a JSON object with keys in Entry
// order, so that re-reading preserves column order without requiring
// a sorted-map codec.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an Entry, preserving the key order found in
// the source text by reading its keys token by token.
func (e *Entry) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("value: entry must be a JSON object")
	}

	e.keys = nil
	e.values = make(map[string]EntryValue)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("value: entry key must be a string")
		}
		var v EntryValue
		if err := dec.Decode(&v); err != nil {
			return err
		}
		e.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
