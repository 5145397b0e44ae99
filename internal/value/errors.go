package value

import "fmt"

// UnknownKindError is returned when decoding an EntryValue whose kind
// tag or payload is unrecognised.
type UnknownKindError struct {
	Tag string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("value: unknown kind tag %q", e.Tag)
}
