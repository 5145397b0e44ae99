// Package action is the collaborator ActionTransform calls into: a
// sandboxed execution environment for user-supplied code that maps
// one row to another. The WASM-backed Runner is intentionally a thin,
// generic ABI — it exists so ActionTransform has something real to
// call, not to specify a complete extension platform.
package action

import (
	"context"
	"fmt"
)

// Workspace carries whatever the action environment needs beyond the
// entry itself (e.g. a shared scratch directory). It satisfies
// hook.Workspace without importing the hook package, avoiding a cycle.
type Workspace map[string]string

// Runner executes one named action against entry, returning the
// derived entry.
type Runner interface {
	Run(ctx context.Context, name string, entryJSON []byte, ws Workspace) ([]byte, error)
}

// ErrActionNotFound is returned when Run is given a name with no
// registered module.
var ErrActionNotFound = fmt.Errorf("action: no module registered for this name")
