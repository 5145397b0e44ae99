package action

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMRunner executes compiled WebAssembly modules as action
// environments: one module per configured action name. The ABI is
// intentionally minimal; this is a sandbox for row-to-row user code,
// not a complete extension platform.
//
// Wire contract per module: an exported "alloc(size i32) i32" that
// returns a linear-memory offset the host may write entryJSON into,
// and an exported "run(ptr i32, len i32) i64" that returns a packed
// (offset<<32 | length) pointing at the result JSON in the same
// memory, valid until the next call.
type WASMRunner struct {
	runtime wazero.Runtime

	mu      sync.Mutex
	modules map[string]wazero.CompiledModule
}

// NewWASMRunner constructs a runtime with WASI preview1 host imports
// registered (most compiled toolchains emit a WASI import even for
// pure-computation modules).
func NewWASMRunner(ctx context.Context) (*WASMRunner, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("action: instantiate WASI: %w", err)
	}
	return &WASMRunner{runtime: rt, modules: make(map[string]wazero.CompiledModule)}, nil
}

// Register compiles the module at wasmPath under name, so later Run
// calls can look it up without recompiling per invocation.
func (r *WASMRunner) Register(ctx context.Context, name, wasmPath string) error {
	bin, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("action: read module %q: %w", name, err)
	}
	compiled, err := r.runtime.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("action: compile module %q: %w", name, err)
	}
	r.mu.Lock()
	r.modules[name] = compiled
	r.mu.Unlock()
	return nil
}

// Close releases the runtime and every compiled module.
func (r *WASMRunner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Run instantiates a fresh copy of name's module (wazero modules are
// cheap to instantiate from an already-compiled binary and are not
// safe for concurrent calls, so each invocation gets its own), writes
// entryJSON into its linear memory via "alloc", calls "run", and reads
// back the result.
func (r *WASMRunner) Run(ctx context.Context, name string, entryJSON []byte, ws Workspace) ([]byte, error) {
	r.mu.Lock()
	compiled, ok := r.modules[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActionNotFound, name)
	}

	cfg := wazero.NewModuleConfig().WithStdout(os.Stdout).WithStderr(os.Stderr)
	for k, v := range ws {
		cfg = cfg.WithEnv(k, v)
	}

	mod, err := r.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("action: instantiate %q: %w", name, err)
	}
	defer mod.Close(ctx)

	alloc := mod.ExportedFunction("alloc")
	run := mod.ExportedFunction("run")
	if alloc == nil || run == nil {
		return nil, fmt.Errorf("action: module %q missing alloc/run exports", name)
	}

	sizeRes, err := alloc.Call(ctx, uint64(len(entryJSON)))
	if err != nil {
		return nil, fmt.Errorf("action: %q alloc: %w", name, err)
	}
	ptr := uint32(sizeRes[0])

	if !mod.Memory().Write(ptr, entryJSON) {
		return nil, fmt.Errorf("action: %q alloc returned unwritable offset", name)
	}

	runRes, err := run.Call(ctx, uint64(ptr), uint64(len(entryJSON)))
	if err != nil {
		return nil, fmt.Errorf("action: %q run: %w", name, err)
	}

	packed := runRes[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed)

	out, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("action: %q returned unreadable result region", name)
	}
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}
