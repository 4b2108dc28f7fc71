// Package script runs Lua cutting jobs against a plotter.
// It wraps a Golua runtime with CPU and memory limits and exposes the
// device operations to scripts through the global plotter table.
package script

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"
)

// RuntimeConfig contains configuration options for the Lua runtime.
type RuntimeConfig struct {
	// CPULimit is the CPU instruction limit for one execution.
	// 0 means unlimited.
	CPULimit uint64
	// MemoryLimit is the maximum memory in bytes a script can allocate.
	// 0 means unlimited.
	MemoryLimit uint64
	// Stdout receives Lua print output in addition to the capture buffer.
	// If nil, output is only captured.
	Stdout io.Writer
}

// DefaultConfig returns a RuntimeConfig with sensible default values.
// Jobs are mostly straight-line command lists, so the CPU limit is higher
// than a widget script would need.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		CPULimit:    100_000_000,
		MemoryLimit: 64 * 1024 * 1024,
		Stdout:      os.Stdout,
	}
}

// Runtime wraps a Golua runtime. Loading and execution are serialised.
type Runtime struct {
	config  RuntimeConfig
	runtime *rt.Runtime
	output  *bytes.Buffer
	cleanup func()
	mu      sync.Mutex
}

// NewRuntime creates a Runtime with the Lua standard libraries loaded.
func NewRuntime(config RuntimeConfig) *Runtime {
	output := &bytes.Buffer{}
	var stdout io.Writer = output
	if config.Stdout != nil {
		stdout = io.MultiWriter(config.Stdout, output)
	}

	r := rt.New(stdout)
	return &Runtime{
		config:  config,
		runtime: r,
		output:  output,
		cleanup: lib.LoadAll(r),
	}
}

func (r *Runtime) load(name string, code []byte) (*rt.Closure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	closure, err := r.runtime.CompileAndLoadLuaChunk(name, code, rt.TableValue(r.runtime.GlobalEnv()))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return closure, nil
}

// LoadString compiles a chunk of Lua code.
func (r *Runtime) LoadString(name, code string) (*rt.Closure, error) {
	return r.load(name, []byte(code))
}

// LoadFile compiles a Lua file from disk.
func (r *Runtime) LoadFile(path string) (*rt.Closure, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", path, err)
	}
	return r.load(path, content)
}

// LoadFileFromFS compiles a Lua file from fsys.
func (r *Runtime) LoadFileFromFS(fsys fs.FS, path string) (*rt.Closure, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job from FS %s: %w", path, err)
	}
	return r.load(path, content)
}

// Execute runs a compiled closure within the configured resource limits.
// Golua aborts a script that exceeds a hard limit by panicking; that panic
// is returned as ErrResourceLimit.
func (r *Runtime) Execute(closure *rt.Closure) (result rt.Value, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runtime.PushContext(rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{
			Cpu:    r.config.CPULimit,
			Memory: r.config.MemoryLimit,
		},
	})
	defer r.runtime.PopContext()
	defer func() {
		if p := recover(); p != nil {
			result, err = rt.NilValue, fmt.Errorf("%w: %v", ErrResourceLimit, p)
		}
	}()

	result, err = rt.Call1(r.runtime.MainThread(), rt.FunctionValue(closure))
	if err != nil {
		return rt.NilValue, fmt.Errorf("%w: %w", ErrScript, err)
	}
	return result, nil
}

// ExecuteString compiles and runs Lua code.
func (r *Runtime) ExecuteString(name, code string) (rt.Value, error) {
	closure, err := r.LoadString(name, code)
	if err != nil {
		return rt.NilValue, err
	}
	return r.Execute(closure)
}

// ExecuteFile compiles and runs a Lua file.
func (r *Runtime) ExecuteFile(path string) (rt.Value, error) {
	closure, err := r.LoadFile(path)
	if err != nil {
		return rt.NilValue, err
	}
	return r.Execute(closure)
}

// ExecuteFS compiles and runs a Lua file from fsys.
func (r *Runtime) ExecuteFS(fsys fs.FS, path string) (rt.Value, error) {
	closure, err := r.LoadFileFromFS(fsys, path)
	if err != nil {
		return rt.NilValue, err
	}
	return r.Execute(closure)
}

// GetGlobal returns a global variable.
func (r *Runtime) GetGlobal(name string) rt.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runtime.GlobalEnv().Get(rt.StringValue(name))
}

// SetGlobal sets a global variable.
func (r *Runtime) SetGlobal(name string, value rt.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtime.GlobalEnv().Set(rt.StringValue(name), value)
}

// Output returns everything printed by scripts so far.
func (r *Runtime) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}

// ClearOutput empties the print capture buffer.
func (r *Runtime) ClearOutput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output.Reset()
}

// Close releases the runtime. It must not be used afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
	return nil
}

// newGoFunction wraps fn so it may run under the runtime's resource limits.
func newGoFunction(name string, fn rt.GoFunctionFunc, nArgs int) *rt.GoFunction {
	f := rt.NewGoFunction(fn, name, nArgs, false)
	rt.SolemnlyDeclareCompliance(rt.ComplyMemSafe|rt.ComplyCpuSafe, f)
	return f
}
