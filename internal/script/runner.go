package script

import (
	"io/fs"
	"sync"
)

// Runner executes job scripts against a plotter. Every run gets a fresh Lua
// runtime so globals left by one job never leak into the next.
type Runner struct {
	plotter Plotter
	config  RuntimeConfig

	mu     sync.Mutex
	output string
}

// NewRunner creates a Runner for p.
func NewRunner(p Plotter, config RuntimeConfig) (*Runner, error) {
	if p == nil {
		return nil, ErrNilPlotter
	}
	return &Runner{plotter: p, config: config}, nil
}

// RunString runs Lua code as a job named name.
func (j *Runner) RunString(name, code string) error {
	return j.run(func(r *Runtime) error {
		_, err := r.ExecuteString(name, code)
		return err
	})
}

// RunFile runs a job file from disk.
func (j *Runner) RunFile(path string) error {
	return j.run(func(r *Runtime) error {
		_, err := r.ExecuteFile(path)
		return err
	})
}

// RunFS runs a job file from fsys.
func (j *Runner) RunFS(fsys fs.FS, path string) error {
	return j.run(func(r *Runtime) error {
		_, err := r.ExecuteFS(fsys, path)
		return err
	})
}

// Output returns what the last job printed.
func (j *Runner) Output() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.output
}

func (j *Runner) run(exec func(*Runtime) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := NewRuntime(j.config)
	defer r.Close()

	if _, err := NewPlotterAPI(r, j.plotter); err != nil {
		return err
	}
	err := exec(r)
	j.output = r.Output()
	return err
}
