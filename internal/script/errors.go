package script

import "errors"

var (
	// ErrNilPlotter is returned when a job runner is created without a plotter.
	ErrNilPlotter = errors.New("plotter cannot be nil")

	// ErrScript wraps errors raised while a job is executing.
	ErrScript = errors.New("job script error")

	// ErrResourceLimit is returned when a job exceeds its CPU or memory limit.
	ErrResourceLimit = errors.New("job exceeded resource limit")
)
