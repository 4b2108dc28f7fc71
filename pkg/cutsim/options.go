package cutsim

import (
	"context"
	"image"
	"io"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for the canvas to be saved.
// This can be overridden via Options.StopTimeout.
const DefaultStopTimeout = 30 * time.Second

// PersistFunc saves a finished canvas to target.
type PersistFunc func(ctx context.Context, target string, img image.Image) error

// Options configures Simulator behavior.
type Options struct {
	// Target overrides the configuration's output target.
	// Empty string means use the configuration file's value.
	Target string

	// LuaCPULimit overrides the job CPU instruction limit.
	// Zero means use the default (100 million instructions).
	LuaCPULimit uint64

	// LuaMemoryLimit overrides the job memory limit in bytes.
	// Zero means use the default (64 MB).
	LuaMemoryLimit uint64

	// ScriptOutput receives what jobs print, in addition to JobOutput.
	// If nil, job output is only captured.
	ScriptOutput io.Writer

	// StopTimeout is the maximum time Stop waits for persistence.
	// Zero means use DefaultStopTimeout.
	StopTimeout time.Duration

	// Logger sets a custom logger for debug/info messages.
	// If nil, no logging is performed.
	Logger Logger

	// Metrics sets a custom metrics collector.
	// If nil, DefaultMetrics() is used.
	Metrics *Metrics

	// ErrorTracker sets a custom error tracker for aggregation and alerting.
	// If nil, each simulator gets its own tracker with default settings.
	ErrorTracker *ErrorTracker

	// WatchDebounce sets the debounce interval for job file change events.
	// Zero means use the default (500ms).
	WatchDebounce time.Duration

	// CircuitBreaker configures the breaker guarding ssh:// uploads.
	// Zero fields take their defaults.
	CircuitBreaker CircuitBreakerConfig

	// Persist replaces the built-in file and SSH output. The target policy
	// still decides whether it is called.
	Persist PersistFunc
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		StopTimeout:    DefaultStopTimeout,
		WatchDebounce:  DefaultWatchDebounce,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}
