package cutsim

import (
	"fmt"
	"image"
	"io"
	"io/fs"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/device"
)

// Point is a coordinate pair in logical units (inches by default).
type Point = device.Point

// Simulator is a virtual cutting plotter with persistence, job scripting
// and observability. It is safe for concurrent use from multiple goroutines.
type Simulator interface {
	// Start enters the running state, allocating a blank canvas if none
	// exists. Starting a running simulator changes nothing.
	Start() error

	// Stop leaves the running state, saves the canvas to the output target
	// when the target policy allows it, and releases the canvas. A save
	// failure is returned but the simulator is stopped regardless.
	Stop() error

	// MoveTo moves the tool without cutting. Requires the running state.
	MoveTo(p Point) error

	// CutTo cuts a straight line to p. Requires the running state.
	CutTo(p Point) error

	// CurveTo moves to p0 and cuts a cubic Bezier curve ending at p3.
	CurveTo(p0, p1, p2, p3 Point) error

	// SetToolWidth sets the tool diameter in logical units; w must be positive.
	SetToolWidth(w float64) error

	// Dimensions returns the logical canvas size.
	Dimensions() Point

	// LogicalPosition returns the tool position in logical units.
	LogicalPosition() Point

	// IsRunning returns true while the simulator is running.
	IsRunning() bool

	// Snapshot returns a copy of the canvas with the tool position marked.
	// It fails with an error wrapping device.ErrNoCanvas when no canvas exists.
	Snapshot() (*image.Gray, error)

	// Revision increases whenever the snapshot would change.
	Revision() uint64

	// Reset clears the canvas and homes the tool.
	Reset() error

	// SetTarget changes the output target used by the next Stop. It waits
	// for a Stop already in progress.
	SetTarget(target string)

	// Target returns the current output target.
	Target() string

	// RunJob executes a Lua job file against this simulator.
	RunJob(path string) error

	// RunJobFS executes a Lua job file from fsys.
	RunJobFS(fsys fs.FS, path string) error

	// RunJobString executes Lua code as a job named name.
	RunJobString(name, code string) error

	// JobOutput returns what the last job printed.
	JobOutput() string

	// WatchJob runs path whenever it changes on disk, until Close or the
	// next WatchJob call. It does not run the job immediately.
	WatchJob(path string) error

	// Status returns detailed status information.
	Status() Status

	// Health returns a health check result.
	Health() HealthCheck

	// Metrics returns the metrics collector for this simulator.
	Metrics() *Metrics

	// ErrorTracker returns the error tracker for this simulator.
	ErrorTracker() *ErrorTracker

	// SetErrorHandler registers a callback for runtime errors.
	// The handler is invoked asynchronously and a panicking handler is
	// recovered.
	SetErrorHandler(handler ErrorHandler)

	// SetEventHandler registers a callback for lifecycle events.
	SetEventHandler(handler EventHandler)

	// Close decommissions the simulator. A canvas that was never stopped
	// is dropped without saving and reported as device.ErrCanvasLeaked.
	// Every later operation fails with ErrClosed.
	Close() error
}

// Config is the simulator configuration.
type Config = config.Config

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// New creates a simulator from a Lua configuration file on disk.
// An empty configPath uses DefaultConfig.
//
// Example:
//
//	sim, err := cutsim.New("plotter.lua", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sim.Close()
//	if err := sim.RunJob("star.lua"); err != nil {
//		log.Fatal(err)
//	}
func New(configPath string, opts *Options) (Simulator, error) {
	if configPath == "" {
		cfg := config.DefaultConfig()
		return newSimulator(&cfg, opts, "defaults")
	}

	parser := config.NewParser()
	defer parser.Close()

	cfg, err := parser.ParseFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return newSimulator(cfg, opts, configPath)
}

// NewFromFS creates a simulator using a configuration file from fsys,
// such as an embed.FS.
func NewFromFS(fsys fs.FS, configPath string, opts *Options) (Simulator, error) {
	parser := config.NewParser()
	defer parser.Close()

	cfg, err := parser.ParseFromFS(fsys, configPath)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return newSimulator(cfg, opts, "fs:"+configPath)
}

// NewFromReader creates a simulator from configuration content in r.
func NewFromReader(r io.Reader, opts *Options) (Simulator, error) {
	parser := config.NewParser()
	defer parser.Close()

	cfg, err := parser.ParseReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return newSimulator(cfg, opts, "reader")
}

// NewWithConfig creates a simulator from an already built configuration.
// cfg is copied.
func NewWithConfig(cfg Config, opts *Options) (Simulator, error) {
	return newSimulator(&cfg, opts, "config")
}
