// Package device implements the virtual cutting plotter: a run/stop state
// machine that tracks the tool position in raster space and strokes cuts onto
// a canvas which is persisted to an output target when the run stops.
package device

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/opd-ai/go-cutsim/internal/raster"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

// Point is a coordinate pair in logical or raster space.
type Point = raster.Point

const (
	// DefaultWidth and DefaultHeight are the logical canvas size in inches.
	DefaultWidth  = 6.0
	DefaultHeight = 6.0

	// DefaultResolution is the number of pixels per inch on each axis.
	DefaultResolution = 100.0

	// CutLevel is the gray level of a cut.
	CutLevel uint8 = 120

	// MarkerLevel is the gray level of the snapshot position marker.
	MarkerLevel uint8 = 250

	// MarkerRadius and MarkerThickness describe the marker circle in pixels.
	MarkerRadius    = 10.0
	MarkerThickness = 2.0

	// MarkerArm is the half-length in pixels of each arm of the marker cross.
	MarkerArm = 5.0
)

// SurfaceFactory allocates a zeroed canvas of the given pixel size.
type SurfaceFactory func(width, height int) raster.Surface

// Options configures a Device.
type Options struct {
	// Size is the logical canvas size. Non-positive components use the defaults.
	Size Point
	// Resolution is pixels per logical unit. Non-positive components use
	// DefaultResolution.
	Resolution Resolution
	// Target is the output target persisted to on Stop.
	Target string
	// Policy decides whether Target is persisted to.
	Policy sink.TargetPolicy
	// Sink writes the canvas on Stop. Nil disables persistence.
	Sink sink.Sink
	// NewSurface allocates canvases. Nil means raster.NewGray.
	NewSurface SurfaceFactory
}

// DefaultOptions returns a 6x6 inch, 100 DPI device with the default target
// policy and a local file sink.
func DefaultOptions() Options {
	return Options{
		Size:       Point{X: DefaultWidth, Y: DefaultHeight},
		Resolution: Resolution{X: DefaultResolution, Y: DefaultResolution},
		Policy:     sink.DefaultTargetPolicy(),
		Sink:       &sink.FileSink{},
	}
}

// State is a point-in-time view of the device.
type State struct {
	Running         bool
	Position        Point
	ToolWidth       int
	CanvasAllocated bool
	Target          string
	Revision        uint64
}

// Device is a simulated plotter. All methods are safe for concurrent use;
// each call holds the device lock for its duration, except that Stop
// persists outside the lock.
type Device struct {
	mu         sync.Mutex
	size       Point
	res        Resolution
	policy     sink.TargetPolicy
	sink       sink.Sink
	newSurface SurfaceFactory

	running   bool
	closed    bool
	position  Point
	toolWidth int
	canvas    canvasSlot
	target    string
	revision  uint64
}

// New creates a stopped device with no canvas.
func New(opts Options) *Device {
	if opts.Size.X <= 0 {
		opts.Size.X = DefaultWidth
	}
	if opts.Size.Y <= 0 {
		opts.Size.Y = DefaultHeight
	}
	if opts.Resolution.X <= 0 {
		opts.Resolution.X = DefaultResolution
	}
	if opts.Resolution.Y <= 0 {
		opts.Resolution.Y = DefaultResolution
	}
	if opts.NewSurface == nil {
		opts.NewSurface = func(w, h int) raster.Surface { return raster.NewGray(w, h) }
	}

	return &Device{
		size:       opts.Size,
		res:        opts.Resolution,
		policy:     opts.Policy,
		sink:       opts.Sink,
		newSurface: opts.NewSurface,
		toolWidth:  1,
		target:     opts.Target,
	}
}

// Start enters the running state. The canvas is allocated and zeroed only if
// none exists; starting an already running device changes nothing.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if !d.canvas.allocated() {
		w, h := d.res.PixelSize(d.size)
		s := d.newSurface(w, h)
		s.Zero()
		d.canvas.allocate(s)
		d.revision++
	}
	d.running = true
	return nil
}

// Stop leaves the running state and releases the canvas. If the target
// passes the policy the canvas is persisted first; a sink failure is
// returned wrapped in ErrPersistenceFailed but does not undo the transition.
func (d *Device) Stop() error {
	return d.StopContext(context.Background())
}

// StopContext is Stop with a context bounding persistence.
func (d *Device) StopContext(ctx context.Context) error {
	d.mu.Lock()
	d.running = false
	surface := d.canvas.release()
	if surface != nil {
		d.revision++
	}
	target, policy, out := d.target, d.policy, d.sink
	d.mu.Unlock()

	if surface == nil || out == nil || !policy.Valid(target) {
		return nil
	}
	if err := out.Persist(ctx, target, surface.Image()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersistenceFailed, target, err)
	}
	return nil
}

// MoveTo moves the tool to p without cutting.
func (d *Device) MoveTo(p Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotRunning
	}
	d.moveTo(d.res.Transform(p))
	return nil
}

// CutTo cuts a straight line from the current position to p. The position
// is tracked even when no canvas is allocated.
func (d *Device) CutTo(p Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotRunning
	}
	d.cutTo(d.res.Transform(p))
	return nil
}

// CurveTo moves to p0 and cuts a cubic Bezier through the control points as
// CurveSegments straight cuts ending exactly at p3.
func (d *Device) CurveTo(p0, p1, p2, p3 Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotRunning
	}
	pts := Bezier{P0: p0, P1: p1, P2: p2, P3: p3}.Polyline(CurveSegments)
	d.moveTo(d.res.Transform(pts[0]))
	for _, p := range pts[1:] {
		d.cutTo(d.res.Transform(p))
	}
	return nil
}

func (d *Device) moveTo(p Point) {
	d.position = p
	d.revision++
}

func (d *Device) cutTo(p Point) {
	if s := d.canvas.surface; s != nil {
		s.DrawLine(d.position, p, CutLevel, float64(d.toolWidth))
	}
	d.position = p
	d.revision++
}

// SetToolWidth sets the tool diameter in logical units. The stroke is the
// diameter scaled by the mean resolution, never thinner than one pixel and
// never wider than MaxToolWidth.
func (d *Device) SetToolWidth(w float64) error {
	if !(w > 0) || math.IsInf(w, 1) {
		return fmt.Errorf("%w: %g", ErrInvalidToolWidth, w)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolWidth = toolWidthPixels(w, d.res)
	return nil
}

// Dimensions returns the configured logical canvas size.
func (d *Device) Dimensions() Point {
	return d.size
}

// Resolution returns the configured pixels per logical unit.
func (d *Device) Resolution() Resolution {
	return d.res
}

// Snapshot returns a copy of the canvas with the tool position marked by a
// circle and a cross. The device and its canvas are not modified.
func (d *Device) Snapshot() (*image.Gray, error) {
	d.mu.Lock()
	if !d.canvas.allocated() {
		d.mu.Unlock()
		return nil, ErrNoCanvas
	}
	frame := d.canvas.surface.Clone()
	pos := d.position
	d.mu.Unlock()

	drawMarker(frame, pos)
	return frame.Image(), nil
}

func drawMarker(s raster.Surface, at Point) {
	s.DrawCircle(at, MarkerRadius, MarkerLevel, MarkerThickness)
	s.DrawLine(at.Add(Point{X: -MarkerArm, Y: -MarkerArm}), at.Add(Point{X: MarkerArm, Y: MarkerArm}), MarkerLevel, 1)
	s.DrawLine(at.Add(Point{X: -MarkerArm, Y: MarkerArm}), at.Add(Point{X: MarkerArm, Y: -MarkerArm}), MarkerLevel, 1)
}

// Reset clears the canvas and homes the tool without leaving the running state.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.canvas.allocated() {
		return ErrNoCanvas
	}
	d.canvas.surface.Zero()
	d.position = Point{}
	d.revision++
	return nil
}

// Close decommissions the device. A canvas that was never released by Stop
// is dropped without persisting and reported as ErrCanvasLeaked.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.running = false
	if d.canvas.release() != nil {
		d.revision++
		return ErrCanvasLeaked
	}
	return nil
}

// Position returns the tool position in raster space.
func (d *Device) Position() Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// LogicalPosition returns the tool position in logical units.
func (d *Device) LogicalPosition() Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res.Untransform(d.position)
}

// ToolWidth returns the stroke thickness in pixels.
func (d *Device) ToolWidth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toolWidth
}

// IsRunning reports whether the device is running.
func (d *Device) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Target returns the output target.
func (d *Device) Target() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// SetTarget changes the output target used by the next Stop.
func (d *Device) SetTarget(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = target
}

// Revision increases whenever the snapshot would change: on canvas
// allocation, release, reset, and every move or cut.
func (d *Device) Revision() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// State returns a consistent view of the device.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Running:         d.running,
		Position:        d.position,
		ToolWidth:       d.toolWidth,
		CanvasAllocated: d.canvas.allocated(),
		Target:          d.target,
		Revision:        d.revision,
	}
}
