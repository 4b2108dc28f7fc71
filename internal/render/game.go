// Package render shows the plotter canvas in an Ebiten window.
// The viewer only reads snapshots; it never touches the live canvas.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/opd-ai/go-cutsim/internal/device"
)

// ErrGameTerminated is returned when the viewer loop is terminated via context cancellation.
var ErrGameTerminated = errors.New("game terminated")

// Viewer defaults.
const (
	DefaultTitle        = "cutsim"
	DefaultScale        = 1.0
	DefaultPollInterval = 100 * time.Millisecond
)

// SnapshotSource provides canvas copies and a counter that changes whenever
// the canvas does.
type SnapshotSource interface {
	Snapshot() (*image.Gray, error)
	Revision() uint64
}

// ErrorHandler is a function type for handling errors during viewer updates.
type ErrorHandler func(err error)

// DefaultErrorHandler writes errors to stderr.
func DefaultErrorHandler(err error) {
	fmt.Fprintf(os.Stderr, "preview error: %v\n", err)
}

// Config holds viewer window settings.
type Config struct {
	// Width and Height are the canvas size in pixels, used for the window
	// before the first frame arrives.
	Width  int
	Height int
	// Scale multiplies the canvas size to get the window size.
	Scale float64
	Title string
	// KeepAbove asks the window manager to keep the window on top.
	KeepAbove bool
	// PollInterval is how often the source revision is checked.
	PollInterval time.Duration
	// Background fills the window while no canvas is allocated.
	Background color.Color
}

// DefaultConfig returns a Config for a 600x600 canvas.
func DefaultConfig() Config {
	return Config{
		Width:        600,
		Height:       600,
		Scale:        DefaultScale,
		Title:        DefaultTitle,
		PollInterval: DefaultPollInterval,
		Background:   color.Gray{Y: 0x40},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if !(c.Scale > 0) {
		c.Scale = d.Scale
	}
	if c.Title == "" {
		c.Title = d.Title
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Background == nil {
		c.Background = d.Background
	}
	return c
}

// Viewer implements ebiten.Game and displays the latest canvas snapshot.
type Viewer struct {
	config       Config
	source       SnapshotSource
	errorHandler ErrorHandler

	mu           sync.RWMutex
	ctx          context.Context
	frame        *ebiten.Image
	pixels       []byte
	revision     uint64
	hasFrame     bool
	lastPoll     time.Time
	uploads      int
	hintsApplied bool
	running      bool
}

// NewViewer creates a viewer that polls source.
func NewViewer(source SnapshotSource, config Config) *Viewer {
	return &Viewer{
		config:       config.withDefaults(),
		source:       source,
		errorHandler: DefaultErrorHandler,
	}
}

// SetErrorHandler sets a custom error handler for snapshot errors.
// If nil is passed, errors will be silently ignored.
func (v *Viewer) SetErrorHandler(handler ErrorHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errorHandler = handler
}

// SetContext sets a context for the viewer loop. When the context is
// cancelled, Update returns ErrGameTerminated.
func (v *Viewer) SetContext(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctx = ctx
}

// Update implements ebiten.Game.Update.
func (v *Viewer) Update() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ctx != nil {
		select {
		case <-v.ctx.Done():
			return ErrGameTerminated
		default:
		}
	}

	if v.config.KeepAbove && !v.hintsApplied && v.running {
		v.hintsApplied = true
		if err := ApplyWindowHints(v.config.Title, WindowHints{KeepAbove: true}); err != nil && v.errorHandler != nil {
			v.errorHandler(err)
		}
	}

	if time.Since(v.lastPoll) < v.config.PollInterval {
		return nil
	}
	v.lastPoll = time.Now()
	v.poll()
	return nil
}

// poll re-uploads the frame when the source revision moved. Caller holds mu.
func (v *Viewer) poll() {
	rev := v.source.Revision()
	if v.hasFrame && rev == v.revision {
		return
	}

	img, err := v.source.Snapshot()
	if err != nil {
		// Between jobs there is no canvas; show the background.
		if errors.Is(err, device.ErrNoCanvas) {
			v.hasFrame = false
			v.revision = rev
			return
		}
		if v.errorHandler != nil {
			v.errorHandler(err)
		}
		return
	}

	b := img.Bounds()
	if v.frame == nil || v.frame.Bounds().Dx() != b.Dx() || v.frame.Bounds().Dy() != b.Dy() {
		if v.frame != nil {
			v.frame.Deallocate()
		}
		v.frame = ebiten.NewImage(b.Dx(), b.Dy())
	}
	v.pixels = grayToRGBA(v.pixels, img)
	v.frame.WritePixels(v.pixels)
	v.config.Width, v.config.Height = b.Dx(), b.Dy()
	v.revision = rev
	v.hasFrame = true
	v.uploads++
}

// grayToRGBA expands img into an opaque RGBA byte slice, reusing dst when it
// is large enough.
func grayToRGBA(dst []byte, img *image.Gray) []byte {
	b := img.Bounds()
	n := b.Dx() * b.Dy() * 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			g := row[x]
			dst[i], dst[i+1], dst[i+2], dst[i+3] = g, g, g, 0xff
			i += 4
		}
	}
	return dst
}

// Draw implements ebiten.Game.Draw.
func (v *Viewer) Draw(screen *ebiten.Image) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	screen.Fill(v.config.Background)
	if !v.hasFrame || v.frame == nil {
		return
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(v.config.Scale, v.config.Scale)
	op.Filter = ebiten.FilterNearest
	screen.DrawImage(v.frame, op)
}

// Layout implements ebiten.Game.Layout.
// It returns the scaled canvas size.
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.windowSize()
}

func (v *Viewer) windowSize() (int, int) {
	w := int(float64(v.config.Width)*v.config.Scale + 0.5)
	h := int(float64(v.config.Height)*v.config.Scale + 0.5)
	return max(w, 1), max(h, 1)
}

// Config returns the current configuration.
func (v *Viewer) Config() Config {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config
}

// Revision returns the source revision of the frame on screen.
func (v *Viewer) Revision() (uint64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revision, v.hasFrame
}

// Run opens the window and starts the Ebiten loop.
// This function blocks until the window is closed or the context is cancelled.
func (v *Viewer) Run() error {
	v.mu.Lock()
	w, h := v.windowSize()
	title := v.config.Title
	v.running = true
	v.mu.Unlock()

	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)

	err := ebiten.RunGame(v)

	v.mu.Lock()
	v.running = false
	v.mu.Unlock()
	CloseWindowHints()

	if errors.Is(err, ErrGameTerminated) {
		return nil
	}
	return err
}

// IsRunning returns whether the viewer loop is currently running.
func (v *Viewer) IsRunning() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.running
}
