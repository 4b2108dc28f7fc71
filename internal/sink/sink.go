// Package sink persists finished canvases to output targets.
// A target is an opaque string: a local file path, or an ssh:// URL handled
// by SSHSink. The codec is chosen from the target's file extension.
package sink

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/go-cutsim/internal/raster"
)

// DefaultMinTargetLength reproduces the historical "longer than four
// characters" rule for output file names.
const DefaultMinTargetLength = 5

var (
	// ErrInvalidTarget is returned when a target fails the TargetPolicy.
	ErrInvalidTarget = errors.New("invalid output target")
	// ErrNoSink is returned when a Router has no sink for a target.
	ErrNoSink = errors.New("no sink for target")
)

// Sink writes an image to an output target.
type Sink interface {
	Persist(ctx context.Context, target string, img image.Image) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, target string, img image.Image) error

// Persist calls f.
func (f SinkFunc) Persist(ctx context.Context, target string, img image.Image) error {
	return f(ctx, target, img)
}

// TargetPolicy decides whether an output target is worth persisting to.
type TargetPolicy struct {
	// MinLength is the minimum target length in bytes.
	MinLength int
	// RequireKnownFormat rejects targets whose extension has no codec.
	RequireKnownFormat bool
}

// DefaultTargetPolicy returns the policy used when none is configured.
func DefaultTargetPolicy() TargetPolicy {
	return TargetPolicy{
		MinLength:          DefaultMinTargetLength,
		RequireKnownFormat: true,
	}
}

// Valid reports whether the target passes the policy.
func (p TargetPolicy) Valid(target string) bool {
	return p.Check(target) == nil
}

// Check returns nil if the target passes the policy, or an error wrapping
// ErrInvalidTarget that explains why it does not.
func (p TargetPolicy) Check(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if len(target) < p.MinLength {
		return fmt.Errorf("%w: %q is shorter than %d characters", ErrInvalidTarget, target, p.MinLength)
	}
	if p.RequireKnownFormat && raster.FormatFromPath(targetPath(target)) == raster.FormatUnknown {
		return fmt.Errorf("%w: %q has no known image extension", ErrInvalidTarget, target)
	}
	return nil
}

// targetPath strips any URL prefix so the extension can be inspected.
func targetPath(target string) string {
	if strings.HasPrefix(target, sshScheme) {
		if t, err := ParseSSHTarget(target); err == nil {
			return t.Path
		}
	}
	return target
}

// FileSink writes images to the local filesystem.
type FileSink struct {
	// Options are passed to the encoder.
	Options raster.EncodeOptions
	// DirMode is used when creating missing parent directories.
	// Zero means 0o755.
	DirMode os.FileMode
}

// Persist encodes img by the target's extension and writes it atomically:
// the image is written to a temporary file in the same directory which is
// then renamed over the target.
func (s *FileSink) Persist(ctx context.Context, target string, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	format := raster.FormatFromPath(target)
	if format == raster.FormatUnknown {
		return fmt.Errorf("%w: %s", raster.ErrUnsupportedFormat, filepath.Ext(target))
	}

	dir := filepath.Dir(target)
	mode := s.DirMode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if err := raster.Encode(tmp, img, format, s.Options); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	committed = true
	return nil
}

// Router dispatches targets to the sink registered for their scheme.
type Router struct {
	// Local handles plain paths.
	Local Sink
	// Remote handles ssh:// URLs. Nil disables remote targets.
	Remote Sink
}

// NewRouter creates a Router with a FileSink for local paths.
func NewRouter(opts raster.EncodeOptions, remote Sink) *Router {
	return &Router{
		Local:  &FileSink{Options: opts},
		Remote: remote,
	}
}

// Persist forwards to the sink that handles target.
func (r *Router) Persist(ctx context.Context, target string, img image.Image) error {
	if strings.HasPrefix(target, sshScheme) {
		if r.Remote == nil {
			return fmt.Errorf("%w: %s", ErrNoSink, target)
		}
		return r.Remote.Persist(ctx, target, img)
	}
	if r.Local == nil {
		return fmt.Errorf("%w: %s", ErrNoSink, target)
	}
	return r.Local.Persist(ctx, target, img)
}
