// Package config provides configuration data structures for cutsim.
// Configuration is written in Lua as a cutsim.config table and covers the
// simulated device, the output target, the live preview and remote output.
package config

import (
	"time"

	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/raster"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

// Config represents the complete cutsim configuration.
type Config struct {
	// Device describes the simulated plotter.
	Device DeviceConfig
	// Output controls where and how the canvas is saved on stop.
	Output OutputConfig
	// Preview controls the local preview window.
	Preview PreviewConfig
	// Serve controls the HTTP/websocket preview server.
	Serve ServeConfig
	// SSH configures uploads to ssh:// output targets.
	SSH SSHConfig
	// Job names a job script to run at startup.
	Job JobConfig
}

// DeviceConfig describes the simulated plotter.
type DeviceConfig struct {
	// Width and Height are the logical canvas size in inches.
	Width  float64
	Height float64
	// ResolutionX and ResolutionY are pixels per inch.
	ResolutionX float64
	ResolutionY float64
	// ToolWidth is the initial tool diameter in inches. Zero keeps the
	// device default of one pixel.
	ToolWidth float64
}

// OutputConfig controls persistence of the canvas.
type OutputConfig struct {
	// Target is a file path or ssh:// URL. Environment variables are expanded.
	Target string
	// MinLength is the shortest target that is persisted to.
	MinLength int
	// RequireKnownFormat skips targets whose extension has no codec.
	RequireKnownFormat bool
	// JPEGQuality is used for .jpg targets.
	JPEGQuality int
}

// PreviewConfig controls the preview window.
type PreviewConfig struct {
	// Enabled opens the window.
	Enabled bool
	// Scale multiplies the window size relative to the raster size.
	Scale float64
	// Title is the window title.
	Title string
	// KeepAbove asks the window manager to keep the window on top.
	KeepAbove bool
}

// ServeConfig controls the preview server.
type ServeConfig struct {
	// Address is the listen address, e.g. ":8080". Empty disables the server.
	Address string
	// Interval is how often websocket clients are checked for new frames.
	Interval time.Duration
	// MDNS advertises the server on the local network.
	MDNS bool
	// MDNSName is the advertised instance name. Empty means the host name.
	MDNSName string
}

// SSHConfig configures the SSH sink.
type SSHConfig struct {
	// User is used when the target URL has no user.
	User string
	// KeyPath is a private key file. Empty means use the SSH agent.
	KeyPath string
	// KeyPassphrase decrypts KeyPath.
	KeyPassphrase string
	// KnownHosts is the known_hosts file. Empty means ~/.ssh/known_hosts.
	KnownHosts string
	// Insecure skips host key verification.
	Insecure bool
	// Timeout bounds connection and upload.
	Timeout time.Duration
}

// JobConfig names a job script.
type JobConfig struct {
	// Path is a Lua job file run after startup.
	Path string
	// Watch re-runs the job whenever the file changes.
	Watch bool
}

// TargetPolicy returns the sink policy described by the output settings.
func (c *Config) TargetPolicy() sink.TargetPolicy {
	return sink.TargetPolicy{
		MinLength:          c.Output.MinLength,
		RequireKnownFormat: c.Output.RequireKnownFormat,
	}
}

// EncodeOptions returns codec settings with the PDF page sized to the canvas.
func (c *Config) EncodeOptions() raster.EncodeOptions {
	return raster.EncodeOptions{
		JPEGQuality: c.Output.JPEGQuality,
		PageWidth:   c.Device.Width,
		PageHeight:  c.Device.Height,
	}
}

// DeviceOptions returns device options for this configuration. The sink is
// left for the caller to choose.
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		Size:       device.Point{X: c.Device.Width, Y: c.Device.Height},
		Resolution: device.Resolution{X: c.Device.ResolutionX, Y: c.Device.ResolutionY},
		Target:     c.Output.Target,
		Policy:     c.TargetPolicy(),
	}
}

// Validate checks the configuration and returns the first error found.
func (c *Config) Validate() error {
	return NewValidator().Validate(c).Error()
}
