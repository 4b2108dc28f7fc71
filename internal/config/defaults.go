package config

import (
	"time"

	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

// Default values for configuration options.
const (
	// DefaultPreviewScale shows the raster at its natural size.
	DefaultPreviewScale = 1.0
	// DefaultPreviewTitle is the preview window title.
	DefaultPreviewTitle = "cutsim"
	// DefaultServeInterval is the websocket frame polling interval.
	DefaultServeInterval = 200 * time.Millisecond
	// DefaultJPEGQuality is used for JPEG targets.
	DefaultJPEGQuality = 95
	// DefaultSSHTimeout bounds SSH uploads.
	DefaultSSHTimeout = 30 * time.Second
)

// DefaultConfig returns a Config for a 6x6 inch, 100 DPI device with no
// output target and every optional surface disabled.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Width:       device.DefaultWidth,
			Height:      device.DefaultHeight,
			ResolutionX: device.DefaultResolution,
			ResolutionY: device.DefaultResolution,
		},
		Output: OutputConfig{
			MinLength:          sink.DefaultMinTargetLength,
			RequireKnownFormat: true,
			JPEGQuality:        DefaultJPEGQuality,
		},
		Preview: PreviewConfig{
			Scale: DefaultPreviewScale,
			Title: DefaultPreviewTitle,
		},
		Serve: ServeConfig{
			Interval: DefaultServeInterval,
		},
		SSH: SSHConfig{
			Timeout: DefaultSSHTimeout,
		},
	}
}
