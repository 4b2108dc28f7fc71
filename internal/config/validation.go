package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/opd-ai/go-cutsim/internal/raster"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

// maxRasterPixels bounds the canvas area; a larger canvas is almost always a
// unit mistake (e.g. a size given in millimetres).
const maxRasterPixels = 20000 * 20000

// ErrInvalidConfig is wrapped by the error ValidationResult.Error returns.
var ErrInvalidConfig = errors.New("validation failed")

// ValidationError represents a configuration validation error.
// It contains the field name and a description of the issue.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the results of a configuration validation.
type ValidationResult struct {
	// Errors contains all validation errors found.
	Errors []ValidationError
	// Warnings contains non-fatal issues.
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// Error returns a combined error message if there are errors, nil otherwise.
func (vr *ValidationResult) Error() error {
	if len(vr.Errors) == 0 {
		return nil
	}

	messages := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		messages = append(messages, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}

// AddError adds a validation error.
func (vr *ValidationResult) AddError(field, message string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (vr *ValidationResult) AddWarning(field, message string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Message: message})
}

// Validator checks configuration values.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every section of cfg.
func (v *Validator) Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	v.validateDevice(&cfg.Device, result)
	v.validateOutput(cfg, result)
	v.validatePreview(&cfg.Preview, result)
	v.validateServe(&cfg.Serve, result)
	v.validateSSH(cfg, result)

	return result
}

func (v *Validator) validateDevice(dc *DeviceConfig, result *ValidationResult) {
	positive := []struct {
		field string
		value float64
	}{
		{"width", dc.Width},
		{"height", dc.Height},
		{"resolution_x", dc.ResolutionX},
		{"resolution_y", dc.ResolutionY},
	}
	ok := true
	for _, p := range positive {
		if !(p.value > 0) {
			result.AddError(p.field, fmt.Sprintf("must be positive, got %g", p.value))
			ok = false
		}
	}
	if ok && dc.Width*dc.ResolutionX*dc.Height*dc.ResolutionY > maxRasterPixels {
		result.AddError("width", fmt.Sprintf("canvas of %.0fx%.0f pixels is too large",
			dc.Width*dc.ResolutionX, dc.Height*dc.ResolutionY))
	}

	if dc.ToolWidth < 0 {
		result.AddError("tool_width", fmt.Sprintf("must be non-negative, got %g", dc.ToolWidth))
	}
	if dc.ToolWidth > dc.Width && dc.ToolWidth > dc.Height {
		result.AddWarning("tool_width", fmt.Sprintf("tool width %g is wider than the canvas", dc.ToolWidth))
	}
}

func (v *Validator) validateOutput(cfg *Config, result *ValidationResult) {
	oc := &cfg.Output
	if oc.MinLength < 0 {
		result.AddError("output_min_length", fmt.Sprintf("must be non-negative, got %d", oc.MinLength))
	}
	if oc.JPEGQuality < 0 || oc.JPEGQuality > 100 {
		result.AddError("jpeg_quality", fmt.Sprintf("must be between 0 and 100, got %d", oc.JPEGQuality))
	}

	if oc.Target == "" {
		result.AddWarning("output", "no output target, the canvas will not be saved")
		return
	}
	if err := cfg.TargetPolicy().Check(oc.Target); err != nil {
		result.AddWarning("output", fmt.Sprintf("target will not be saved: %v", err))
		return
	}
	if strings.HasPrefix(oc.Target, "ssh://") {
		if _, err := sink.ParseSSHTarget(oc.Target); err != nil {
			result.AddError("output", err.Error())
		}
	} else if raster.FormatFromPath(oc.Target) == raster.FormatUnknown {
		result.AddWarning("output", "unknown image extension")
	}
}

func (v *Validator) validatePreview(pc *PreviewConfig, result *ValidationResult) {
	if !(pc.Scale > 0) {
		result.AddError("preview_scale", fmt.Sprintf("must be positive, got %g", pc.Scale))
	}
	if pc.Scale > 8 {
		result.AddWarning("preview_scale", fmt.Sprintf("unusually large scale %g", pc.Scale))
	}
	if pc.KeepAbove && !pc.Enabled {
		result.AddWarning("preview_keep_above", "has no effect without preview")
	}
}

func (v *Validator) validateServe(sc *ServeConfig, result *ValidationResult) {
	if sc.Address == "" {
		if sc.MDNS {
			result.AddWarning("mdns", "has no effect without serve")
		}
		return
	}
	if _, _, err := net.SplitHostPort(sc.Address); err != nil {
		result.AddError("serve", fmt.Sprintf("invalid listen address %q: %v", sc.Address, err))
	}
	if sc.Interval <= 0 {
		result.AddError("serve_interval", fmt.Sprintf("must be positive, got %v", sc.Interval))
	} else if sc.Interval < 20*time.Millisecond {
		result.AddWarning("serve_interval", fmt.Sprintf("very fast interval %v may cause high CPU usage", sc.Interval))
	}
}

func (v *Validator) validateSSH(cfg *Config, result *ValidationResult) {
	if cfg.SSH.Timeout < 0 {
		result.AddError("ssh_timeout", fmt.Sprintf("must be non-negative, got %v", cfg.SSH.Timeout))
	}
	if cfg.SSH.Insecure && strings.HasPrefix(cfg.Output.Target, "ssh://") {
		result.AddWarning("ssh_insecure", "host key verification is disabled")
	}
	if cfg.SSH.KeyPassphrase != "" && cfg.SSH.KeyPath == "" {
		result.AddWarning("ssh_key_passphrase", "has no effect without ssh_key")
	}
}

// ValidateConfig validates cfg and returns an error if it is invalid.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg).Error()
}
