package cutsim

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/raster"
	"github.com/opd-ai/go-cutsim/internal/script"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

// ErrClosed is returned by operations on a closed simulator.
var ErrClosed = errors.New("simulator closed")

// ErrorCategory classifies errors for tracking and alerting.
type ErrorCategory int

const (
	// ErrorCategoryUnknown is the default category for uncategorized errors.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConfig is for configuration parsing and validation errors.
	ErrorCategoryConfig
	// ErrorCategoryScript is for job script errors.
	ErrorCategoryScript
	// ErrorCategoryDevice is for rejected device commands.
	ErrorCategoryDevice
	// ErrorCategoryRender is for preview and encoding errors.
	ErrorCategoryRender
	// ErrorCategoryIO is for local file errors.
	ErrorCategoryIO
	// ErrorCategoryNetwork is for SSH uploads and preview server errors.
	ErrorCategoryNetwork

	categoryCount
)

// String returns a human-readable name for the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConfig:
		return "config"
	case ErrorCategoryScript:
		return "script"
	case ErrorCategoryDevice:
		return "device"
	case ErrorCategoryRender:
		return "render"
	case ErrorCategoryIO:
		return "io"
	case ErrorCategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// ErrorSeverity indicates the severity level of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages that don't require action.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for rejected commands that leave the device unchanged.
	SeverityWarning
	// SeverityError is for failures that lose work, such as a failed save.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns a human-readable name for the severity level.
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with metadata for tracking and alerting.
type CategorizedError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Timestamp time.Time
	// Context holds key-value metadata such as the run ID or target.
	Context map[string]string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s/%s] (no error)", e.Severity, e.Category)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Severity, e.Category, e.Err.Error())
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorizedError creates a CategorizedError stamped with the current time.
func NewCategorizedError(err error, category ErrorCategory, severity ErrorSeverity) *CategorizedError {
	return &CategorizedError{
		Err:       err,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context and returns the error.
func (e *CategorizedError) WithContext(key, value string) *CategorizedError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// clone returns a copy that does not share the context map.
func (e CategorizedError) clone() CategorizedError {
	e.Context = maps.Clone(e.Context)
	return e
}

// Classify derives a category and severity from err by matching the
// sentinel errors of the simulator packages.
func Classify(err error) (ErrorCategory, ErrorSeverity) {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category, ce.Severity
	}

	var netErr net.Error
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return ErrorCategoryUnknown, SeverityInfo
	case errors.Is(err, device.ErrCanvasLeaked):
		return ErrorCategoryDevice, SeverityError
	case errors.Is(err, device.ErrPersistenceFailed):
		if errors.Is(err, ErrCircuitOpen) || errors.As(err, &netErr) {
			return ErrorCategoryNetwork, SeverityError
		}
		if errors.Is(err, raster.ErrUnsupportedFormat) {
			return ErrorCategoryRender, SeverityError
		}
		return ErrorCategoryIO, SeverityError
	case errors.Is(err, device.ErrNotRunning),
		errors.Is(err, device.ErrInvalidToolWidth),
		errors.Is(err, device.ErrNoCanvas),
		errors.Is(err, device.ErrClosed),
		errors.Is(err, ErrClosed):
		return ErrorCategoryDevice, SeverityWarning
	case errors.Is(err, script.ErrResourceLimit):
		return ErrorCategoryScript, SeverityError
	case errors.Is(err, script.ErrScript), errors.Is(err, script.ErrNilPlotter):
		return ErrorCategoryScript, SeverityError
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, sink.ErrInvalidTarget):
		return ErrorCategoryConfig, SeverityError
	case errors.Is(err, raster.ErrUnsupportedFormat):
		return ErrorCategoryRender, SeverityError
	case errors.Is(err, ErrCircuitOpen), errors.As(err, &netErr):
		return ErrorCategoryNetwork, SeverityError
	case errors.As(err, &pathErr):
		return ErrorCategoryIO, SeverityError
	default:
		return ErrorCategoryUnknown, SeverityError
	}
}

// categorize wraps err unless it already carries a category.
func categorize(err error) *CategorizedError {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce
	}
	category, severity := Classify(err)
	return NewCategorizedError(err, category, severity)
}

// AlertCondition defines when an alert should be triggered.
type AlertCondition struct {
	// Category filters alerts to a specific error category.
	// ErrorCategoryUnknown matches all categories.
	Category ErrorCategory
	// MinSeverity is the minimum severity level to trigger the alert.
	MinSeverity ErrorSeverity
	// Threshold is the number of errors within the window to trigger.
	Threshold int
	// Window is the time window for counting errors.
	Window time.Duration
}

func (c AlertCondition) matches(e CategorizedError, cutoff time.Time) bool {
	if e.Timestamp.Before(cutoff) || e.Severity < c.MinSeverity {
		return false
	}
	return c.Category == ErrorCategoryUnknown || e.Category == c.Category
}

// AlertHandler is called when an alert condition is met. It must not block.
type AlertHandler func(condition AlertCondition, errorCount int, recentErrors []CategorizedError)

// maxAlertExamples caps the errors passed to an AlertHandler.
const maxAlertExamples = 10

// ErrorTracker keeps a sliding window of recent errors and raises alerts.
// Thread-safe for concurrent use.
type ErrorTracker struct {
	mu            sync.RWMutex
	errors        []CategorizedError
	maxErrors     int
	retentionTime time.Duration
	conditions    []AlertCondition
	handlers      []AlertHandler
	lastAlert     map[int]time.Time
	alertCooldown time.Duration

	categoryCounters [categoryCount]atomic.Int64
}

// ErrorTrackerConfig configures an ErrorTracker.
type ErrorTrackerConfig struct {
	// MaxErrors is the maximum number of errors to retain (default: 1000).
	MaxErrors int
	// RetentionTime is how long to retain errors (default: 1 hour).
	RetentionTime time.Duration
	// AlertCooldown is the minimum time between repeated alerts (default: 5 minutes).
	AlertCooldown time.Duration
}

// DefaultErrorTrackerConfig returns the default tracker configuration.
func DefaultErrorTrackerConfig() ErrorTrackerConfig {
	return ErrorTrackerConfig{
		MaxErrors:     1000,
		RetentionTime: time.Hour,
		AlertCooldown: 5 * time.Minute,
	}
}

// NewErrorTracker creates an ErrorTracker. Zero fields take their defaults.
func NewErrorTracker(cfg ErrorTrackerConfig) *ErrorTracker {
	def := DefaultErrorTrackerConfig()
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if cfg.RetentionTime <= 0 {
		cfg.RetentionTime = def.RetentionTime
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = def.AlertCooldown
	}

	return &ErrorTracker{
		errors:        make([]CategorizedError, 0, min(cfg.MaxErrors, 64)),
		maxErrors:     cfg.MaxErrors,
		retentionTime: cfg.RetentionTime,
		lastAlert:     make(map[int]time.Time),
		alertCooldown: cfg.AlertCooldown,
	}
}

// AddCondition registers an alert condition to monitor.
func (t *ErrorTracker) AddCondition(cond AlertCondition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conditions = append(t.conditions, cond)
}

// SetAlertHandler registers a handler for all alert conditions.
// Multiple handlers can be registered by calling this method multiple times.
func (t *ErrorTracker) SetAlertHandler(handler AlertHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

// Record adds an error to the tracker and checks alert conditions.
func (t *ErrorTracker) Record(err *CategorizedError) {
	if err == nil {
		return
	}
	if err.Category >= 0 && err.Category < categoryCount {
		t.categoryCounters[err.Category].Add(1)
	}

	t.mu.Lock()
	t.errors = append(t.errors, err.clone())
	if len(t.errors) > t.maxErrors {
		t.errors = t.errors[len(t.errors)-t.maxErrors:]
	}
	t.pruneExpired()

	type firing struct {
		cond     AlertCondition
		count    int
		examples []CategorizedError
	}
	var fired []firing
	now := time.Now()
	for i, cond := range t.conditions {
		if last, ok := t.lastAlert[i]; ok && now.Sub(last) < t.alertCooldown {
			continue
		}
		cutoff := now.Add(-cond.Window)
		count := 0
		var examples []CategorizedError
		for _, e := range t.errors {
			if !cond.matches(e, cutoff) {
				continue
			}
			count++
			if len(examples) < maxAlertExamples {
				examples = append(examples, e.clone())
			}
		}
		if count >= cond.Threshold {
			t.lastAlert[i] = now
			fired = append(fired, firing{cond, count, examples})
		}
	}
	handlers := append([]AlertHandler(nil), t.handlers...)
	t.mu.Unlock()

	for _, f := range fired {
		for _, h := range handlers {
			go func(h AlertHandler, f firing) {
				defer func() { _ = recover() }()
				h(f.cond, f.count, f.examples)
			}(h, f)
		}
	}
}

// pruneExpired drops errors older than the retention time. Caller holds mu.
func (t *ErrorTracker) pruneExpired() {
	cutoff := time.Now().Add(-t.retentionTime)
	start := 0
	for start < len(t.errors) && !t.errors[start].Timestamp.After(cutoff) {
		start++
	}
	if start > 0 {
		t.errors = t.errors[start:]
	}
}

// ErrorRate returns errors per second within window.
func (t *ErrorTracker) ErrorRate(window time.Duration) float64 {
	return t.rate(window, func(CategorizedError) bool { return true })
}

// ErrorRateByCategory returns errors per second of category within window.
func (t *ErrorTracker) ErrorRateByCategory(category ErrorCategory, window time.Duration) float64 {
	return t.rate(window, func(e CategorizedError) bool { return e.Category == category })
}

func (t *ErrorTracker) rate(window time.Duration, match func(CategorizedError) bool) float64 {
	if window <= 0 {
		return 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, e := range t.errors {
		if e.Timestamp.After(cutoff) && match(e) {
			count++
		}
	}
	return float64(count) / window.Seconds()
}

// Stats returns a snapshot of error statistics.
func (t *ErrorTracker) Stats() ErrorStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := ErrorStats{
		TotalErrors:      len(t.errors),
		ErrorsByCategory: make(map[ErrorCategory]int),
		ErrorsBySeverity: make(map[ErrorSeverity]int),
	}
	for _, e := range t.errors {
		stats.ErrorsByCategory[e.Category]++
		stats.ErrorsBySeverity[e.Severity]++
	}
	for i := range t.categoryCounters {
		stats.TotalByCategory = append(stats.TotalByCategory, CategoryCount{
			Category: ErrorCategory(i),
			Count:    t.categoryCounters[i].Load(),
		})
	}
	return stats
}

// RecentErrors returns up to limit of the most recent errors, oldest first.
func (t *ErrorTracker) RecentErrors(limit int) []CategorizedError {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || len(t.errors) == 0 {
		return nil
	}
	start := max(len(t.errors)-limit, 0)
	result := make([]CategorizedError, 0, len(t.errors)-start)
	for _, e := range t.errors[start:] {
		result = append(result, e.clone())
	}
	return result
}

// Clear removes all tracked errors. Lifetime category totals are kept.
func (t *ErrorTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = t.errors[:0]
	t.lastAlert = make(map[int]time.Time)
}

// ErrorStats summarizes tracked errors.
type ErrorStats struct {
	// TotalErrors is the number of errors currently retained.
	TotalErrors int
	// ErrorsByCategory counts retained errors by category.
	ErrorsByCategory map[ErrorCategory]int
	// ErrorsBySeverity counts retained errors by severity.
	ErrorsBySeverity map[ErrorSeverity]int
	// TotalByCategory contains lifetime totals per category.
	TotalByCategory []CategoryCount
}

// CategoryCount pairs a category with its count.
type CategoryCount struct {
	Category ErrorCategory
	Count    int64
}
