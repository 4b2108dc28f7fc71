package cutsim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/opd-ai/go-cutsim/internal/sink"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets uploads through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects uploads without contacting the host.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial uploads through.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when remote uploads are suspended after
// repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures the breaker guarding remote uploads.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 3.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes the
	// circuit again. Default: 1.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before a trial upload.
	// Default: 30 seconds.
	Timeout time.Duration

	// MaxHalfOpenRequests is the number of concurrent trial uploads.
	// Default: 1.
	MaxHalfOpenRequests int

	// OnStateChange is called asynchronously when the state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the default breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker stops the simulator from hammering an unreachable upload
// host: after FailureThreshold failures, calls fail fast with
// ErrCircuitOpen until Timeout has passed.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu               sync.Mutex
	state            CircuitState
	failures         int
	successes        int
	openedAt         time.Time
	lastFailure      time.Time
	halfOpenRequests int
	totalSuccesses   int64
	totalFailures    int64
	totalRejections  int64
}

// NewCircuitBreaker creates a breaker. Zero fields take their defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxHalfOpenRequests <= 0 {
		config.MaxHalfOpenRequests = def.MaxHalfOpenRequests
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current state. An open circuit whose timeout has passed
// reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// CircuitBreakerStats contains statistics about circuit breaker operation.
type CircuitBreakerStats struct {
	State           CircuitState
	Failures        int
	TotalSuccesses  int64
	TotalFailures   int64
	TotalRejections int64
	LastFailure     time.Time
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	state := cb.State()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:           state,
		Failures:        cb.failures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
		LastFailure:     cb.lastFailure,
	}
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			cb.totalRejections++
			return false
		}
		cb.transitionTo(CircuitHalfOpen)
		cb.halfOpenRequests = 1
		return true
	case CircuitHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxHalfOpenRequests {
			cb.totalRejections++
			return false
		}
		cb.halfOpenRequests++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.totalSuccesses++
		switch cb.state {
		case CircuitClosed:
			cb.failures = 0
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transitionTo(CircuitClosed)
				cb.failures = 0
				cb.successes = 0
			}
		}
		return
	}

	cb.totalFailures++
	cb.lastFailure = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
		cb.successes = 0
	}
}

// transitionTo changes state. Caller holds mu.
func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.halfOpenRequests = 0
	if next == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(prev, next)
	}
}

// breakerSink guards a remote sink with a circuit breaker.
type breakerSink struct {
	next    sink.Sink
	breaker *CircuitBreaker
}

func (b *breakerSink) Persist(ctx context.Context, target string, img image.Image) error {
	err := b.breaker.Execute(func() error {
		return b.next.Persist(ctx, target, img)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("upload to %s suspended: %w", target, err)
	}
	return err
}
