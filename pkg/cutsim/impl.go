package cutsim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/script"
	"github.com/opd-ai/go-cutsim/internal/sink"
)

const sshPrefix = "ssh://"

// simulator implements Simulator on top of a device.Device.
type simulator struct {
	cfg          config.Config
	opts         Options
	configSource string

	device  *device.Device
	runner  *script.Runner
	policy  sink.TargetPolicy
	breaker *CircuitBreaker
	metrics *Metrics
	tracker *ErrorTracker
	logger  Logger

	// lifeMu serializes Start, Stop, Reset and Close so that events are
	// emitted in the order the transitions happened.
	lifeMu sync.Mutex

	mu           sync.RWMutex
	closed       bool
	runID        RunID
	startTime    time.Time
	jobsRun      uint64
	lastJob      string
	lastJobErr   error
	lastError    error
	errorHandler ErrorHandler
	eventHandler EventHandler
	watcher      *jobWatcher
}

var _ script.Plotter = (*simulator)(nil)

func newSimulator(cfg *config.Config, opts *Options, source string) (Simulator, error) {
	s, err := buildSimulator(cfg, opts, source)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildSimulator(cfg *config.Config, opts *Options, source string) (*simulator, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	o := *opts
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Logger == nil {
		o.Logger = NopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = DefaultMetrics()
	}
	if o.ErrorTracker == nil {
		o.ErrorTracker = NewErrorTracker(DefaultErrorTrackerConfig())
	}

	c := *cfg
	if o.Target != "" {
		c.Output.Target = o.Target
	}
	if err := config.ValidateConfig(&c); err != nil {
		return nil, err
	}

	s := &simulator{
		cfg:          c,
		opts:         o,
		configSource: source,
		policy:       c.TargetPolicy(),
		metrics:      o.Metrics,
		tracker:      o.ErrorTracker,
		logger:       o.Logger,
	}

	breakerCfg := o.CircuitBreaker
	onChange := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to CircuitState) {
		s.log().Warn("remote upload circuit changed", "from", from.String(), "to", to.String())
		if onChange != nil {
			onChange(from, to)
		}
	}
	s.breaker = NewCircuitBreaker(breakerCfg)

	devOpts := c.DeviceOptions()
	devOpts.Sink = s.buildSink()
	s.device = device.New(devOpts)
	if c.Device.ToolWidth > 0 {
		if err := s.device.SetToolWidth(c.Device.ToolWidth); err != nil {
			return nil, err
		}
	}

	rc := script.DefaultConfig()
	if o.LuaCPULimit > 0 {
		rc.CPULimit = o.LuaCPULimit
	}
	if o.LuaMemoryLimit > 0 {
		rc.MemoryLimit = o.LuaMemoryLimit
	}
	rc.Stdout = o.ScriptOutput
	runner, err := script.NewRunner(s, rc)
	if err != nil {
		return nil, err
	}
	s.runner = runner

	s.metrics.SetRunning(false)
	s.metrics.SetCanvasAllocated(false)
	s.logger.Debug("simulator created",
		"config", source,
		"width", c.Device.Width, "height", c.Device.Height,
		"target", c.Output.Target)
	return s, nil
}

// buildSink routes local paths to a FileSink and ssh:// targets to an
// SSHSink behind the circuit breaker, and records every attempt.
func (s *simulator) buildSink() sink.Sink {
	var out sink.Sink
	if s.opts.Persist != nil {
		out = sink.SinkFunc(s.opts.Persist)
	} else {
		remote := sink.NewSSHSink(sshConfig(&s.cfg))
		out = sink.NewRouter(s.cfg.EncodeOptions(), &breakerSink{next: remote, breaker: s.breaker})
	}
	return &instrumentedSink{next: out, sim: s}
}

func sshConfig(cfg *config.Config) sink.SSHConfig {
	var auth sink.AuthMethod = sink.AgentAuth{}
	if cfg.SSH.KeyPath != "" {
		auth = sink.KeyAuth{PrivateKeyPath: cfg.SSH.KeyPath, Passphrase: cfg.SSH.KeyPassphrase}
	}
	return sink.SSHConfig{
		User:                  cfg.SSH.User,
		Auth:                  auth,
		KnownHostsPath:        cfg.SSH.KnownHosts,
		InsecureIgnoreHostKey: cfg.SSH.Insecure,
		Timeout:               cfg.SSH.Timeout,
		Options:               cfg.EncodeOptions(),
	}
}

// instrumentedSink times persistence and logs the outcome.
type instrumentedSink struct {
	next sink.Sink
	sim  *simulator
}

func (i *instrumentedSink) Persist(ctx context.Context, target string, img image.Image) error {
	start := time.Now()
	err := i.next.Persist(ctx, target, img)
	elapsed := time.Since(start)
	i.sim.metrics.RecordPersist(elapsed, err)
	if err != nil {
		i.sim.log().Error("failed to save canvas", "target", target, "error", err)
	} else {
		i.sim.log().Info("canvas saved", "target", target, "duration", elapsed)
	}
	return err
}

func (s *simulator) log() Logger {
	s.mu.RLock()
	id := s.runID
	s.mu.RUnlock()
	return withRun(s.logger, id)
}

func (s *simulator) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Start implements Simulator.Start.
func (s *simulator) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	fresh := !s.device.State().CanvasAllocated
	if err := s.device.Start(); err != nil {
		return err
	}
	s.metrics.IncrementStarts()
	s.metrics.SetRunning(true)
	s.metrics.SetCanvasAllocated(true)

	if fresh {
		s.mu.Lock()
		s.runID = NewRunID()
		s.startTime = time.Now()
		s.mu.Unlock()
		s.log().Info("plotter started", "target", s.device.Target())
		s.emitEvent(EventStarted, "canvas allocated")
	}
	return nil
}

// Stop implements Simulator.Stop.
func (s *simulator) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	state := s.device.State()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()
	err := s.device.StopContext(ctx)

	s.metrics.IncrementStops()
	s.metrics.SetRunning(false)
	s.metrics.SetCanvasAllocated(false)

	if !state.Running && !state.CanvasAllocated {
		return err
	}

	if state.CanvasAllocated {
		if perr := s.policy.Check(state.Target); perr != nil {
			s.metrics.IncrementPersistSkipped()
			s.log().Info("canvas not saved", "reason", perr)
		} else if err == nil {
			s.emitEvent(EventPersisted, state.Target)
		}
	}
	if err != nil {
		s.recordError(err, state.Target)
	}
	s.emitEvent(EventStopped, "canvas released")
	return err
}

// MoveTo implements Simulator.MoveTo.
func (s *simulator) MoveTo(p Point) error {
	return s.command(s.metrics.IncrementMoves, func() error { return s.device.MoveTo(p) })
}

// CutTo implements Simulator.CutTo.
func (s *simulator) CutTo(p Point) error {
	return s.command(s.metrics.IncrementCuts, func() error { return s.device.CutTo(p) })
}

// CurveTo implements Simulator.CurveTo.
func (s *simulator) CurveTo(p0, p1, p2, p3 Point) error {
	return s.command(s.metrics.IncrementCurves, func() error { return s.device.CurveTo(p0, p1, p2, p3) })
}

// SetToolWidth implements Simulator.SetToolWidth.
func (s *simulator) SetToolWidth(w float64) error {
	return s.command(s.metrics.IncrementToolChanges, func() error { return s.device.SetToolWidth(w) })
}

// command runs a device command and counts the outcome.
func (s *simulator) command(count func(), fn func() error) error {
	if s.isClosed() {
		s.metrics.IncrementRejected()
		return ErrClosed
	}
	if err := fn(); err != nil {
		s.metrics.IncrementRejected()
		return err
	}
	count()
	return nil
}

// Dimensions implements Simulator.Dimensions.
func (s *simulator) Dimensions() Point {
	return s.device.Dimensions()
}

// LogicalPosition implements Simulator.LogicalPosition.
func (s *simulator) LogicalPosition() Point {
	return s.device.LogicalPosition()
}

// IsRunning implements Simulator.IsRunning.
func (s *simulator) IsRunning() bool {
	return s.device.IsRunning()
}

// Snapshot implements Simulator.Snapshot.
func (s *simulator) Snapshot() (*image.Gray, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	img, err := s.device.Snapshot()
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSnapshot(time.Since(start))
	return img, nil
}

// Revision implements Simulator.Revision.
func (s *simulator) Revision() uint64 {
	return s.device.Revision()
}

// Reset implements Simulator.Reset.
func (s *simulator) Reset() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if err := s.device.Reset(); err != nil {
		return err
	}
	s.metrics.IncrementResets()
	s.emitEvent(EventReset, "canvas cleared")
	return nil
}

// SetTarget implements Simulator.SetTarget.
// Taking lifeMu keeps the target fixed while Stop persists and reports it.
func (s *simulator) SetTarget(target string) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.device.SetTarget(target)
}

// Target implements Simulator.Target.
func (s *simulator) Target() string {
	return s.device.Target()
}

// RunJob implements Simulator.RunJob.
func (s *simulator) RunJob(path string) error {
	return s.runJob(path, func() error { return s.runner.RunFile(path) })
}

// RunJobFS implements Simulator.RunJobFS.
func (s *simulator) RunJobFS(fsys fs.FS, path string) error {
	return s.runJob(path, func() error { return s.runner.RunFS(fsys, path) })
}

// RunJobString implements Simulator.RunJobString.
func (s *simulator) RunJobString(name, code string) error {
	return s.runJob(name, func() error { return s.runner.RunString(name, code) })
}

func (s *simulator) runJob(name string, run func() error) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.emitEvent(EventJobStarted, name)
	s.log().Debug("job started", "job", name)
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	s.metrics.RecordJob(elapsed, err)

	s.mu.Lock()
	s.jobsRun++
	s.lastJob = name
	s.lastJobErr = err
	s.mu.Unlock()

	if err != nil {
		s.recordError(err, "")
		s.emitEvent(EventJobFinished, fmt.Sprintf("%s: %v", name, err))
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.log().Info("job finished", "job", name, "duration", elapsed)
	s.emitEvent(EventJobFinished, name)
	return nil
}

// JobOutput implements Simulator.JobOutput.
func (s *simulator) JobOutput() string {
	return s.runner.Output()
}

// WatchJob implements Simulator.WatchJob.
func (s *simulator) WatchJob(path string) error {
	if s.isClosed() {
		return ErrClosed
	}

	w, err := newJobWatcher(path, s.opts.WatchDebounce,
		func() error {
			s.emitEvent(EventJobChanged, path)
			return s.RunJob(path)
		},
		func(err error) {
			// RunJob already records its own failures.
			if !errors.Is(err, script.ErrScript) && !errors.Is(err, script.ErrResourceLimit) {
				s.recordError(err, "")
			}
		})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.Stop()
		return ErrClosed
	}
	old := s.watcher
	s.watcher = w
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	w.Start()
	s.log().Info("watching job", "path", path)
	return nil
}

// Status implements Simulator.Status.
func (s *simulator) Status() Status {
	state := s.device.State()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:         state.Running,
		Closed:          s.closed,
		RunID:           s.runID,
		StartTime:       s.startTime,
		Position:        s.device.Resolution().Untransform(state.Position),
		ToolWidth:       state.ToolWidth,
		CanvasAllocated: state.CanvasAllocated,
		Revision:        state.Revision,
		Target:          state.Target,
		JobsRun:         s.jobsRun,
		LastJob:         s.lastJob,
		LastError:       s.lastError,
		ConfigSource:    s.configSource,
	}
}

// Metrics implements Simulator.Metrics.
func (s *simulator) Metrics() *Metrics {
	return s.metrics
}

// ErrorTracker implements Simulator.ErrorTracker.
func (s *simulator) ErrorTracker() *ErrorTracker {
	return s.tracker
}

// SetErrorHandler implements Simulator.SetErrorHandler.
func (s *simulator) SetErrorHandler(handler ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// SetEventHandler implements Simulator.SetEventHandler.
func (s *simulator) SetEventHandler(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandler = handler
}

// Close implements Simulator.Close.
func (s *simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	// A watched job may be running and calling back into Start or Stop, so
	// the watcher is stopped before taking lifeMu.
	if w != nil {
		w.Stop()
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	err := s.device.Close()
	s.metrics.SetRunning(false)
	s.metrics.SetCanvasAllocated(false)
	if err != nil {
		s.log().Warn("closed with unsaved canvas")
		s.recordError(err, "")
	}
	s.emitEvent(EventClosed, "simulator closed")
	return err
}

// recordError tracks err, stores it for Status and notifies the error
// handler. Failures to reach an ssh:// target count as network errors.
func (s *simulator) recordError(err error, target string) {
	tracked := categorize(err).clone()
	ce := &tracked
	if strings.HasPrefix(target, sshPrefix) && ce.Category == ErrorCategoryIO {
		ce = NewCategorizedError(err, ErrorCategoryNetwork, ce.Severity)
	}
	if target != "" {
		ce = ce.WithContext("target", target)
	}

	s.mu.Lock()
	s.lastError = err
	if s.runID != "" {
		ce = ce.WithContext("run_id", string(s.runID))
	}
	handler := s.errorHandler
	s.mu.Unlock()

	s.tracker.Record(ce)
	s.metrics.IncrementErrors()

	if handler != nil {
		logger := s.log()
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("error handler panicked", "panic", r, "original_error", err)
				}
			}()
			handler(err)
		}()
	}

	s.emitEvent(EventError, err.Error())
}

// emitEvent sends an event to the event handler if configured.
func (s *simulator) emitEvent(eventType EventType, message string) {
	s.metrics.IncrementEventsEmitted()

	s.mu.RLock()
	handler := s.eventHandler
	errHandler := s.errorHandler
	id := s.runID
	s.mu.RUnlock()

	if handler == nil {
		return
	}
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
		RunID:     id,
	}
	go func() {
		defer func() {
			if r := recover(); r != nil && errHandler != nil {
				errHandler(fmt.Errorf("panic in event handler: %v", r))
			}
		}()
		handler(event)
	}()
}

// Health implements Simulator.Health.
func (s *simulator) Health() HealthCheck {
	now := time.Now()
	state := s.device.State()

	s.mu.RLock()
	closed := s.closed
	startTime := s.startTime
	jobsRun := s.jobsRun
	lastJob := s.lastJob
	lastJobErr := s.lastJobErr
	s.mu.RUnlock()

	components := map[string]ComponentHealth{
		ComponentDevice: deviceHealth(closed, state.Running, now),
		ComponentCanvas: canvasHealth(state, now),
		ComponentOutput: s.outputHealth(state.Target, now),
		ComponentJobs:   jobsHealth(jobsRun, lastJob, lastJobErr, now),
		ComponentErrors: s.errorsHealth(now),
	}

	check := HealthCheck{
		Status:     worst(components),
		Timestamp:  now,
		Components: components,
	}
	if state.Running && !startTime.IsZero() {
		check.Uptime = now.Sub(startTime)
	}
	switch check.Status {
	case HealthOK:
		check.Message = "all components healthy"
	case HealthDegraded:
		check.Message = "some components degraded"
	default:
		check.Message = "simulator unavailable"
	}
	return check
}

func deviceHealth(closed, running bool, now time.Time) ComponentHealth {
	switch {
	case closed:
		return ComponentHealth{Status: HealthUnhealthy, Message: "closed", LastUpdated: now}
	case running:
		return ComponentHealth{Status: HealthOK, Message: "running", LastUpdated: now}
	default:
		return ComponentHealth{Status: HealthOK, Message: "idle", LastUpdated: now}
	}
}

func canvasHealth(state device.State, now time.Time) ComponentHealth {
	if !state.CanvasAllocated {
		return ComponentHealth{Status: HealthOK, Message: "not allocated", LastUpdated: now}
	}
	return ComponentHealth{
		Status:      HealthOK,
		Message:     fmt.Sprintf("allocated, revision %d", state.Revision),
		LastUpdated: now,
	}
}

func (s *simulator) outputHealth(target string, now time.Time) ComponentHealth {
	if err := s.policy.Check(target); err != nil {
		return ComponentHealth{Status: HealthOK, Message: "saving disabled: " + err.Error(), LastUpdated: now}
	}
	if strings.HasPrefix(target, sshPrefix) {
		if st := s.breaker.State(); st != CircuitClosed {
			return ComponentHealth{
				Status:      HealthDegraded,
				Message:     "remote uploads " + st.String(),
				LastUpdated: now,
			}
		}
	}
	return ComponentHealth{Status: HealthOK, Message: target, LastUpdated: now}
}

func jobsHealth(jobsRun uint64, lastJob string, lastErr error, now time.Time) ComponentHealth {
	switch {
	case jobsRun == 0:
		return ComponentHealth{Status: HealthOK, Message: "no jobs run", LastUpdated: now}
	case lastErr != nil:
		return ComponentHealth{Status: HealthDegraded, Message: fmt.Sprintf("%s failed: %v", lastJob, lastErr), LastUpdated: now}
	default:
		return ComponentHealth{Status: HealthOK, Message: fmt.Sprintf("%d jobs run", jobsRun), LastUpdated: now}
	}
}

// errorsHealth is degraded while errors of severity Error or worse were
// recorded in the last minute.
func (s *simulator) errorsHealth(now time.Time) ComponentHealth {
	cutoff := now.Add(-time.Minute)
	recent := 0
	for _, e := range s.tracker.RecentErrors(maxAlertExamples) {
		if e.Timestamp.After(cutoff) && e.Severity >= SeverityError {
			recent++
		}
	}
	if recent > 0 {
		return ComponentHealth{
			Status:      HealthDegraded,
			Message:     fmt.Sprintf("%d recent errors", recent),
			LastUpdated: now,
		}
	}
	return ComponentHealth{Status: HealthOK, Message: "no recent errors", LastUpdated: now}
}
