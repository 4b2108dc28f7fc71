package cutsim

import (
	"expvar"
	"sync/atomic"
	"time"
)

// latency accumulates durations for an average.
type latency struct {
	totalNs atomic.Int64
	count   atomic.Int64
}

func (l *latency) record(d time.Duration) {
	l.totalNs.Add(d.Nanoseconds())
	l.count.Add(1)
}

func (l *latency) avg() time.Duration {
	return safeDivide(l.totalNs.Load(), l.count.Load())
}

func (l *latency) reset() {
	l.totalNs.Store(0)
	l.count.Store(0)
}

// Metrics collects simulator counters, gauges and latency averages and can
// publish them through expvar at /debug/vars.
//
// Thread-safe for concurrent use.
type Metrics struct {
	// Device commands
	starts      atomic.Int64
	stops       atomic.Int64
	moves       atomic.Int64
	cuts        atomic.Int64
	curves      atomic.Int64
	toolChanges atomic.Int64
	resets      atomic.Int64
	rejected    atomic.Int64
	snapshots   atomic.Int64

	// Persistence
	persistSuccesses atomic.Int64
	persistFailures  atomic.Int64
	persistSkipped   atomic.Int64

	// Jobs
	jobRuns   atomic.Int64
	jobErrors atomic.Int64

	errorsTotal   atomic.Int64
	eventsEmitted atomic.Int64

	persistLatency  latency
	jobLatency      latency
	snapshotLatency latency

	running         atomic.Int32
	canvasAllocated atomic.Int32

	registered atomic.Bool
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RegisterExpvar publishes the metrics under cutsim_* names.
// Safe to call multiple times on the same instance; subsequent calls are
// no-ops. expvar names are process-global, so only one instance may register.
func (m *Metrics) RegisterExpvar() {
	if m.registered.Swap(true) {
		return
	}

	counters := map[string]*atomic.Int64{
		"cutsim_starts_total":            &m.starts,
		"cutsim_stops_total":             &m.stops,
		"cutsim_moves_total":             &m.moves,
		"cutsim_cuts_total":              &m.cuts,
		"cutsim_curves_total":            &m.curves,
		"cutsim_tool_changes_total":      &m.toolChanges,
		"cutsim_resets_total":            &m.resets,
		"cutsim_rejected_commands_total": &m.rejected,
		"cutsim_snapshots_total":         &m.snapshots,
		"cutsim_persist_success_total":   &m.persistSuccesses,
		"cutsim_persist_failure_total":   &m.persistFailures,
		"cutsim_persist_skipped_total":   &m.persistSkipped,
		"cutsim_job_runs_total":          &m.jobRuns,
		"cutsim_job_errors_total":        &m.jobErrors,
		"cutsim_errors_total":            &m.errorsTotal,
		"cutsim_events_emitted_total":    &m.eventsEmitted,
	}
	for name, c := range counters {
		expvar.Publish(name, expvar.Func(func() any { return c.Load() }))
	}

	expvar.Publish("cutsim_running", expvar.Func(func() any { return m.running.Load() }))
	expvar.Publish("cutsim_canvas_allocated", expvar.Func(func() any { return m.canvasAllocated.Load() }))

	latencies := map[string]*latency{
		"cutsim_persist_latency_avg_ms":  &m.persistLatency,
		"cutsim_job_latency_avg_ms":      &m.jobLatency,
		"cutsim_snapshot_latency_avg_ms": &m.snapshotLatency,
	}
	for name, l := range latencies {
		expvar.Publish(name, expvar.Func(func() any {
			return float64(l.avg()) / float64(time.Millisecond)
		}))
	}
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Starts           int64
	Stops            int64
	Moves            int64
	Cuts             int64
	Curves           int64
	ToolChanges      int64
	Resets           int64
	RejectedCommands int64
	Snapshots        int64
	PersistSuccesses int64
	PersistFailures  int64
	PersistSkipped   int64
	JobRuns          int64
	JobErrors        int64
	ErrorsTotal      int64
	EventsEmitted    int64

	Running         bool
	CanvasAllocated bool

	PersistLatencyAvg  time.Duration
	JobLatencyAvg      time.Duration
	SnapshotLatencyAvg time.Duration
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Starts:           m.starts.Load(),
		Stops:            m.stops.Load(),
		Moves:            m.moves.Load(),
		Cuts:             m.cuts.Load(),
		Curves:           m.curves.Load(),
		ToolChanges:      m.toolChanges.Load(),
		Resets:           m.resets.Load(),
		RejectedCommands: m.rejected.Load(),
		Snapshots:        m.snapshots.Load(),
		PersistSuccesses: m.persistSuccesses.Load(),
		PersistFailures:  m.persistFailures.Load(),
		PersistSkipped:   m.persistSkipped.Load(),
		JobRuns:          m.jobRuns.Load(),
		JobErrors:        m.jobErrors.Load(),
		ErrorsTotal:      m.errorsTotal.Load(),
		EventsEmitted:    m.eventsEmitted.Load(),

		Running:         m.running.Load() > 0,
		CanvasAllocated: m.canvasAllocated.Load() > 0,

		PersistLatencyAvg:  m.persistLatency.avg(),
		JobLatencyAvg:      m.jobLatency.avg(),
		SnapshotLatencyAvg: m.snapshotLatency.avg(),
	}
}

// IncrementStarts records a Start call that entered the running state.
func (m *Metrics) IncrementStarts() { m.starts.Add(1) }

// IncrementStops records a Stop call.
func (m *Metrics) IncrementStops() { m.stops.Add(1) }

// IncrementMoves records a completed MoveTo.
func (m *Metrics) IncrementMoves() { m.moves.Add(1) }

// IncrementCuts records a completed CutTo.
func (m *Metrics) IncrementCuts() { m.cuts.Add(1) }

// IncrementCurves records a completed CurveTo.
func (m *Metrics) IncrementCurves() { m.curves.Add(1) }

// IncrementToolChanges records an accepted SetToolWidth.
func (m *Metrics) IncrementToolChanges() { m.toolChanges.Add(1) }

// IncrementResets records a canvas reset.
func (m *Metrics) IncrementResets() { m.resets.Add(1) }

// IncrementRejected records a command the device refused.
func (m *Metrics) IncrementRejected() { m.rejected.Add(1) }

// IncrementPersistSkipped records a Stop that did not save, for example
// because the target was too short.
func (m *Metrics) IncrementPersistSkipped() { m.persistSkipped.Add(1) }

// IncrementErrors records an error occurrence.
func (m *Metrics) IncrementErrors() { m.errorsTotal.Add(1) }

// IncrementEventsEmitted records an event emission.
func (m *Metrics) IncrementEventsEmitted() { m.eventsEmitted.Add(1) }

// RecordPersist records one persistence attempt and its duration.
func (m *Metrics) RecordPersist(d time.Duration, err error) {
	m.persistLatency.record(d)
	if err != nil {
		m.persistFailures.Add(1)
	} else {
		m.persistSuccesses.Add(1)
	}
}

// RecordJob records one job run and its duration.
func (m *Metrics) RecordJob(d time.Duration, err error) {
	m.jobRuns.Add(1)
	m.jobLatency.record(d)
	if err != nil {
		m.jobErrors.Add(1)
	}
}

// RecordSnapshot records one snapshot and its duration.
func (m *Metrics) RecordSnapshot(d time.Duration) {
	m.snapshots.Add(1)
	m.snapshotLatency.record(d)
}

// SetRunning updates the running gauge.
func (m *Metrics) SetRunning(running bool) { m.running.Store(boolGauge(running)) }

// SetCanvasAllocated updates the canvas gauge.
func (m *Metrics) SetCanvasAllocated(allocated bool) {
	m.canvasAllocated.Store(boolGauge(allocated))
}

// Reset clears all metrics. Useful for testing.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.starts, &m.stops, &m.moves, &m.cuts, &m.curves, &m.toolChanges,
		&m.resets, &m.rejected, &m.snapshots, &m.persistSuccesses,
		&m.persistFailures, &m.persistSkipped, &m.jobRuns, &m.jobErrors,
		&m.errorsTotal, &m.eventsEmitted,
	} {
		c.Store(0)
	}
	m.persistLatency.reset()
	m.jobLatency.reset()
	m.snapshotLatency.reset()
	m.running.Store(0)
	m.canvasAllocated.Store(0)
}

func boolGauge(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// safeDivide performs safe division, returning 0 for divide by zero.
func safeDivide(total, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(total / count)
}

var defaultMetrics = NewMetrics()

// DefaultMetrics returns the process-wide Metrics instance.
func DefaultMetrics() *Metrics {
	return defaultMetrics
}
