package cutsim

import "time"

// Status is a point-in-time view of a simulator.
type Status struct {
	Running bool
	Closed  bool
	// RunID identifies the current run; empty before the first Start.
	RunID     RunID
	StartTime time.Time
	// Position is the tool position in logical units.
	Position        Point
	ToolWidth       int
	CanvasAllocated bool
	Revision        uint64
	Target          string
	JobsRun         uint64
	LastJob         string
	LastError       error
	ConfigSource    string
}

// ErrorHandler is a callback for runtime errors.
// It is called asynchronously; do not block in the handler.
type ErrorHandler func(err error)

// EventHandler is a callback for lifecycle events.
// It is called asynchronously; do not block in the handler.
type EventHandler func(event Event)

// Event is a lifecycle notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
	RunID     RunID
}

// EventType enumerates lifecycle event types.
type EventType int

const (
	// EventStarted is emitted when Start allocates a new canvas.
	EventStarted EventType = iota
	// EventStopped is emitted when the simulator leaves the running state.
	EventStopped
	// EventPersisted is emitted when the canvas was saved on Stop.
	EventPersisted
	// EventReset is emitted when the canvas is cleared.
	EventReset
	// EventJobStarted is emitted before a job script runs.
	EventJobStarted
	// EventJobFinished is emitted after a job script returns.
	EventJobFinished
	// EventJobChanged is emitted when a watched job file changes.
	EventJobChanged
	// EventError is emitted when a recoverable error occurs.
	EventError
	// EventClosed is emitted when the simulator is closed.
	EventClosed
)

// String returns a human-readable representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventPersisted:
		return "persisted"
	case EventReset:
		return "reset"
	case EventJobStarted:
		return "job_started"
	case EventJobFinished:
		return "job_finished"
	case EventJobChanged:
		return "job_changed"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}
