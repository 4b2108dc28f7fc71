package cutsim

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type runIDKey struct{}

// RunID identifies one running period of the simulator, from the Start that
// allocated a canvas to the Stop that released it. Events, logs and
// recorded errors of that period carry it.
type RunID string

// String returns the string representation of the run ID.
func (r RunID) String() string {
	return string(r)
}

// NewRunID returns a random run ID.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// WithRunID returns a context carrying id. An empty id generates one.
func WithRunID(ctx context.Context, id RunID) context.Context {
	if id == "" {
		id = NewRunID()
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID in ctx, or "" if there is none.
func RunIDFromContext(ctx context.Context) RunID {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(RunID)
	return id
}

// runLogger prefixes every record with the current run ID.
type runLogger struct {
	logger Logger
	id     RunID
}

func withRun(logger Logger, id RunID) Logger {
	if id == "" {
		return logger
	}
	return runLogger{logger: logger, id: id}
}

func (l runLogger) args(args []any) []any {
	return append([]any{"run_id", string(l.id)}, args...)
}

func (l runLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.args(args)...) }
func (l runLogger) Info(msg string, args ...any)  { l.logger.Info(msg, l.args(args)...) }
func (l runLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, l.args(args)...) }
func (l runLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.args(args)...) }

// RunIDHandler is an slog.Handler that adds a run_id attribute to records
// logged with a context from WithRunID, e.g. via slog.InfoContext.
type RunIDHandler struct {
	inner slog.Handler
}

// NewRunIDHandler wraps inner.
func NewRunIDHandler(inner slog.Handler) *RunIDHandler {
	return &RunIDHandler{inner: inner}
}

// Enabled reports whether the handler handles records at the given level.
func (h *RunIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the run ID from ctx, if any, and forwards the record.
func (h *RunIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunIDFromContext(ctx); id != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("run_id", string(id)))
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes.
func (h *RunIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunIDHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *RunIDHandler) WithGroup(name string) slog.Handler {
	return &RunIDHandler{inner: h.inner.WithGroup(name)}
}
