package cutsim

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/script"
)

// testOptions isolates metrics and silences logging.
func testOptions() *Options {
	opts := DefaultOptions()
	opts.Logger = NopLogger()
	opts.Metrics = NewMetrics()
	opts.ErrorTracker = NewErrorTracker(DefaultErrorTrackerConfig())
	opts.WatchDebounce = 50 * time.Millisecond
	return &opts
}

func newTestSimulator(t *testing.T, target string, opts *Options) Simulator {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	cfg := config.DefaultConfig()
	cfg.Output.Target = target
	sim, err := NewWithConfig(cfg, opts)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() {
		if sim.IsRunning() || sim.Status().CanvasAllocated {
			sim.Stop()
		}
		sim.Close()
	})
	return sim
}

// eventRecorder collects events delivered asynchronously.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// waitFor polls until an event of type et arrives.
func (r *eventRecorder) waitFor(t *testing.T, et EventType) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, e := range r.events {
			if e.Type == et {
				r.mu.Unlock()
				return e
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s not received", et)
	return Event{}
}

func TestSimulator_CutAndSave(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out", "square.png")
	opts := testOptions()
	sim := newTestSimulator(t, target, opts)

	if err := sim.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	steps := []func() error{
		func() error { return sim.MoveTo(Point{X: 1, Y: 1}) },
		func() error { return sim.CutTo(Point{X: 5, Y: 1}) },
		func() error { return sim.CutTo(Point{X: 5, Y: 5}) },
		func() error { return sim.CurveTo(Point{X: 5, Y: 5}, Point{X: 4, Y: 6}, Point{X: 2, Y: 4}, Point{X: 1, Y: 5}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if got := sim.LogicalPosition(); got != (Point{X: 1, Y: 5}) {
		t.Errorf("LogicalPosition = %v, want (1,5)", got)
	}
	snap, err := sim.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b := snap.Bounds(); b.Dx() != 600 || b.Dy() != 600 {
		t.Errorf("snapshot size = %v, want 600x600", b)
	}

	if err := sim.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sim.IsRunning() {
		t.Error("still running after Stop")
	}

	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 600 || b.Dy() != 600 {
		t.Errorf("output size = %v, want 600x600", b)
	}

	m := opts.Metrics.Snapshot()
	if m.Starts != 1 || m.Stops != 1 || m.Moves != 1 || m.Cuts != 2 || m.Curves != 1 {
		t.Errorf("command metrics = %+v", m)
	}
	if m.PersistSuccesses != 1 || m.Snapshots != 1 {
		t.Errorf("persist/snapshot metrics = %+v", m)
	}
}

func TestSimulator_StopSkipsInvalidTarget(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"empty", ""},
		{"too short", "a.pn"},
		{"unknown extension", "output.xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			opts := testOptions()
			opts.Persist = func(context.Context, string, image.Image) error {
				called = true
				return nil
			}
			sim := newTestSimulator(t, tt.target, opts)

			sim.Start()
			if err := sim.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			if called {
				t.Error("persisted to an invalid target")
			}
			if got := opts.Metrics.Snapshot().PersistSkipped; got != 1 {
				t.Errorf("PersistSkipped = %d, want 1", got)
			}
		})
	}
}

func TestSimulator_PersistFailureStillStops(t *testing.T) {
	boom := errors.New("disk full")
	opts := testOptions()
	opts.Persist = func(context.Context, string, image.Image) error { return boom }
	sim := newTestSimulator(t, "plot.png", opts)

	errCh := make(chan error, 4)
	sim.SetErrorHandler(func(err error) { errCh <- err })

	sim.Start()
	err := sim.Stop()
	if !errors.Is(err, device.ErrPersistenceFailed) || !errors.Is(err, boom) {
		t.Fatalf("Stop err = %v, want ErrPersistenceFailed wrapping the sink error", err)
	}

	st := sim.Status()
	if st.Running || st.CanvasAllocated {
		t.Errorf("status after failed save = %+v, want stopped without canvas", st)
	}
	if !errors.Is(st.LastError, boom) {
		t.Errorf("LastError = %v", st.LastError)
	}
	if got := opts.Metrics.Snapshot().PersistFailures; got != 1 {
		t.Errorf("PersistFailures = %d, want 1", got)
	}
	if got := opts.ErrorTracker.Stats().ErrorsByCategory[ErrorCategoryIO]; got != 1 {
		t.Errorf("tracked io errors = %d, want 1", got)
	}

	select {
	case got := <-errCh:
		if !errors.Is(got, boom) {
			t.Errorf("handler got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("error handler not called")
	}
}

func TestSimulator_RemoteFailureIsNetworkError(t *testing.T) {
	opts := testOptions()
	opts.Persist = func(context.Context, string, image.Image) error { return errors.New("exit status 1") }
	sim := newTestSimulator(t, "ssh://plotter@host/tmp/out.png", opts)

	sim.Start()
	if err := sim.Stop(); err == nil {
		t.Fatal("expected error")
	}

	recent := opts.ErrorTracker.RecentErrors(1)
	if len(recent) != 1 {
		t.Fatalf("tracked %d errors, want 1", len(recent))
	}
	if recent[0].Category != ErrorCategoryNetwork {
		t.Errorf("category = %v, want network", recent[0].Category)
	}
	if recent[0].Context["target"] != "ssh://plotter@host/tmp/out.png" {
		t.Errorf("context = %v", recent[0].Context)
	}
	if recent[0].Context["run_id"] == "" {
		t.Error("run_id missing from tracked error")
	}
}

func TestSimulator_CommandsRequireRunning(t *testing.T) {
	opts := testOptions()
	sim := newTestSimulator(t, "", opts)

	tests := []struct {
		name string
		call func() error
	}{
		{"MoveTo", func() error { return sim.MoveTo(Point{X: 1, Y: 1}) }},
		{"CutTo", func() error { return sim.CutTo(Point{X: 1, Y: 1}) }},
		{"CurveTo", func() error { return sim.CurveTo(Point{}, Point{}, Point{}, Point{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, device.ErrNotRunning) {
				t.Errorf("err = %v, want ErrNotRunning", err)
			}
		})
	}
	if got := opts.Metrics.Snapshot().RejectedCommands; got != 3 {
		t.Errorf("RejectedCommands = %d, want 3", got)
	}
	if _, err := sim.Snapshot(); !errors.Is(err, device.ErrNoCanvas) {
		t.Errorf("Snapshot err = %v, want ErrNoCanvas", err)
	}
	if err := sim.Reset(); !errors.Is(err, device.ErrNoCanvas) {
		t.Errorf("Reset err = %v, want ErrNoCanvas", err)
	}
}

func TestSimulator_SetToolWidth(t *testing.T) {
	sim := newTestSimulator(t, "", nil)

	for _, w := range []float64{0, -0.5} {
		if err := sim.SetToolWidth(w); !errors.Is(err, device.ErrInvalidToolWidth) {
			t.Errorf("SetToolWidth(%g) err = %v, want ErrInvalidToolWidth", w, err)
		}
	}
	// Tool width can be set while stopped.
	if err := sim.SetToolWidth(0.05); err != nil {
		t.Fatalf("SetToolWidth: %v", err)
	}
	if got := sim.Status().ToolWidth; got != 5 {
		t.Errorf("ToolWidth = %d px, want 5", got)
	}
}

func TestSimulator_InitialToolWidthFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Device.ToolWidth = 0.03
	sim, err := NewWithConfig(cfg, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	if got := sim.Status().ToolWidth; got != 3 {
		t.Errorf("ToolWidth = %d, want 3", got)
	}
}

func TestSimulator_ResetAndRevision(t *testing.T) {
	opts := testOptions()
	sim := newTestSimulator(t, "", opts)

	r0 := sim.Revision()
	sim.Start()
	r1 := sim.Revision()
	if r1 <= r0 {
		t.Errorf("revision did not advance on Start: %d -> %d", r0, r1)
	}
	// A second Start keeps the canvas.
	sim.Start()
	if sim.Revision() != r1 {
		t.Error("revision changed on redundant Start")
	}

	sim.MoveTo(Point{X: 2, Y: 2})
	sim.CutTo(Point{X: 3, Y: 3})
	r2 := sim.Revision()
	if err := sim.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sim.Revision() <= r2 {
		t.Error("revision did not advance on Reset")
	}
	if got := sim.LogicalPosition(); got != (Point{}) {
		t.Errorf("position after Reset = %v, want origin", got)
	}
	if !sim.IsRunning() {
		t.Error("Reset left the running state")
	}
	if got := opts.Metrics.Snapshot().Resets; got != 1 {
		t.Errorf("Resets = %d, want 1", got)
	}
}

func TestSimulator_Target(t *testing.T) {
	target := filepath.Join(t.TempDir(), "late.bmp")
	sim := newTestSimulator(t, "", nil)

	if sim.Target() != "" {
		t.Errorf("Target = %q, want empty", sim.Target())
	}
	sim.SetTarget(target)
	sim.Start()
	if err := sim.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("target not written: %v", err)
	}
}

func TestSimulator_SetTargetWaitsForStop(t *testing.T) {
	entered := make(chan string, 1)
	release := make(chan struct{})
	opts := testOptions()
	opts.Persist = func(_ context.Context, target string, _ image.Image) error {
		entered <- target
		<-release
		return nil
	}
	sim := newTestSimulator(t, "first.png", opts)
	rec := &eventRecorder{}
	sim.SetEventHandler(rec.handle)

	sim.Start()
	stopped := make(chan error, 1)
	go func() { stopped <- sim.Stop() }()
	if got := <-entered; got != "first.png" {
		t.Fatalf("persisted to %q, want first.png", got)
	}

	changed := make(chan struct{})
	go func() {
		sim.SetTarget("second.png")
		close(changed)
	}()
	select {
	case <-changed:
		t.Fatal("SetTarget returned while Stop was persisting")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-changed

	if persisted := rec.waitFor(t, EventPersisted); persisted.Message != "first.png" {
		t.Errorf("EventPersisted message = %q, want first.png", persisted.Message)
	}
	if got := sim.Target(); got != "second.png" {
		t.Errorf("Target = %q, want second.png", got)
	}
}

func TestSimulator_TargetOption(t *testing.T) {
	opts := testOptions()
	opts.Target = "override.png"
	sim := newTestSimulator(t, "config.png", opts)

	if got := sim.Target(); got != "override.png" {
		t.Errorf("Target = %q, want override", got)
	}
}

func TestSimulator_Events(t *testing.T) {
	opts := testOptions()
	opts.Persist = func(context.Context, string, image.Image) error { return nil }
	sim := newTestSimulator(t, "events.png", opts)

	rec := &eventRecorder{}
	sim.SetEventHandler(rec.handle)

	sim.Start()
	started := rec.waitFor(t, EventStarted)
	if started.RunID == "" {
		t.Error("EventStarted has no run ID")
	}
	if sim.Status().RunID != started.RunID {
		t.Errorf("status run ID %q != event run ID %q", sim.Status().RunID, started.RunID)
	}

	sim.Reset()
	rec.waitFor(t, EventReset)

	sim.Stop()
	persisted := rec.waitFor(t, EventPersisted)
	if persisted.Message != "events.png" {
		t.Errorf("EventPersisted message = %q", persisted.Message)
	}
	rec.waitFor(t, EventStopped)

	sim.Close()
	rec.waitFor(t, EventClosed)
}

func TestSimulator_PanickingHandlersAreRecovered(t *testing.T) {
	sim := newTestSimulator(t, "", nil)

	errCh := make(chan error, 4)
	sim.SetEventHandler(func(Event) { panic("event handler bug") })
	sim.SetErrorHandler(func(err error) { errCh <- err })

	sim.Start()
	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "panic in event handler") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}
}

func TestSimulator_CloseLeaksCanvas(t *testing.T) {
	var persisted bool
	opts := testOptions()
	opts.Persist = func(context.Context, string, image.Image) error {
		persisted = true
		return nil
	}
	cfg := config.DefaultConfig()
	cfg.Output.Target = "leak.png"
	sim, err := NewWithConfig(cfg, opts)
	if err != nil {
		t.Fatal(err)
	}

	sim.Start()
	sim.CutTo(Point{X: 1, Y: 1})
	if err := sim.Close(); !errors.Is(err, device.ErrCanvasLeaked) {
		t.Errorf("Close err = %v, want ErrCanvasLeaked", err)
	}
	if persisted {
		t.Error("Close persisted the canvas")
	}
	if err := sim.Close(); err != nil {
		t.Errorf("second Close err = %v", err)
	}

	calls := []struct {
		name string
		call func() error
	}{
		{"Start", sim.Start},
		{"Stop", sim.Stop},
		{"Reset", sim.Reset},
		{"MoveTo", func() error { return sim.MoveTo(Point{}) }},
		{"RunJobString", func() error { return sim.RunJobString("j", "") }},
		{"WatchJob", func() error { return sim.WatchJob("job.lua") }},
		{"Snapshot", func() error { _, err := sim.Snapshot(); return err }},
	}
	for _, c := range calls {
		if err := c.call(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close: err = %v, want ErrClosed", c.name, err)
		}
	}

	st := sim.Status()
	if !st.Closed || st.Running || st.CanvasAllocated {
		t.Errorf("status = %+v", st)
	}
	if h := sim.Health(); !h.IsUnhealthy() {
		t.Errorf("health = %s, want unhealthy", h.Status)
	}
}

func TestSimulator_CloseAfterStop(t *testing.T) {
	cfg := config.DefaultConfig()
	sim, err := NewWithConfig(cfg, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	sim.Start()
	sim.Stop()
	if err := sim.Close(); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}

func TestSimulator_RunJobString(t *testing.T) {
	target := filepath.Join(t.TempDir(), "job.png")
	opts := testOptions()
	sim := newTestSimulator(t, target, opts)

	job := `
plotter.start()
plotter.set_tool_width(0.02)
plotter.move_to(1, 1)
plotter.cut_to(2, 2)
local w, h = plotter.dimensions()
print("size " .. math.floor(w) .. "x" .. math.floor(h))
plotter.stop()
`
	if err := sim.RunJobString("square", job); err != nil {
		t.Fatalf("RunJobString: %v", err)
	}
	if !strings.Contains(sim.JobOutput(), "size 6x6") {
		t.Errorf("JobOutput = %q", sim.JobOutput())
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("job did not save the canvas: %v", err)
	}

	st := sim.Status()
	if st.JobsRun != 1 || st.LastJob != "square" {
		t.Errorf("status = %+v", st)
	}
	m := opts.Metrics.Snapshot()
	if m.JobRuns != 1 || m.Cuts != 1 || m.ToolChanges != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestSimulator_RunJobErrors(t *testing.T) {
	opts := testOptions()
	sim := newTestSimulator(t, "", opts)

	err := sim.RunJobString("bad", `error("tool jammed")`)
	if !errors.Is(err, script.ErrScript) {
		t.Fatalf("err = %v, want ErrScript", err)
	}
	if got := opts.Metrics.Snapshot().JobErrors; got != 1 {
		t.Errorf("JobErrors = %d, want 1", got)
	}
	if got := opts.ErrorTracker.Stats().ErrorsByCategory[ErrorCategoryScript]; got != 1 {
		t.Errorf("script errors = %d, want 1", got)
	}

	h := sim.Health()
	if h.Components[ComponentJobs].Status != HealthDegraded {
		t.Errorf("jobs health = %+v", h.Components[ComponentJobs])
	}
	if !h.IsDegraded() {
		t.Errorf("health = %s, want degraded", h.Status)
	}
}

func TestSimulator_RunJobFromFileAndFS(t *testing.T) {
	job := "plotter.start()\nplotter.move_to(2, 3)\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "job.lua")
	if err := os.WriteFile(path, []byte(job), 0o644); err != nil {
		t.Fatal(err)
	}

	sim := newTestSimulator(t, "", nil)
	if err := sim.RunJob(path); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if got := sim.LogicalPosition(); got != (Point{X: 2, Y: 3}) {
		t.Errorf("position = %v", got)
	}

	fsys := fstest.MapFS{"jobs/move.lua": {Data: []byte("plotter.move_to(4, 1)")}}
	if err := sim.RunJobFS(fsys, "jobs/move.lua"); err != nil {
		t.Fatalf("RunJobFS: %v", err)
	}
	if got := sim.LogicalPosition(); got != (Point{X: 4, Y: 1}) {
		t.Errorf("position = %v", got)
	}

	if err := sim.RunJob(filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("expected error for a missing job")
	}
}

func TestSimulator_JobResourceLimit(t *testing.T) {
	opts := testOptions()
	opts.LuaCPULimit = 10_000
	sim := newTestSimulator(t, "", opts)

	err := sim.RunJobString("spin", "while true do end")
	if !errors.Is(err, script.ErrResourceLimit) {
		t.Errorf("err = %v, want ErrResourceLimit", err)
	}
}

func TestSimulator_WatchJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.lua")
	if err := os.WriteFile(path, []byte("plotter.start()"), 0o644); err != nil {
		t.Fatal(err)
	}

	sim := newTestSimulator(t, "", nil)
	rec := &eventRecorder{}
	sim.SetEventHandler(rec.handle)

	if err := sim.WatchJob(path); err != nil {
		t.Fatalf("WatchJob: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("plotter.start()\nplotter.move_to(1, 2)"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec.waitFor(t, EventJobChanged)
	rec.waitFor(t, EventJobFinished)
	if got := sim.LogicalPosition(); got != (Point{X: 1, Y: 2}) {
		t.Errorf("position after re-run = %v", got)
	}
}

func TestSimulator_Health(t *testing.T) {
	sim := newTestSimulator(t, "", nil)

	h := sim.Health()
	if !h.IsHealthy() {
		t.Errorf("fresh simulator health = %s: %+v", h.Status, h.Components)
	}
	for _, name := range []string{ComponentDevice, ComponentCanvas, ComponentOutput, ComponentJobs, ComponentErrors} {
		if _, ok := h.Components[name]; !ok {
			t.Errorf("component %s missing", name)
		}
	}
	if h.Components[ComponentDevice].Message != "idle" {
		t.Errorf("device = %+v", h.Components[ComponentDevice])
	}

	sim.Start()
	time.Sleep(time.Millisecond)
	h = sim.Health()
	if h.Components[ComponentDevice].Message != "running" || h.Uptime <= 0 {
		t.Errorf("running health = %+v", h)
	}
}

func TestSimulator_HealthRemoteBreaker(t *testing.T) {
	opts := testOptions()
	opts.CircuitBreaker = CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour}
	sim := newTestSimulator(t, "ssh://host/tmp/a.png", opts)

	impl := sim.(*simulator)
	impl.breaker.Execute(func() error { return errUpload })

	out := sim.Health().Components[ComponentOutput]
	if out.Status != HealthDegraded {
		t.Errorf("output health = %+v, want degraded", out)
	}
}

func TestConstructors(t *testing.T) {
	content := `cutsim.config = { width = 2, height = 3, resolution = 50, output = "from-config.png" }`

	t.Run("New", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cutsim.lua")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		sim, err := New(path, testOptions())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer sim.Close()
		if got := sim.Dimensions(); got != (Point{X: 2, Y: 3}) {
			t.Errorf("Dimensions = %v", got)
		}
		if sim.Status().ConfigSource != path {
			t.Errorf("ConfigSource = %q", sim.Status().ConfigSource)
		}
	})

	t.Run("NewDefaults", func(t *testing.T) {
		sim, err := New("", nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer sim.Close()
		if got := sim.Dimensions(); got != (Point{X: 6, Y: 6}) {
			t.Errorf("Dimensions = %v", got)
		}
	})

	t.Run("NewFromFS", func(t *testing.T) {
		fsys := fstest.MapFS{"conf/cutsim.lua": {Data: []byte(content)}}
		sim, err := NewFromFS(fsys, "conf/cutsim.lua", testOptions())
		if err != nil {
			t.Fatalf("NewFromFS: %v", err)
		}
		defer sim.Close()
		if sim.Target() != "from-config.png" {
			t.Errorf("Target = %q", sim.Target())
		}
	})

	t.Run("NewFromReader", func(t *testing.T) {
		sim, err := NewFromReader(strings.NewReader(content), testOptions())
		if err != nil {
			t.Fatalf("NewFromReader: %v", err)
		}
		defer sim.Close()
		sim.Start()
		snap, err := sim.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if b := snap.Bounds(); b.Dx() != 100 || b.Dy() != 150 {
			t.Errorf("snapshot = %v, want 100x150", b)
		}
		sim.Stop()
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := New(filepath.Join(t.TempDir(), "none.lua"), nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Device.Width = -1
		_, err := NewWithConfig(cfg, nil)
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		et   EventType
		want string
	}{
		{EventStarted, "started"},
		{EventStopped, "stopped"},
		{EventPersisted, "persisted"},
		{EventReset, "reset"},
		{EventJobStarted, "job_started"},
		{EventJobFinished, "job_finished"},
		{EventJobChanged, "job_changed"},
		{EventError, "error"},
		{EventClosed, "closed"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.et, got, tt.want)
		}
	}
}
