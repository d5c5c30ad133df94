// Package stream drives the analysis engine from a channel of decoded
// readout events.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vmeflow/component"
	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/metric"
)

// ReadoutEvent is one decoded readout event: the raw data words of every
// module that participated, addressed by position in Modules. A nil or
// empty module slice means the module produced no data for this event.
type ReadoutEvent struct {
	EventIndex int
	Modules    [][]uint32
}

// RunState describes what the processing loop is currently doing.
type RunState int32

// Run states of the processing loop.
const (
	RunStateIdle RunState = iota
	RunStateRunning
	RunStatePaused
	RunStateSingleStepping
)

// String returns the string representation of a RunState.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	case RunStatePaused:
		return "paused"
	case RunStateSingleStepping:
		return "stepping"
	default:
		return "unknown"
	}
}

// Counters is a snapshot of the worker's processing counters for the
// current or most recent run.
type Counters struct {
	RunID       string
	StartTime   time.Time
	StopTime    time.Time
	Buffers     uint64
	Events      uint64
	Bytes       uint64
	Timeticks   uint64
	Dropped     uint64
	EventCounts [engine.MaxVMEEvents]uint64
}

// Metrics holds Prometheus metrics for the stream worker. Throughput
// metrics live on the engine, the worker only adds loop-level state.
type Metrics struct {
	runState      prometheus.Gauge
	eventsDropped prometheus.Counter
	singleSteps   prometheus.Counter
	snapshots     prometheus.Counter
}

// newMetrics creates and registers stream worker metrics
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		runState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmeflow",
			Subsystem: "stream",
			Name:      "run_state",
			Help:      "Current run state (0=idle 1=running 2=paused 3=stepping)",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "stream",
			Name:      "events_dropped_total",
			Help:      "Readout events rejected before reaching the analysis graph",
		}),
		singleSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "stream",
			Name:      "single_steps_total",
			Help:      "Events processed through single-step requests",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "stream",
			Name:      "snapshots_total",
			Help:      "Snapshot functions executed between events",
		}),
	}

	registry.RegisterGauge("stream_worker", "run_state", metrics.runState)
	registry.RegisterCounter("stream_worker", "events_dropped", metrics.eventsDropped)
	registry.RegisterCounter("stream_worker", "single_steps", metrics.singleSteps)
	registry.RegisterCounter("stream_worker", "snapshots", metrics.snapshots)

	return metrics
}

// WorkerDeps holds runtime dependencies for the stream worker
type WorkerDeps struct {
	Name             string
	System           *engine.System
	Events           <-chan ReadoutEvent
	TimetickInterval time.Duration
	MetricsRegistry  *metric.MetricsRegistry
	Logger           *slog.Logger
}

// Worker consumes readout events and steps them through the analysis
// system. One Start/Stop cycle brackets one run: BeginRun on start, a
// fresh run ID, EndRun when the loop exits.
//
// While started the loop owns the engine.System exclusively. External
// access to analysis results goes through Snapshot, which runs between
// events, never concurrently with stepping.
type Worker struct {
	name   string
	logger *slog.Logger

	system *engine.System
	events <-chan ReadoutEvent

	timetickInterval time.Duration

	// Lifecycle management
	mu        sync.Mutex
	lifecycle component.State
	shutdown  chan struct{}
	done      chan struct{}
	startTime time.Time

	// Desired-state protocol. Pause, Resume and SingleStep store the
	// state the loop should move to, the loop applies it between events.
	state   atomic.Int32
	desired atomic.Int32
	wakec   chan struct{}

	snapshotc chan func()

	runID    atomic.Value // stores string
	runStart atomic.Value // stores time.Time
	runStop  atomic.Value // stores time.Time

	// Counters (atomic for concurrent readers)
	buffersReceived atomic.Uint64
	eventsProcessed atomic.Uint64
	bytesProcessed  atomic.Uint64
	timeticks       atomic.Uint64
	dropped         atomic.Uint64
	eventCounts     [engine.MaxVMEEvents]atomic.Uint64
	errorCount      atomic.Int64
	lastActivity    atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Worker implements all required interfaces
var _ component.Discoverable = (*Worker)(nil)
var _ component.LifecycleComponent = (*Worker)(nil)

// NewWorker creates a stream worker. The worker reads from deps.Events
// once started; the channel is owned by the caller and shared with the
// producing feed.
func NewWorker(deps WorkerDeps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "stream-worker")
	}

	interval := deps.TimetickInterval
	if interval <= 0 {
		interval = time.Second
	}

	w := &Worker{
		name:             deps.Name,
		logger:           logger,
		system:           deps.System,
		events:           deps.Events,
		timetickInterval: interval,
		wakec:            make(chan struct{}, 1),
		snapshotc:        make(chan func()),
		startTime:        time.Now(),
		metrics:          newMetrics(deps.MetricsRegistry),
	}

	w.state.Store(int32(RunStateIdle))
	w.desired.Store(int32(RunStateIdle))
	w.runID.Store("")
	w.runStart.Store(time.Time{})
	w.runStop.Store(time.Time{})
	w.lastActivity.Store(time.Time{})

	return w
}

// Meta returns the component metadata
func (w *Worker) Meta() component.Metadata {
	name := w.name
	if name == "" {
		name = "stream-worker"
	}

	return component.Metadata{
		Name:        name,
		Type:        "processor",
		Description: "Steps readout events through the analysis graph",
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (w *Worker) Health() component.HealthStatus {
	w.mu.Lock()
	started := w.lifecycle == component.StateStarted
	done := w.done
	w.mu.Unlock()

	running := started
	if running && done != nil {
		select {
		case <-done:
			running = false
		default:
		}
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(w.errorCount.Load()),
		Uptime:     time.Since(w.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (w *Worker) DataFlow() component.FlowMetrics {
	events := w.eventsProcessed.Load()
	bytes := w.bytesProcessed.Load()
	errorCount := w.errorCount.Load()
	lastActivity, _ := w.lastActivity.Load().(time.Time)

	var eventsPerSecond float64
	var bytesPerSecond float64
	var errorRate float64

	start, _ := w.runStart.Load().(time.Time)
	if !start.IsZero() {
		elapsed := time.Since(start).Seconds()
		if stop, _ := w.runStop.Load().(time.Time); !stop.IsZero() {
			elapsed = stop.Sub(start).Seconds()
		}
		if elapsed > 0 {
			eventsPerSecond = float64(events) / elapsed
			bytesPerSecond = float64(bytes) / elapsed
		}
	}

	if events > 0 {
		errorRate = float64(errorCount) / float64(events)
	}

	return component.FlowMetrics{
		EventsPerSecond: eventsPerSecond,
		BytesPerSecond:  bytesPerSecond,
		ErrorRate:       errorRate,
		LastActivity:    lastActivity,
	}
}

// Initialize validates dependencies and prepares the worker for Start
func (w *Worker) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lifecycle == component.StateStarted {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"stream-worker", "Initialize", "state check")
	}

	if w.system == nil {
		return errors.WrapInvalid(fmt.Errorf("nil analysis system"),
			"stream-worker", "Initialize", "system validation")
	}
	if w.events == nil {
		return errors.WrapInvalid(fmt.Errorf("nil readout event channel"),
			"stream-worker", "Initialize", "event channel validation")
	}

	w.lifecycle = component.StateInitialized
	return nil
}

// Start begins a new run and launches the processing loop. The loop ends
// when Stop is called, the context is cancelled, or the event channel is
// closed by the feed.
func (w *Worker) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "stream-worker", "Start", "context check")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lifecycle == component.StateStarted {
		return nil // Already running, idempotent
	}
	if w.lifecycle != component.StateInitialized {
		return errors.WrapInvalid(
			fmt.Errorf("%w: worker not initialized (state %s)", errors.ErrNotStarted, w.lifecycle),
			"stream-worker", "Start", "state check")
	}

	w.resetCounters()

	w.shutdown = make(chan struct{})
	w.done = make(chan struct{})
	w.startTime = time.Now()
	w.desired.Store(int32(RunStateRunning))
	w.lifecycle = component.StateStarted

	go w.runLoop(ctx, w.shutdown, w.done)

	return nil
}

// Stop ends the run and waits for the processing loop to finish
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if w.lifecycle != component.StateStarted {
		w.mu.Unlock()
		return nil
	}

	w.desired.Store(int32(RunStateIdle))
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"stream-worker", "Stop", "loop shutdown")
	}

	w.mu.Lock()
	w.lifecycle = component.StateStopped
	w.mu.Unlock()
	return nil
}

// RunState returns the current processing loop state
func (w *Worker) RunState() RunState {
	return RunState(w.state.Load())
}

// RunID returns the identifier of the current or most recent run.
// Empty before the first run starts.
func (w *Worker) RunID() string {
	id, _ := w.runID.Load().(string)
	return id
}

// Counters returns a snapshot of the processing counters
func (w *Worker) Counters() Counters {
	c := Counters{
		RunID:     w.RunID(),
		Buffers:   w.buffersReceived.Load(),
		Events:    w.eventsProcessed.Load(),
		Bytes:     w.bytesProcessed.Load(),
		Timeticks: w.timeticks.Load(),
		Dropped:   w.dropped.Load(),
	}

	if t, ok := w.runStart.Load().(time.Time); ok {
		c.StartTime = t
	}
	if t, ok := w.runStop.Load().(time.Time); ok {
		c.StopTime = t
	}
	for i := range w.eventCounts {
		c.EventCounts[i] = w.eventCounts[i].Load()
	}

	return c
}

// Pause requests a transition to paused. The loop stops consuming events
// between two events; timeticks keep flowing while paused.
func (w *Worker) Pause() {
	w.desired.Store(int32(RunStatePaused))
	w.wake()
}

// Resume requests a transition back to running
func (w *Worker) Resume() {
	w.desired.Store(int32(RunStateRunning))
	w.wake()
}

// SingleStep processes exactly one event and returns to paused. Only
// valid while the worker is paused.
func (w *Worker) SingleStep() error {
	if !w.desired.CompareAndSwap(int32(RunStatePaused), int32(RunStateSingleStepping)) {
		return errors.WrapInvalid(fmt.Errorf("single step requires a paused worker"),
			"stream-worker", "SingleStep", "state check")
	}
	w.wake()
	return nil
}

// Snapshot runs fn between events on the processing goroutine and waits
// for it to complete. Readers of histograms, rate monitors and other
// engine state use this to avoid racing with operator stepping. When the
// worker is not running fn is executed directly.
func (w *Worker) Snapshot(fn func()) error {
	if fn == nil {
		return errors.WrapInvalid(fmt.Errorf("nil snapshot function"),
			"stream-worker", "Snapshot", "argument check")
	}

	w.mu.Lock()
	if w.lifecycle != component.StateStarted {
		w.mu.Unlock()
		fn()
		return nil
	}
	shutdown, done := w.shutdown, w.done
	w.mu.Unlock()

	reply := make(chan struct{})
	req := func() {
		defer close(reply)
		fn()
	}

	select {
	case w.snapshotc <- req:
		<-reply
		if w.metrics != nil {
			w.metrics.snapshots.Inc()
		}
		return nil
	case <-shutdown:
	case <-done:
	}

	// The loop is winding down. Once it has fully exited no stepping can
	// be in flight and fn may run on this goroutine.
	<-done
	fn()
	return nil
}

// wake nudges the loop to re-evaluate the desired state
func (w *Worker) wake() {
	select {
	case w.wakec <- struct{}{}:
	default:
	}
}

// setRunState publishes a loop state transition
func (w *Worker) setRunState(s RunState) {
	old := RunState(w.state.Swap(int32(s)))
	if old != s {
		w.logger.Debug("run state changed", "from", old.String(), "to", s.String())
	}
	if w.metrics != nil {
		w.metrics.runState.Set(float64(s))
	}
}

// resetCounters clears all per-run counters
func (w *Worker) resetCounters() {
	w.buffersReceived.Store(0)
	w.eventsProcessed.Store(0)
	w.bytesProcessed.Store(0)
	w.timeticks.Store(0)
	w.dropped.Store(0)
	for i := range w.eventCounts {
		w.eventCounts[i].Store(0)
	}
	w.errorCount.Store(0)
}

// runLoop is the processing loop. It owns the analysis system from
// BeginRun to EndRun and is the only goroutine stepping events.
func (w *Worker) runLoop(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)

	runID := uuid.NewString()
	w.runID.Store(runID)
	w.runStart.Store(time.Now())
	w.runStop.Store(time.Time{})

	w.logger.Info("run starting", "runID", runID)
	w.system.BeginRun()
	w.setRunState(RunStateRunning)

	defer func() {
		w.system.EndRun()
		w.runStop.Store(time.Now())
		w.setRunState(RunStateIdle)
		w.desired.Store(int32(RunStateIdle))
		w.logger.Info("run ended", "runID", runID,
			"events", w.eventsProcessed.Load(),
			"bytes", w.bytesProcessed.Load(),
			"dropped", w.dropped.Load())
	}()

	ticker := time.NewTicker(w.timetickInterval)
	defer ticker.Stop()

	for {
		desired := RunState(w.desired.Load())

		switch desired {
		case RunStateIdle:
			return
		case RunStatePaused:
			if w.RunState() != RunStatePaused {
				w.setRunState(RunStatePaused)
			}
		case RunStateRunning:
			if w.RunState() != RunStateRunning {
				w.setRunState(RunStateRunning)
			}
		}

		// Events are consumed while running or when one step was
		// requested. A nil channel never fires, pausing consumption
		// without pausing timeticks or snapshots.
		eventc := w.events
		if desired == RunStatePaused {
			eventc = nil
		}

		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-w.wakec:
			// re-evaluate desired state
		case fn := <-w.snapshotc:
			fn()
		case <-ticker.C:
			w.system.Timetick()
			w.timeticks.Add(1)
		case ev, ok := <-eventc:
			if !ok {
				w.logger.Info("readout event channel closed, ending run")
				return
			}
			if desired == RunStateSingleStepping {
				// The step satisfies the request, the next desired state
				// is paused unless a resume raced in.
				w.desired.CompareAndSwap(int32(RunStateSingleStepping), int32(RunStatePaused))
				w.setRunState(RunStateSingleStepping)
				w.processEvent(ev)
				w.setRunState(RunStatePaused)
				if w.metrics != nil {
					w.metrics.singleSteps.Inc()
				}
			} else {
				w.processEvent(ev)
			}
		}
	}
}

// processEvent steps one readout event through the analysis system
func (w *Worker) processEvent(ev ReadoutEvent) {
	w.buffersReceived.Add(1)

	if ev.EventIndex < 0 || ev.EventIndex >= engine.MaxVMEEvents {
		w.drop("event index out of range", ev.EventIndex)
		return
	}
	if len(ev.Modules) > engine.MaxVMEModules {
		w.drop("too many modules", ev.EventIndex)
		return
	}

	if err := w.system.BeginEvent(ev.EventIndex); err != nil {
		w.drop("begin event failed", ev.EventIndex)
		return
	}

	var bytes uint64
	for mi, words := range ev.Modules {
		if len(words) == 0 {
			continue
		}
		if err := w.system.ProcessModuleData(ev.EventIndex, mi, words); err != nil {
			w.errorCount.Add(1)
			w.logger.Warn("module data rejected",
				"eventIndex", ev.EventIndex, "moduleIndex", mi, "error", err)
			continue
		}
		bytes += uint64(len(words)) * 4
	}

	if err := w.system.EndEvent(ev.EventIndex); err != nil {
		w.errorCount.Add(1)
		w.logger.Warn("end event failed", "eventIndex", ev.EventIndex, "error", err)
		return
	}

	w.eventsProcessed.Add(1)
	w.eventCounts[ev.EventIndex].Add(1)
	w.bytesProcessed.Add(bytes)
	w.lastActivity.Store(time.Now())
}

// drop rejects one readout event before it reaches the analysis graph
func (w *Worker) drop(reason string, eventIndex int) {
	w.dropped.Add(1)
	w.errorCount.Add(1)
	if w.metrics != nil {
		w.metrics.eventsDropped.Inc()
	}
	w.logger.Warn("dropping readout event", "reason", reason, "eventIndex", eventIndex)
}
