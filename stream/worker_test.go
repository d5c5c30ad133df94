package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/component"
	"github.com/c360/vmeflow/datafilter"
	"github.com/c360/vmeflow/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSystem() *engine.System {
	sys, _ := engine.NewSystem(arena.New(arena.DefaultSize), discardLogger(), nil)
	return sys
}

func newTestWorker(events <-chan ReadoutEvent) *Worker {
	return NewWorker(WorkerDeps{
		System:           newTestSystem(),
		Events:           events,
		TimetickInterval: 10 * time.Millisecond,
		Logger:           discardLogger(),
	})
}

func TestWorkerLifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func() component.LifecycleComponent {
		return newTestWorker(make(chan ReadoutEvent))
	})
}

func TestRunStateString(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{RunStateIdle, "idle"},
		{RunStateRunning, "running"},
		{RunStatePaused, "paused"},
		{RunStateSingleStepping, "stepping"},
		{RunState(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestWorkerProcessesEvents(t *testing.T) {
	events := make(chan ReadoutEvent, 8)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	for i := 0; i < 5; i++ {
		events <- ReadoutEvent{EventIndex: 0, Modules: [][]uint32{{1, 2, 3}}}
	}

	require.Eventually(t, func() bool {
		return w.Counters().Events == 5
	}, 2*time.Second, 5*time.Millisecond, "worker should process all queued events")

	c := w.Counters()
	assert.Equal(t, uint64(5), c.Buffers)
	assert.Equal(t, uint64(5*3*4), c.Bytes, "3 words of 4 bytes per event")
	assert.Equal(t, uint64(5), c.EventCounts[0])
	assert.Equal(t, uint64(0), c.Dropped)
	assert.False(t, c.StartTime.IsZero())
}

func TestWorkerFeedsAnalysisGraph(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	sys, err := engine.NewSystem(a, discardLogger(), nil)
	require.NoError(t, err)

	filter, err := datafilter.NewMultiWordFilter(
		datafilter.MustMakeFilter("0001 XXXX AAAA DDDD DDDD DDDD", datafilter.MatchAnyWordIndex))
	require.NoError(t, err)

	ds, err := engine.MakeExtractor(a, filter, 1, 1234, 0, engine.NoAddedRandom)
	require.NoError(t, err)
	require.NoError(t, sys.AddDataSource(0, ds))

	events := make(chan ReadoutEvent, 1)
	w := NewWorker(WorkerDeps{
		System: sys,
		Events: events,
		Logger: discardLogger(),
	})

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	// Word matching "0001 XXXX AAAA DDDD DDDD DDDD" with address 3, value 100
	events <- ReadoutEvent{EventIndex: 0, Modules: [][]uint32{{0x0010_0000 | 3<<12 | 100}}}

	require.Eventually(t, func() bool {
		return w.Counters().Events == 1
	}, 2*time.Second, 5*time.Millisecond)

	var got float64
	require.NoError(t, w.Snapshot(func() { got = ds.Output.Data[3] }))
	assert.Equal(t, 100.0, got, "extracted value should land in the output vector")
}

func TestWorkerPauseResume(t *testing.T) {
	events := make(chan ReadoutEvent, 4)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	require.Eventually(t, func() bool {
		return w.RunState() == RunStateRunning
	}, time.Second, 5*time.Millisecond)

	w.Pause()
	require.Eventually(t, func() bool {
		return w.RunState() == RunStatePaused
	}, time.Second, 5*time.Millisecond)

	events <- ReadoutEvent{EventIndex: 0, Modules: [][]uint32{{1}}}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), w.Counters().Events, "paused worker must not consume events")

	w.Resume()
	require.Eventually(t, func() bool {
		return w.Counters().Events == 1 && w.RunState() == RunStateRunning
	}, time.Second, 5*time.Millisecond, "resumed worker should drain the queued event")
}

func TestWorkerSingleStep(t *testing.T) {
	events := make(chan ReadoutEvent, 4)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	w.Pause()
	require.Eventually(t, func() bool {
		return w.RunState() == RunStatePaused
	}, time.Second, 5*time.Millisecond)

	events <- ReadoutEvent{EventIndex: 0, Modules: [][]uint32{{1}}}
	events <- ReadoutEvent{EventIndex: 1, Modules: [][]uint32{{2}}}

	require.NoError(t, w.SingleStep())
	require.Eventually(t, func() bool {
		return w.Counters().Events == 1 && w.RunState() == RunStatePaused
	}, time.Second, 5*time.Millisecond, "single step should process exactly one event")

	require.NoError(t, w.SingleStep())
	require.Eventually(t, func() bool {
		return w.Counters().Events == 2 && w.RunState() == RunStatePaused
	}, time.Second, 5*time.Millisecond)

	c := w.Counters()
	assert.Equal(t, uint64(1), c.EventCounts[0])
	assert.Equal(t, uint64(1), c.EventCounts[1])
}

func TestWorkerSingleStepRequiresPause(t *testing.T) {
	events := make(chan ReadoutEvent)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	err := w.SingleStep()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")
}

func TestWorkerSnapshot(t *testing.T) {
	t.Run("between events while running", func(t *testing.T) {
		events := make(chan ReadoutEvent)
		w := newTestWorker(events)

		require.NoError(t, w.Initialize())
		require.NoError(t, w.Start(context.Background()))
		defer func() { _ = w.Stop(time.Second) }()

		ran := false
		require.NoError(t, w.Snapshot(func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("while paused", func(t *testing.T) {
		events := make(chan ReadoutEvent)
		w := newTestWorker(events)

		require.NoError(t, w.Initialize())
		require.NoError(t, w.Start(context.Background()))
		defer func() { _ = w.Stop(time.Second) }()

		w.Pause()
		require.Eventually(t, func() bool {
			return w.RunState() == RunStatePaused
		}, time.Second, 5*time.Millisecond)

		ran := false
		require.NoError(t, w.Snapshot(func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("inline when not started", func(t *testing.T) {
		w := newTestWorker(make(chan ReadoutEvent))

		ran := false
		require.NoError(t, w.Snapshot(func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("nil function rejected", func(t *testing.T) {
		w := newTestWorker(make(chan ReadoutEvent))
		assert.Error(t, w.Snapshot(nil))
	})
}

func TestWorkerRunID(t *testing.T) {
	w := newTestWorker(make(chan ReadoutEvent))
	assert.Empty(t, w.RunID(), "no run ID before the first run")

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		return w.RunID() != ""
	}, time.Second, 5*time.Millisecond)

	first := w.RunID()
	_, err := uuid.Parse(first)
	require.NoError(t, err, "run ID should be a valid UUID")

	require.NoError(t, w.Stop(time.Second))
	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	require.Eventually(t, func() bool {
		return w.RunID() != "" && w.RunID() != first
	}, time.Second, 5*time.Millisecond, "each run gets a fresh ID")
}

func TestWorkerDropsInvalidEvents(t *testing.T) {
	events := make(chan ReadoutEvent, 4)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	events <- ReadoutEvent{EventIndex: -1}
	events <- ReadoutEvent{EventIndex: engine.MaxVMEEvents}
	events <- ReadoutEvent{EventIndex: 0, Modules: make([][]uint32, engine.MaxVMEModules+1)}

	require.Eventually(t, func() bool {
		return w.Counters().Dropped == 3
	}, 2*time.Second, 5*time.Millisecond)

	c := w.Counters()
	assert.Equal(t, uint64(0), c.Events)
	assert.Equal(t, uint64(3), c.Buffers, "dropped events still count as received buffers")
}

func TestWorkerTimeticks(t *testing.T) {
	w := newTestWorker(make(chan ReadoutEvent))

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	require.Eventually(t, func() bool {
		return w.Counters().Timeticks >= 3
	}, 2*time.Second, 5*time.Millisecond)

	// Timeticks keep flowing while paused
	w.Pause()
	require.Eventually(t, func() bool {
		return w.RunState() == RunStatePaused
	}, time.Second, 5*time.Millisecond)

	baseline := w.Counters().Timeticks
	require.Eventually(t, func() bool {
		return w.Counters().Timeticks > baseline
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerStopEndsRun(t *testing.T) {
	sys := newTestSystem()
	w := NewWorker(WorkerDeps{
		System: sys,
		Events: make(chan ReadoutEvent),
		Logger: discardLogger(),
	})

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sys.Running()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop(time.Second))

	assert.Equal(t, RunStateIdle, w.RunState())
	assert.False(t, sys.Running(), "stopping the worker should end the analysis run")
	assert.False(t, w.Counters().StopTime.IsZero())
}

func TestWorkerChannelCloseEndsRun(t *testing.T) {
	events := make(chan ReadoutEvent)
	w := newTestWorker(events)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		return w.RunState() == RunStateRunning
	}, time.Second, 5*time.Millisecond)

	close(events)

	require.Eventually(t, func() bool {
		return w.RunState() == RunStateIdle
	}, time.Second, 5*time.Millisecond, "closing the feed channel ends the run")

	assert.False(t, w.Health().Healthy, "worker with a dead loop is unhealthy")
	require.NoError(t, w.Stop(time.Second))
}

func TestWorkerMetaAndDataFlow(t *testing.T) {
	events := make(chan ReadoutEvent, 2)
	w := newTestWorker(events)

	meta := w.Meta()
	assert.Equal(t, "stream-worker", meta.Name)
	assert.Equal(t, "processor", meta.Type)

	require.NoError(t, w.Initialize())
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(time.Second) }()

	events <- ReadoutEvent{EventIndex: 0, Modules: [][]uint32{{1, 2}}}
	require.Eventually(t, func() bool {
		return w.Counters().Events == 1
	}, time.Second, 5*time.Millisecond)

	flow := w.DataFlow()
	assert.Greater(t, flow.EventsPerSecond, 0.0)
	assert.Greater(t, flow.BytesPerSecond, 0.0)
	assert.False(t, flow.LastActivity.IsZero())
}
