package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/histo"
	"github.com/c360/vmeflow/param"
	"github.com/c360/vmeflow/rate"
)

func newTestSystem(t *testing.T) (*System, *arena.Arena) {
	t.Helper()

	a := arena.New(arena.DefaultSize)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSystem(a, logger, nil)
	require.NoError(t, err, "Failed to build system")
	return s, a
}

func TestNewSystemRequiresArena(t *testing.T) {
	_, err := NewSystem(nil, nil, nil)
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestAddDataSourceIndexValidation(t *testing.T) {
	s, a := newTestSystem(t)
	ds := newTestExtractor(t, a, 1, NoAddedRandom)

	require.ErrorIs(t, s.AddDataSource(-1, ds), errors.ErrEventIndex)
	require.ErrorIs(t, s.AddDataSource(MaxVMEEvents, ds), errors.ErrEventIndex)

	ds.ModuleIndex = MaxVMEModules
	require.ErrorIs(t, s.AddDataSource(0, ds), errors.ErrModuleIndex)

	ds.ModuleIndex = 0
	require.NoError(t, s.AddDataSource(0, ds))
	if got := s.DataSourceCount(0); got != 1 {
		t.Errorf("Expected one data source, got %d", got)
	}
}

func TestAddOperatorValidation(t *testing.T) {
	s, a := newTestSystem(t)
	input := testPipe(t, a, []float64{1}, 0, 10)

	op, err := MakeCalibration(a, input, 0.0, 10.0)
	require.NoError(t, err, "Failed to build calibration")

	require.ErrorIs(t, s.AddOperator(-1, 0, op), errors.ErrEventIndex)
	require.ErrorIs(t, s.AddOperator(MaxVMEEvents, 0, op), errors.ErrEventIndex)

	require.ErrorIs(t, s.AddOperator(0, 0, &Operator{Type: OpInvalid}), errors.ErrUnknownOperator)
	require.ErrorIs(t, s.AddOperator(0, 0, &Operator{Type: opTypeCount}), errors.ErrUnknownOperator)

	require.NoError(t, s.AddOperator(0, 0, op))
	if got := s.OperatorCount(0); got != 1 {
		t.Errorf("Expected one operator, got %d", got)
	}
}

func TestEmptySystemEventCycle(t *testing.T) {
	s, _ := newTestSystem(t)

	require.NoError(t, s.BeginEvent(0))
	require.NoError(t, s.ProcessModuleData(0, 0, []uint32{1, 2, 3}))
	require.NoError(t, s.EndEvent(0))
	s.Timetick()

	require.ErrorIs(t, s.BeginEvent(MaxVMEEvents), errors.ErrEventIndex)
	require.ErrorIs(t, s.ProcessModuleData(-1, 0, nil), errors.ErrEventIndex)
	require.ErrorIs(t, s.ProcessModuleData(0, MaxVMEModules, nil), errors.ErrModuleIndex)
	require.ErrorIs(t, s.EndEvent(-1), errors.ErrEventIndex)
}

func TestRunningFlag(t *testing.T) {
	s, _ := newTestSystem(t)

	if s.Running() {
		t.Error("Expected a fresh system to not be running")
	}
	s.BeginRun()
	if !s.Running() {
		t.Error("Expected the system to be running after begin_run")
	}
	s.EndRun()
	if s.Running() {
		t.Error("Expected the system to be stopped after end_run")
	}
}

// Source through calibration, aggregation and histogram sink, with the
// operators added in reverse rank order. Insertion must sort them so the
// event steps bottom-up.
func TestEventChainRankOrder(t *testing.T) {
	s, a := newTestSystem(t)

	ds := newTestExtractor(t, a, 1, NoAddedRandom)
	require.NoError(t, s.AddDataSource(0, ds))

	calib, err := MakeCalibration(a, ds.Output, 0.0, 40960.0)
	require.NoError(t, err, "Failed to build calibration")
	sum, err := MakeAggregateSum(a, calib.Outputs[0], noThresholds())
	require.NoError(t, err, "Failed to build sum")

	h, err := histo.NewH1D(a, 10, histo.Binning{Min: 0, Range: 5000})
	require.NoError(t, err, "Failed to build histogram")
	sink, err := MakeH1DSinkIdx(sum.Outputs[0], 0, h)
	require.NoError(t, err, "Failed to build sink")

	require.NoError(t, s.AddOperator(0, 2, sink))
	require.NoError(t, s.AddOperator(0, 1, sum))
	require.NoError(t, s.AddOperator(0, 0, calib))

	s.BeginRun()
	require.NoError(t, s.BeginEvent(0))
	require.NoError(t, s.ProcessModuleData(0, 0, []uint32{
		testWord(3, 100),
		testWord(5, 200),
	}))
	require.NoError(t, s.EndEvent(0))
	s.EndRun()

	// 100 and 200 calibrate by a factor 10 and sum to 3000.
	if got := sum.Outputs[0].Data[0]; got != 3000.0 {
		t.Errorf("Expected sum 3000, got %v", got)
	}
	if h.EntryCount != 1 {
		t.Errorf("Expected one histogram entry, got %v", h.EntryCount)
	}
	if h.Data[6] != 1 {
		t.Errorf("Expected the entry in bin 6, bins are %v", h.Data)
	}
}

func TestEqualRankKeepsInsertionOrder(t *testing.T) {
	s, a := newTestSystem(t)
	input := testPipe(t, a, []float64{100, 200}, 0, 4096)

	calib, err := MakeCalibration(a, input, 0.0, 40960.0)
	require.NoError(t, err, "Failed to build calibration")
	sum, err := MakeAggregateSum(a, calib.Outputs[0], noThresholds())
	require.NoError(t, err, "Failed to build sum")

	// Same rank: the consumer added second still steps second.
	require.NoError(t, s.AddOperator(0, 1, calib))
	require.NoError(t, s.AddOperator(0, 1, sum))

	require.NoError(t, s.EndEvent(0))

	if got := sum.Outputs[0].Data[0]; got != 3000.0 {
		t.Errorf("Expected sum 3000 after a single event, got %v", got)
	}
}

func TestBeginEventIdempotent(t *testing.T) {
	s, a := newTestSystem(t)

	ds := newTestExtractor(t, a, 1, NoAddedRandom)
	require.NoError(t, s.AddDataSource(0, ds))

	require.NoError(t, s.BeginEvent(0))
	require.NoError(t, s.ProcessModuleData(0, 0, []uint32{testWord(2, 50)}))

	require.NoError(t, s.BeginEvent(0))
	require.NoError(t, s.BeginEvent(0))

	if got := ds.Output.Data.ValidCount(); got != 0 {
		t.Errorf("Expected begin_event to invalidate all outputs, %d still valid", got)
	}
}

func TestTimetickSamplesFlowRates(t *testing.T) {
	s, a := newTestSystem(t)
	input := testPipe(t, a, []float64{1, param.Invalid()}, 0, 10)

	s0, err := rate.NewSampler(rate.SamplerConfig{})
	require.NoError(t, err, "Failed to build sampler")
	s1, err := rate.NewSampler(rate.SamplerConfig{})
	require.NoError(t, err, "Failed to build sampler")

	mon, err := MakeRateMonitor(a, []param.Pipe{input}, []int{NoParamIndex},
		[]*rate.Sampler{s0, s1}, OpRateMonitorFlowRate)
	require.NoError(t, err, "Failed to build rate monitor")
	require.NoError(t, s.AddOperator(0, 0, mon))

	require.NoError(t, s.EndEvent(0))
	require.NoError(t, s.EndEvent(0))
	s.Timetick()

	// Two events with element 0 valid, at the default 1s interval.
	if got := s0.LastRate(); got != 2.0 {
		t.Errorf("Expected a rate of 2 for the valid element, got %v", got)
	}
	if got := s1.LastRate(); got != 0.0 {
		t.Errorf("Expected a rate of 0 for the invalid element, got %v", got)
	}

	require.NoError(t, s.EndEvent(0))
	s.Timetick()

	if got := s0.LastRate(); got != 1.0 {
		t.Errorf("Expected a rate of 1 after one more event, got %v", got)
	}
}

func TestCountsOutOfRange(t *testing.T) {
	s, _ := newTestSystem(t)

	if got := s.DataSourceCount(-1); got != 0 {
		t.Errorf("Expected 0 data sources for a bad index, got %d", got)
	}
	if got := s.OperatorCount(MaxVMEEvents); got != 0 {
		t.Errorf("Expected 0 operators for a bad index, got %d", got)
	}
}
