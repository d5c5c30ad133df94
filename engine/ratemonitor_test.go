package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
	"github.com/c360/vmeflow/rate"
)

func newTestSampler(t *testing.T, cfg rate.SamplerConfig) *rate.Sampler {
	t.Helper()

	s, err := rate.NewSampler(cfg)
	require.NoError(t, err, "Failed to build sampler")
	return s
}

func TestRateMonitorPrecalculated(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{12.5, 80}, 0, 1000)

	s0 := newTestSampler(t, rate.SamplerConfig{})
	s1 := newTestSampler(t, rate.SamplerConfig{})

	op, err := MakeRateMonitor(a, []param.Pipe{input}, []int{NoParamIndex},
		[]*rate.Sampler{s0, s1}, OpRateMonitorPrecalculated)
	require.NoError(t, err, "Failed to build rate monitor")

	stepOperator(op)

	if got := s0.LastRate(); got != 12.5 {
		t.Errorf("Expected the input value 12.5 recorded as a rate, got %v", got)
	}
	if got := s1.LastRate(); got != 80.0 {
		t.Errorf("Expected the input value 80 recorded as a rate, got %v", got)
	}
}

func TestRateMonitorCounterDifference(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{100}, 0, 1e9)

	s0 := newTestSampler(t, rate.SamplerConfig{})
	op, err := MakeRateMonitor(a, []param.Pipe{input}, []int{0},
		[]*rate.Sampler{s0}, OpRateMonitorCounterDifference)
	require.NoError(t, err, "Failed to build rate monitor")

	stepOperator(op)
	input.Data[0] = 130
	stepOperator(op)

	if got := s0.LastRate(); got != 30.0 {
		t.Errorf("Expected the counter increment 30 as the rate, got %v", got)
	}

	// A counter reset clamps to zero instead of going negative.
	input.Data[0] = 5
	stepOperator(op)
	if got := s0.LastRate(); got != 0.0 {
		t.Errorf("Expected a reset counter to record rate 0, got %v", got)
	}
}

func TestRateMonitorMixedIndexes(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	whole := testPipe(t, a, []float64{1, 2}, 0, 10)
	single := testPipe(t, a, []float64{3, 4, 5}, 0, 10)

	samplers := []*rate.Sampler{
		newTestSampler(t, rate.SamplerConfig{}),
		newTestSampler(t, rate.SamplerConfig{}),
		newTestSampler(t, rate.SamplerConfig{}),
	}

	// Two elements from the first input, element 2 from the second.
	op, err := MakeRateMonitor(a, []param.Pipe{whole, single}, []int{NoParamIndex, 2},
		samplers, OpRateMonitorPrecalculated)
	require.NoError(t, err, "Failed to build rate monitor")

	stepOperator(op)

	want := []float64{1, 2, 5}
	for i, w := range want {
		if got := samplers[i].LastRate(); got != w {
			t.Errorf("Expected sampler %d to record %v, got %v", i, w, got)
		}
	}
}

func TestRateMonitorFlowRateCountsValidHits(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{7, param.Invalid()}, 0, 10)

	s0 := newTestSampler(t, rate.SamplerConfig{})
	s1 := newTestSampler(t, rate.SamplerConfig{})

	op, err := MakeRateMonitor(a, []param.Pipe{input}, []int{NoParamIndex},
		[]*rate.Sampler{s0, s1}, OpRateMonitorFlowRate)
	require.NoError(t, err, "Failed to build rate monitor")

	for i := 0; i < 3; i++ {
		stepOperator(op)
	}
	rateMonitorSampleFlow(op)

	if got := s0.LastRate(); got != 3.0 {
		t.Errorf("Expected 3 hits per tick for the valid element, got %v", got)
	}
	if got := s1.LastRate(); got != 0.0 {
		t.Errorf("Expected 0 hits for the invalid element, got %v", got)
	}

	// The hit counts keep running; the sampler derives the per-tick delta.
	stepOperator(op)
	rateMonitorSampleFlow(op)
	if got := s0.LastRate(); got != 1.0 {
		t.Errorf("Expected 1 hit in the second tick, got %v", got)
	}
}

func TestRateMonitorScaledInterval(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{1}, 0, 10)

	// A 2 second tick halves the derived rate.
	s0 := newTestSampler(t, rate.SamplerConfig{Interval: 2.0})
	op, err := MakeRateMonitor(a, []param.Pipe{input}, []int{0},
		[]*rate.Sampler{s0}, OpRateMonitorFlowRate)
	require.NoError(t, err, "Failed to build rate monitor")

	stepOperator(op)
	stepOperator(op)
	rateMonitorSampleFlow(op)

	if got := s0.LastRate(); got != 1.0 {
		t.Errorf("Expected 2 hits over a 2 second tick to give rate 1, got %v", got)
	}
}

func TestRateMonitorValidation(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{1, 2}, 0, 10)
	s0 := newTestSampler(t, rate.SamplerConfig{})

	_, err := MakeRateMonitor(a, []param.Pipe{input}, []int{NoParamIndex},
		[]*rate.Sampler{s0}, OpCalibration)
	require.ErrorIs(t, err, errors.ErrUnknownOperator)

	_, err = MakeRateMonitor(a, nil, nil, nil, OpRateMonitorPrecalculated)
	require.ErrorIs(t, err, errors.ErrSizeMismatch)

	_, err = MakeRateMonitor(a, []param.Pipe{input}, []int{2},
		[]*rate.Sampler{s0}, OpRateMonitorPrecalculated)
	require.ErrorIs(t, err, errors.ErrGraphMalformed)

	// A whole-array input needs one sampler per element.
	_, err = MakeRateMonitor(a, []param.Pipe{input}, []int{NoParamIndex},
		[]*rate.Sampler{s0}, OpRateMonitorPrecalculated)
	require.ErrorIs(t, err, errors.ErrSizeMismatch)
}
