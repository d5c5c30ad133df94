package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/param"
)

func noThresholds() param.Interval {
	return param.Interval{Min: math.NaN(), Max: math.NaN()}
}

// The reference input for most aggregate tests: [1 2 3 invalid 5] in [0,10].
func aggregateInput(t *testing.T, a *arena.Arena) param.Pipe {
	t.Helper()
	return testPipe(t, a, []float64{1, 2, 3, param.Invalid(), 5}, 0, 10)
}

func TestAggregateSum(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateSum(a, input, noThresholds())
	require.NoError(t, err, "Failed to build sum")

	stepOperator(op)

	out := op.Outputs[0]
	if out.Data[0] != 11.0 {
		t.Errorf("Expected sum 11, got %v", out.Data[0])
	}
	if out.LowerLimits[0] != 0.0 || out.UpperLimits[0] != 50.0 {
		t.Errorf("Expected sum limits [0,50], got [%v,%v]", out.LowerLimits[0], out.UpperLimits[0])
	}
}

func TestAggregateSumAllInvalid(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{param.Invalid(), param.Invalid()}, 0, 10)

	op, err := MakeAggregateSum(a, input, noThresholds())
	require.NoError(t, err, "Failed to build sum")

	stepOperator(op)

	if param.IsValid(op.Outputs[0].Data[0]) {
		t.Error("Expected sum over no valid elements to be invalid")
	}
}

func TestAggregateSumThresholds(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	// Thresholds are inclusive on both ends, keeping 2 and 3.
	op, err := MakeAggregateSum(a, input, param.Interval{Min: 2, Max: 3})
	require.NoError(t, err, "Failed to build sum")

	stepOperator(op)

	if got := op.Outputs[0].Data[0]; got != 5.0 {
		t.Errorf("Expected thresholded sum 5, got %v", got)
	}
}

func TestAggregateMultiplicity(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateMultiplicity(a, input, noThresholds())
	require.NoError(t, err, "Failed to build multiplicity")

	stepOperator(op)

	out := op.Outputs[0]
	if out.Data[0] != 4.0 {
		t.Errorf("Expected multiplicity 4, got %v", out.Data[0])
	}
	if out.LowerLimits[0] != 0.0 || out.UpperLimits[0] != 5.0 {
		t.Errorf("Expected limits [0,5], got [%v,%v]", out.LowerLimits[0], out.UpperLimits[0])
	}

	// Multiplicity stays valid even with nothing passing.
	input.Data.Invalidate()
	stepOperator(op)
	if out.Data[0] != 0.0 {
		t.Errorf("Expected multiplicity 0 on an all invalid input, got %v", out.Data[0])
	}
}

func TestAggregateMinMax(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	minOp, err := MakeAggregateMin(a, input, noThresholds())
	require.NoError(t, err, "Failed to build min")
	maxOp, err := MakeAggregateMax(a, input, noThresholds())
	require.NoError(t, err, "Failed to build max")

	stepOperator(minOp)
	stepOperator(maxOp)

	if got := minOp.Outputs[0].Data[0]; got != 1.0 {
		t.Errorf("Expected min 1, got %v", got)
	}
	if got := maxOp.Outputs[0].Data[0]; got != 5.0 {
		t.Errorf("Expected max 5, got %v", got)
	}
	if lo, hi := minOp.Outputs[0].LowerLimits[0], minOp.Outputs[0].UpperLimits[0]; lo != 0.0 || hi != 10.0 {
		t.Errorf("Expected min limits [0,10], got [%v,%v]", lo, hi)
	}

	input.Data.Invalidate()
	stepOperator(minOp)
	stepOperator(maxOp)

	if param.IsValid(minOp.Outputs[0].Data[0]) || param.IsValid(maxOp.Outputs[0].Data[0]) {
		t.Error("Expected min and max over no valid elements to be invalid")
	}
}

func TestAggregateMean(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateMean(a, input, noThresholds())
	require.NoError(t, err, "Failed to build mean")

	stepOperator(op)

	if got := op.Outputs[0].Data[0]; got != 2.75 {
		t.Errorf("Expected mean 11/4, got %v", got)
	}

	input.Data.Invalidate()
	stepOperator(op)
	if param.IsValid(op.Outputs[0].Data[0]) {
		t.Error("Expected mean over no valid elements to be invalid")
	}
}

func TestAggregateSigma(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateSigma(a, input, noThresholds())
	require.NoError(t, err, "Failed to build sigma")

	stepOperator(op)

	// Variance of [1 2 3 5] around 2.75 is 8.75/4.
	want := math.Sqrt(2.1875)
	require.InDelta(t, want, op.Outputs[0].Data[0], 1e-12, "Sigma mismatch")

	out := op.Outputs[0]
	if out.LowerLimits[0] != 0.0 {
		t.Errorf("Expected sigma lower limit 0, got %v", out.LowerLimits[0])
	}
	require.InDelta(t, math.Sqrt(10.0), out.UpperLimits[0], 1e-12, "Sigma upper limit mismatch")
}

func TestAggregateMinXMaxX(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	minxOp, err := MakeAggregateMinX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build minx")
	maxxOp, err := MakeAggregateMaxX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build maxx")

	stepOperator(minxOp)
	stepOperator(maxxOp)

	if got := minxOp.Outputs[0].Data[0]; got != 0.0 {
		t.Errorf("Expected smallest element at index 0, got %v", got)
	}
	if got := maxxOp.Outputs[0].Data[0]; got != 4.0 {
		t.Errorf("Expected largest element at index 4, got %v", got)
	}
	if lo, hi := minxOp.Outputs[0].LowerLimits[0], minxOp.Outputs[0].UpperLimits[0]; lo != 0.0 || hi != 5.0 {
		t.Errorf("Expected index limits [0,5], got [%v,%v]", lo, hi)
	}
}

func TestAggregateMinXSkipsLeadingInvalid(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{param.Invalid(), 2, 5}, 0, 10)

	op, err := MakeAggregateMinX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build minx")

	stepOperator(op)

	if got := op.Outputs[0].Data[0]; got != 1.0 {
		t.Errorf("Expected index 1, got %v", got)
	}

	input.Data.Invalidate()
	stepOperator(op)
	if param.IsValid(op.Outputs[0].Data[0]) {
		t.Error("Expected minx over no valid elements to be invalid")
	}
}

func TestAggregateMinXFirstOfEqual(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, []float64{3, 1, 1}, 0, 10)

	op, err := MakeAggregateMinX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build minx")

	stepOperator(op)

	if got := op.Outputs[0].Data[0]; got != 1.0 {
		t.Errorf("Expected the first of two equal minima, got index %v", got)
	}
}

func TestAggregateMeanX(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateMeanX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build meanx")

	stepOperator(op)

	// (1*0 + 2*1 + 3*2 + 5*4) / 11
	require.InDelta(t, 28.0/11.0, op.Outputs[0].Data[0], 1e-12, "MeanX mismatch")

	input.Data.Invalidate()
	stepOperator(op)
	if param.IsValid(op.Outputs[0].Data[0]) {
		t.Error("Expected meanx over no valid elements to be invalid")
	}
}

func TestAggregateSigmaX(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := aggregateInput(t, a)

	op, err := MakeAggregateSigmaX(a, input, noThresholds())
	require.NoError(t, err, "Failed to build sigmax")

	stepOperator(op)

	// Weighted variance around meanx 28/11 works out to 250/121.
	require.InDelta(t, math.Sqrt(250.0/121.0), op.Outputs[0].Data[0], 1e-12, "SigmaX mismatch")
}

func TestAggregateRejectsEmptyInput(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	input := testPipe(t, a, nil, 0, 10)

	_, err := MakeAggregateSum(a, input, noThresholds())
	if err == nil {
		t.Error("Expected an empty input to be rejected")
	}
}
