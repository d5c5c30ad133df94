package engine

import (
	"fmt"
	"math"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// aggregateData holds the resolved threshold window. Elements outside the
// window are ignored by every aggregate step.
type aggregateData struct {
	thresholds param.Interval
}

// cmin and cmax mirror the comparison-based min/max used when computing
// output limits: the first argument wins when the comparison fails.
func cmin(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}

func cmax(a, b float64) float64 {
	if a < b {
		return b
	}
	return a
}

func minElement(v param.Vec) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxElement(v param.Vec) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if m < x {
			m = x
		}
	}
	return m
}

// makeAggregate builds the shared single-output shell. NaN threshold bounds
// resolve to the input's own limit extremes so the window test needs no NaN
// check at runtime.
func makeAggregate(a *arena.Arena, typ OperatorType, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	if input.Size() == 0 {
		return nil, fmt.Errorf("%s input must not be empty: %w", typ, errors.ErrGraphMalformed)
	}

	op := makeOperator(typ, 1, 1)
	assignInput(op, input, 0)

	op.d = &aggregateData{
		thresholds: thresholds.Resolve(input.LowerLimits, input.UpperLimits),
	}

	if err := pushOutput(a, op, 0, 1, 0.0, 0.0); err != nil {
		return nil, err
	}
	return op, nil
}

// MakeAggregateSum outputs the sum of the valid input elements inside the
// threshold window, invalid when no element qualifies.
func MakeAggregateSum(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateSum, input, thresholds)
	if err != nil {
		return nil, err
	}

	lo, hi := 0.0, 0.0
	for i := range input.LowerLimits {
		lo += cmin(input.LowerLimits[i], input.UpperLimits[i])
		hi += cmax(input.LowerLimits[i], input.UpperLimits[i])
	}
	op.Outputs[0].LowerLimits[0] = lo
	op.Outputs[0].UpperLimits[0] = hi
	return op, nil
}

func aggregateSumStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	theSum := 0.0
	validSeen := false

	for _, p := range in {
		if d.thresholds.ContainsValid(p) {
			theSum += p
			validSeen = true
		}
	}

	if validSeen {
		op.Outputs[0].Data[0] = theSum
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

// MakeAggregateMultiplicity outputs the number of valid input elements
// inside the threshold window. The output is always valid.
func MakeAggregateMultiplicity(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMultiplicity, input, thresholds)
	if err != nil {
		return nil, err
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = float64(input.Size())
	return op, nil
}

func aggregateMultiplicityStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data
	out := op.Outputs[0].Data

	out[0] = 0.0
	for _, p := range in {
		if d.thresholds.ContainsValid(p) {
			out[0]++
		}
	}
}

func minMaxOutputLimits(input param.Pipe) (lo, hi float64) {
	lo = cmin(minElement(input.LowerLimits), minElement(input.UpperLimits))
	hi = cmax(maxElement(input.LowerLimits), maxElement(input.UpperLimits))
	return lo, hi
}

// MakeAggregateMin outputs the smallest qualifying input element, invalid
// when no element qualifies.
func MakeAggregateMin(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMin, input, thresholds)
	if err != nil {
		return nil, err
	}
	lo, hi := minMaxOutputLimits(input)
	op.Outputs[0].LowerLimits[0] = lo
	op.Outputs[0].UpperLimits[0] = hi
	return op, nil
}

func aggregateMinStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	result := param.Invalid()

	for _, p := range in {
		if d.thresholds.ContainsValid(p) {
			if !param.IsValid(result) {
				result = math.MaxFloat64
			}
			if p < result {
				result = p
			}
		}
	}

	op.Outputs[0].Data[0] = result
}

// MakeAggregateMax outputs the largest qualifying input element, invalid
// when no element qualifies.
func MakeAggregateMax(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMax, input, thresholds)
	if err != nil {
		return nil, err
	}
	lo, hi := minMaxOutputLimits(input)
	op.Outputs[0].LowerLimits[0] = lo
	op.Outputs[0].UpperLimits[0] = hi
	return op, nil
}

func aggregateMaxStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	result := param.Invalid()

	for _, p := range in {
		if d.thresholds.ContainsValid(p) {
			if !param.IsValid(result) {
				result = -math.MaxFloat64
			}
			if p > result {
				result = p
			}
		}
	}

	op.Outputs[0].Data[0] = result
}

type sumAndValidCount struct {
	sum        float64
	validCount int
}

func (s sumAndValidCount) mean() float64 {
	return s.sum / float64(s.validCount)
}

func calcSumAndValidCount(in param.Vec, thresholds param.Interval) sumAndValidCount {
	var r sumAndValidCount
	for _, p := range in {
		if thresholds.ContainsValid(p) {
			r.sum += p
			r.validCount++
		}
	}
	return r
}

// MakeAggregateMean outputs the mean of the qualifying input elements,
// invalid when no element qualifies.
func MakeAggregateMean(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMean, input, thresholds)
	if err != nil {
		return nil, err
	}

	lo, hi := 0.0, 0.0
	for i := range input.LowerLimits {
		lo += cmin(input.LowerLimits[i], input.UpperLimits[i])
		hi += cmax(input.LowerLimits[i], input.UpperLimits[i])
	}
	size := float64(input.Size())
	op.Outputs[0].LowerLimits[0] = lo / size
	op.Outputs[0].UpperLimits[0] = hi / size
	return op, nil
}

func aggregateMeanStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	sv := calcSumAndValidCount(op.Inputs[0].Data, d.thresholds)

	if sv.validCount > 0 {
		op.Outputs[0].Data[0] = sv.mean()
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

// MakeAggregateSigma outputs the standard deviation of the qualifying input
// elements around their mean, invalid when no element qualifies.
func MakeAggregateSigma(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateSigma, input, thresholds)
	if err != nil {
		return nil, err
	}

	llMin := math.MaxFloat64
	ulMax := -math.MaxFloat64
	for i := range input.LowerLimits {
		llMin = cmin(llMin, cmin(input.LowerLimits[i], input.UpperLimits[i]))
		ulMax = cmax(ulMax, cmax(input.LowerLimits[i], input.UpperLimits[i]))
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = math.Sqrt(ulMax - llMin)
	return op, nil
}

func aggregateSigmaStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	sv := calcSumAndValidCount(in, d.thresholds)
	mean := sv.mean()
	sigma := 0.0

	for _, p := range in {
		if d.thresholds.ContainsValid(p) {
			diff := p - mean
			sigma += diff * diff
		}
	}

	if sv.validCount > 0 {
		op.Outputs[0].Data[0] = math.Sqrt(sigma / float64(sv.validCount))
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

// MakeAggregateMinX outputs the index of the smallest qualifying input
// element, invalid when no element qualifies.
func MakeAggregateMinX(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMinX, input, thresholds)
	if err != nil {
		return nil, err
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = float64(input.Size())
	return op, nil
}

func aggregateMinXStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	op.Outputs[0].Data[0] = param.Invalid()
	minIndex := 0

	for i, p := range in {
		if d.thresholds.ContainsValid(p) {
			if p < in[minIndex] || math.IsNaN(in[minIndex]) {
				minIndex = i
			}
		}
	}

	if d.thresholds.ContainsValid(in[minIndex]) {
		op.Outputs[0].Data[0] = float64(minIndex)
	}
}

// MakeAggregateMaxX outputs the index of the largest qualifying input
// element, invalid when no element qualifies.
func MakeAggregateMaxX(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMaxX, input, thresholds)
	if err != nil {
		return nil, err
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = float64(input.Size())
	return op, nil
}

func aggregateMaxXStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	op.Outputs[0].Data[0] = param.Invalid()
	maxIndex := 0

	for i, p := range in {
		if d.thresholds.ContainsValid(p) {
			if p > in[maxIndex] || math.IsNaN(in[maxIndex]) {
				maxIndex = i
			}
		}
	}

	if d.thresholds.ContainsValid(in[maxIndex]) {
		op.Outputs[0].Data[0] = float64(maxIndex)
	}
}

// MakeAggregateMeanX outputs the amplitude-weighted mean index
// sum(input[x] * x) / sum(input[x]) over the qualifying elements.
func MakeAggregateMeanX(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateMeanX, input, thresholds)
	if err != nil {
		return nil, err
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = float64(input.Size())
	return op, nil
}

type meanXResult struct {
	meanx float64
	sumx  float64
}

func calcMeanX(in param.Vec, thresholds param.Interval) meanXResult {
	numerator := 0.0
	denominator := 0.0
	validSeen := false

	for x, amp := range in {
		if thresholds.ContainsValid(amp) {
			numerator += amp * float64(x)
			denominator += amp
			validSeen = true
		}
	}

	if !validSeen {
		return meanXResult{meanx: param.Invalid(), sumx: param.Invalid()}
	}
	return meanXResult{meanx: numerator / denominator, sumx: denominator}
}

func aggregateMeanXStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	op.Outputs[0].Data[0] = calcMeanX(op.Inputs[0].Data, d.thresholds).meanx
}

// MakeAggregateSigmaX outputs the amplitude-weighted standard deviation of
// the element indexes around the weighted mean index.
func MakeAggregateSigmaX(a *arena.Arena, input param.Pipe, thresholds param.Interval) (*Operator, error) {
	op, err := makeAggregate(a, OpAggregateSigmaX, input, thresholds)
	if err != nil {
		return nil, err
	}
	op.Outputs[0].LowerLimits[0] = 0.0
	op.Outputs[0].UpperLimits[0] = float64(input.Size())
	return op, nil
}

func aggregateSigmaXStep(op *Operator, _ *System) {
	d := op.d.(*aggregateData)
	in := op.Inputs[0].Data

	sigmax := param.Invalid()
	mx := calcMeanX(in, d.thresholds)

	if param.IsValid(mx.meanx) {
		sigmax = 0.0
		for x, amp := range in {
			if d.thresholds.ContainsValid(amp) {
				diff := float64(x) - mx.meanx
				sigmax += diff * diff * amp
			}
		}
		sigmax = math.Sqrt(sigmax / mx.sumx)
	}

	op.Outputs[0].Data[0] = sigmax
}
