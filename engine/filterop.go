package engine

import (
	"fmt"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

type rangeFilterData struct {
	thresholds param.Interval
	invert     bool
}

type rangeFilterIdxData struct {
	rangeFilterData
	inputIndex int
}

// MakeRangeFilter passes input elements inside the threshold window through
// and blanks the rest to invalid. With invert set, elements outside the
// window pass instead; invalid inputs then pass too, staying invalid.
func MakeRangeFilter(a *arena.Arena, input param.Pipe, thresholds param.Interval, invert bool) (*Operator, error) {
	op := makeOperator(OpRangeFilter, 1, 1)
	assignInput(op, input, 0)

	size := input.Size()
	if err := pushOutput(a, op, 0, size, 0.0, 0.0); err != nil {
		return nil, err
	}

	for i := 0; i < size; i++ {
		if invert {
			op.Outputs[0].LowerLimits[i] = input.LowerLimits[i]
			op.Outputs[0].UpperLimits[i] = input.UpperLimits[i]
		} else {
			op.Outputs[0].LowerLimits[i] = thresholds.Min
			op.Outputs[0].UpperLimits[i] = thresholds.Max
		}
	}

	op.d = &rangeFilterData{thresholds: thresholds, invert: invert}
	return op, nil
}

// MakeRangeFilterIdx is MakeRangeFilter for a single input element.
func MakeRangeFilterIdx(a *arena.Arena, input param.Pipe, inputIndex int, thresholds param.Interval, invert bool) (*Operator, error) {
	if inputIndex < 0 || inputIndex >= input.Size() {
		return nil, fmt.Errorf("range filter input index %d out of range [0,%d): %w",
			inputIndex, input.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpRangeFilterIdx, 1, 1)
	assignInput(op, input, 0)

	if err := pushOutput(a, op, 0, 1, 0.0, 0.0); err != nil {
		return nil, err
	}

	if invert {
		op.Outputs[0].LowerLimits[0] = input.LowerLimits[inputIndex]
		op.Outputs[0].UpperLimits[0] = input.UpperLimits[inputIndex]
	} else {
		op.Outputs[0].LowerLimits[0] = thresholds.Min
		op.Outputs[0].UpperLimits[0] = thresholds.Max
	}

	op.d = &rangeFilterIdxData{
		rangeFilterData: rangeFilterData{thresholds: thresholds, invert: invert},
		inputIndex:      inputIndex,
	}
	return op, nil
}

func rangeFilterStep(op *Operator, _ *System) {
	d := op.d.(*rangeFilterData)
	in := op.Inputs[0].Data
	out := op.Outputs[0].Data
	invalid := param.Invalid()

	if d.invert {
		for i, p := range in {
			if !d.thresholds.Contains(p) {
				out[i] = p
			} else {
				out[i] = invalid
			}
		}
	} else {
		for i, p := range in {
			if d.thresholds.Contains(p) {
				out[i] = p
			} else {
				out[i] = invalid
			}
		}
	}
}

func rangeFilterStepIdx(op *Operator, _ *System) {
	d := op.d.(*rangeFilterIdxData)
	p := op.Inputs[0].Data[d.inputIndex]

	if d.thresholds.Contains(p) != d.invert {
		op.Outputs[0].Data[0] = p
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

// RectFilterOperation selects how the two axis tests of a rect filter
// combine.
type RectFilterOperation uint8

const (
	RectAnd RectFilterOperation = iota
	RectOr
)

type rectFilterData struct {
	xThresholds param.Interval
	yThresholds param.Interval
	xIndex      int
	yIndex      int
	filterOp    RectFilterOperation
}

// MakeRectFilter tests one element of each input against an axis window and
// outputs a single flag element: 0.0 when the combined test passes, invalid
// otherwise.
func MakeRectFilter(
	a *arena.Arena,
	xInput, yInput param.Pipe,
	xIndex, yIndex int,
	xThresholds, yThresholds param.Interval,
	filterOp RectFilterOperation,
) (*Operator, error) {
	if xIndex < 0 || xIndex >= xInput.Size() || yIndex < 0 || yIndex >= yInput.Size() {
		return nil, fmt.Errorf("rect filter indexes %d/%d out of range for inputs of size %d/%d: %w",
			xIndex, yIndex, xInput.Size(), yInput.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpRectFilter, 2, 1)
	assignInput(op, xInput, 0)
	assignInput(op, yInput, 1)

	if err := pushOutput(a, op, 0, 1, 0.0, 0.0); err != nil {
		return nil, err
	}

	op.d = &rectFilterData{
		xThresholds: xThresholds,
		yThresholds: yThresholds,
		xIndex:      xIndex,
		yIndex:      yIndex,
		filterOp:    filterOp,
	}
	return op, nil
}

func rectFilterStep(op *Operator, _ *System) {
	d := op.d.(*rectFilterData)

	x := op.Inputs[0].Data[d.xIndex]
	y := op.Inputs[1].Data[d.yIndex]

	xInside := d.xThresholds.Contains(x)
	yInside := d.yThresholds.Contains(y)

	pass := xInside || yInside
	if d.filterOp == RectAnd {
		pass = xInside && yInside
	}

	if pass {
		op.Outputs[0].Data[0] = 0.0
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

type conditionFilterData struct {
	dataIndex int
	condIndex int
	inverted  bool
}

// MakeConditionFilter passes data elements through while the corresponding
// condition element is valid, blanking them to invalid otherwise. Negative
// dataIndex selects the whole data array, negative condIndex matches
// condition elements to data elements by position. A single data element
// combined with a condition array uses the first condition element.
func MakeConditionFilter(
	a *arena.Arena,
	dataInput, condInput param.Pipe,
	inverted bool,
	dataIndex, condIndex int,
) (*Operator, error) {
	if dataIndex >= dataInput.Size() {
		return nil, fmt.Errorf("condition filter data index %d out of range [0,%d): %w",
			dataIndex, dataInput.Size(), errors.ErrGraphMalformed)
	}
	if condIndex >= condInput.Size() {
		return nil, fmt.Errorf("condition filter condition index %d out of range [0,%d): %w",
			condIndex, condInput.Size(), errors.ErrGraphMalformed)
	}

	if dataIndex >= 0 && condIndex < 0 {
		if condInput.Size() < 1 {
			return nil, fmt.Errorf("condition filter condition input must not be empty: %w",
				errors.ErrGraphMalformed)
		}
		condIndex = 0
	}

	op := makeOperator(OpConditionFilter, 2, 1)
	assignInput(op, dataInput, 0)
	assignInput(op, condInput, 1)

	outSize := 1
	if dataIndex < 0 {
		outSize = dataInput.Size()
	}
	if err := pushOutput(a, op, 0, outSize, 0.0, 0.0); err != nil {
		return nil, err
	}

	if dataIndex < 0 {
		copy(op.Outputs[0].LowerLimits, dataInput.LowerLimits)
		copy(op.Outputs[0].UpperLimits, dataInput.UpperLimits)
	} else {
		op.Outputs[0].LowerLimits[0] = dataInput.LowerLimits[dataIndex]
		op.Outputs[0].UpperLimits[0] = dataInput.UpperLimits[dataIndex]
	}

	op.d = &conditionFilterData{dataIndex: dataIndex, condIndex: condIndex, inverted: inverted}
	return op, nil
}

func conditionFilterStep(op *Operator, _ *System) {
	d := op.d.(*conditionFilterData)
	data := op.Inputs[0].Data
	cond := op.Inputs[1].Data
	out := op.Outputs[0].Data

	if d.dataIndex < 0 {
		for pi := range data {
			// The condition array can be shorter than the data array; missing
			// elements count as invalid.
			condParam := param.Invalid()
			if d.condIndex < 0 && pi < len(cond) {
				condParam = cond[pi]
			} else if d.condIndex >= 0 {
				condParam = cond[d.condIndex]
			}

			if param.IsValid(condParam) != d.inverted {
				out[pi] = data[pi]
			} else {
				out[pi] = param.Invalid()
			}
		}
		return
	}

	condParam := cond[d.condIndex]
	if param.IsValid(condParam) != d.inverted {
		out[0] = data[d.dataIndex]
	} else {
		out[0] = param.Invalid()
	}
}
