package engine

import (
	"fmt"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// conditionData is implemented by the state blocks of condition operators.
// The first bit index is assigned when the operator is added to a System.
type conditionData interface {
	firstBit() int
	setFirstBit(i int)
}

type conditionBase struct {
	conditionIndex int
}

func (c *conditionBase) firstBit() int     { return c.conditionIndex }
func (c *conditionBase) setFirstBit(i int) { c.conditionIndex = i }

type conditionIntervalData struct {
	conditionBase
	intervals []param.Interval
}

type conditionRectangleData struct {
	conditionBase
	xInterval param.Interval
	yInterval param.Interval
	xIndex    int
	yIndex    int
}

type conditionPolygonData struct {
	conditionBase
	polygon []Point
	xIndex  int
	yIndex  int
}

// Point is a vertex of a polygon condition.
type Point struct {
	X float64
	Y float64
}

// MakeConditionInterval builds a condition that tests every input element
// against its own interval and writes one bit per element, in element
// order, starting at the condition's first bit.
func MakeConditionInterval(a *arena.Arena, input param.Pipe, intervals []param.Interval) (*Operator, error) {
	if len(intervals) != input.Size() {
		return nil, fmt.Errorf("interval condition has %d intervals for %d input elements: %w",
			len(intervals), input.Size(), errors.ErrSizeMismatch)
	}

	op := makeOperator(OpConditionInterval, 1, 0)
	assignInput(op, input, 0)

	stored, err := arena.Push[param.Interval](a, len(intervals), 8)
	if err != nil {
		return nil, err
	}
	copy(stored, intervals)

	d := &conditionIntervalData{intervals: stored}
	d.conditionIndex = NoCondition
	op.d = d
	return op, nil
}

// MakeConditionRectangle builds a condition testing one element of each
// input against an axis-aligned rectangle. It writes a single bit.
func MakeConditionRectangle(
	a *arena.Arena,
	xInput, yInput param.Pipe,
	xIndex, yIndex int,
	xInterval, yInterval param.Interval,
) (*Operator, error) {
	if xIndex < 0 || xIndex >= xInput.Size() || yIndex < 0 || yIndex >= yInput.Size() {
		return nil, fmt.Errorf("rectangle condition indexes %d/%d out of range for inputs of size %d/%d: %w",
			xIndex, yIndex, xInput.Size(), yInput.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpConditionRectangle, 2, 0)
	assignInput(op, xInput, 0)
	assignInput(op, yInput, 1)

	d := &conditionRectangleData{
		xInterval: xInterval,
		yInterval: yInterval,
		xIndex:    xIndex,
		yIndex:    yIndex,
	}
	d.conditionIndex = NoCondition
	op.d = d
	return op, nil
}

// MakeConditionPolygon builds a condition testing the point formed by one
// element of each input against a polygon. It writes a single bit.
func MakeConditionPolygon(
	a *arena.Arena,
	xInput, yInput param.Pipe,
	xIndex, yIndex int,
	polygon []Point,
) (*Operator, error) {
	if xIndex < 0 || xIndex >= xInput.Size() || yIndex < 0 || yIndex >= yInput.Size() {
		return nil, fmt.Errorf("polygon condition indexes %d/%d out of range for inputs of size %d/%d: %w",
			xIndex, yIndex, xInput.Size(), yInput.Size(), errors.ErrGraphMalformed)
	}
	if len(polygon) < 3 {
		return nil, fmt.Errorf("polygon condition needs at least 3 vertices, got %d: %w",
			len(polygon), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpConditionPolygon, 2, 0)
	assignInput(op, xInput, 0)
	assignInput(op, yInput, 1)

	stored, err := arena.Push[Point](a, len(polygon), 8)
	if err != nil {
		return nil, err
	}
	copy(stored, polygon)

	d := &conditionPolygonData{polygon: stored, xIndex: xIndex, yIndex: yIndex}
	d.conditionIndex = NoCondition
	op.d = d
	return op, nil
}

func conditionIntervalStep(op *Operator, s *System) {
	d := op.d.(*conditionIntervalData)
	in := op.Inputs[0].Data

	for i, p := range in {
		s.conditionBits.Set(d.conditionIndex+i, d.intervals[i].Contains(p))
	}
}

func conditionRectangleStep(op *Operator, s *System) {
	d := op.d.(*conditionRectangleData)

	xInside := d.xInterval.Contains(op.Inputs[0].Data[d.xIndex])
	yInside := d.yInterval.Contains(op.Inputs[1].Data[d.yIndex])

	s.conditionBits.Set(d.conditionIndex, xInside && yInside)
}

func conditionPolygonStep(op *Operator, s *System) {
	d := op.d.(*conditionPolygonData)

	x := op.Inputs[0].Data[d.xIndex]
	y := op.Inputs[1].Data[d.yIndex]

	s.conditionBits.Set(d.conditionIndex, pointInPolygon(x, y, d.polygon))
}

// pointInPolygon runs an even-odd crossing test. Points on an edge may land
// on either side depending on rounding; NaN coordinates are always outside.
func pointInPolygon(x, y float64, polygon []Point) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
