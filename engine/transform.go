package engine

import (
	"fmt"
	"math"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// calibrate maps p from its input scale onto the calibrated scale. Invalid
// values pass through unchanged.
func calibrate(p, paramMin, calibMin, calibFactor float64) float64 {
	if param.IsValid(p) {
		return (p-paramMin)*calibFactor + calibMin
	}
	return p
}

type calibrationData struct {
	calibFactors param.Vec
}

type calibrationIdxData struct {
	inputIndex  int
	calibFactor float64
}

// MakeCalibration maps every element of the input linearly onto
// [unitMin, unitMax].
func MakeCalibration(a *arena.Arena, input param.Pipe, unitMin, unitMax float64) (*Operator, error) {
	op := makeOperator(OpCalibration, 1, 1)
	assignInput(op, input, 0)

	size := input.Size()
	if err := pushOutput(a, op, 0, size, unitMin, unitMax); err != nil {
		return nil, err
	}

	factors, err := param.PushVec(a, size)
	if err != nil {
		return nil, err
	}
	calibRange := unitMax - unitMin
	for i := 0; i < size; i++ {
		paramRange := input.UpperLimits[i] - input.LowerLimits[i]
		factors[i] = calibRange / paramRange
	}

	op.d = &calibrationData{calibFactors: factors}
	return op, nil
}

// MakeCalibrationElementwise maps element i of the input linearly onto
// [calibMins[i], calibMaxs[i]].
func MakeCalibrationElementwise(a *arena.Arena, input param.Pipe, calibMins, calibMaxs param.Vec) (*Operator, error) {
	size := input.Size()
	if len(calibMins) != size || len(calibMaxs) != size {
		return nil, fmt.Errorf("calibration target sizes %d/%d do not match input size %d: %w",
			len(calibMins), len(calibMaxs), size, errors.ErrSizeMismatch)
	}

	op := makeOperator(OpCalibration, 1, 1)
	assignInput(op, input, 0)

	if err := pushOutput(a, op, 0, size, 0.0, 0.0); err != nil {
		return nil, err
	}

	factors, err := param.PushVec(a, size)
	if err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		calibRange := calibMaxs[i] - calibMins[i]
		paramRange := input.UpperLimits[i] - input.LowerLimits[i]
		factors[i] = calibRange / paramRange
		op.Outputs[0].LowerLimits[i] = calibMins[i]
		op.Outputs[0].UpperLimits[i] = calibMaxs[i]
	}

	op.d = &calibrationData{calibFactors: factors}
	return op, nil
}

// MakeCalibrationIdx calibrates the single input element at inputIndex.
func MakeCalibrationIdx(a *arena.Arena, input param.Pipe, inputIndex int, unitMin, unitMax float64) (*Operator, error) {
	if inputIndex < 0 || inputIndex >= input.Size() {
		return nil, fmt.Errorf("calibration input index %d out of range [0,%d): %w",
			inputIndex, input.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpCalibrationIdx, 1, 1)
	assignInput(op, input, 0)

	if err := pushOutput(a, op, 0, 1, unitMin, unitMax); err != nil {
		return nil, err
	}

	calibRange := unitMax - unitMin
	paramRange := input.UpperLimits[inputIndex] - input.LowerLimits[inputIndex]

	op.d = &calibrationIdxData{
		inputIndex:  inputIndex,
		calibFactor: calibRange / paramRange,
	}
	return op, nil
}

func calibrationStep(op *Operator, _ *System) {
	d := op.d.(*calibrationData)
	in := op.Inputs[0]
	out := op.Outputs[0]

	for i := range in.Data {
		out.Data[i] = calibrate(in.Data[i], in.LowerLimits[i], out.LowerLimits[i], d.calibFactors[i])
	}
}

func calibrationStepIdx(op *Operator, _ *System) {
	d := op.d.(*calibrationIdxData)
	in := op.Inputs[0]
	out := op.Outputs[0]

	out.Data[0] = calibrate(in.Data[d.inputIndex], in.LowerLimits[d.inputIndex],
		out.LowerLimits[0], d.calibFactor)
}

type keepPreviousData struct {
	previousInput param.Vec
	keepValid     bool
}

type keepPreviousIdxData struct {
	keepPreviousData
	inputIndex int
}

// MakeKeepPrevious outputs the input values of the previous event. With
// keepValid set, invalid input elements do not overwrite the retained
// values.
func MakeKeepPrevious(a *arena.Arena, input param.Pipe, keepValid bool) (*Operator, error) {
	op := makeOperator(OpKeepPrevious, 1, 1)
	assignInput(op, input, 0)

	size := input.Size()
	if err := pushOutput(a, op, 0, size, 0.0, 0.0); err != nil {
		return nil, err
	}
	copy(op.Outputs[0].LowerLimits, input.LowerLimits)
	copy(op.Outputs[0].UpperLimits, input.UpperLimits)

	previous, err := param.PushVec(a, size)
	if err != nil {
		return nil, err
	}

	op.d = &keepPreviousData{previousInput: previous, keepValid: keepValid}
	return op, nil
}

// MakeKeepPreviousIdx is MakeKeepPrevious for a single input element.
func MakeKeepPreviousIdx(a *arena.Arena, input param.Pipe, inputIndex int, keepValid bool) (*Operator, error) {
	if inputIndex < 0 || inputIndex >= input.Size() {
		return nil, fmt.Errorf("keep previous input index %d out of range [0,%d): %w",
			inputIndex, input.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpKeepPreviousIdx, 1, 1)
	assignInput(op, input, 0)

	if err := pushOutput(a, op, 0, 1, input.LowerLimits[inputIndex], input.UpperLimits[inputIndex]); err != nil {
		return nil, err
	}

	previous, err := param.PushVec(a, 1)
	if err != nil {
		return nil, err
	}

	op.d = &keepPreviousIdxData{
		keepPreviousData: keepPreviousData{previousInput: previous, keepValid: keepValid},
		inputIndex:       inputIndex,
	}
	return op, nil
}

func keepPreviousStep(op *Operator, _ *System) {
	d := op.d.(*keepPreviousData)
	in := op.Inputs[0].Data
	out := op.Outputs[0].Data

	copy(out, d.previousInput)

	for i, v := range in {
		if !d.keepValid || param.IsValid(v) {
			d.previousInput[i] = v
		}
	}
}

func keepPreviousStepIdx(op *Operator, _ *System) {
	d := op.d.(*keepPreviousIdxData)

	op.Outputs[0].Data[0] = d.previousInput[0]

	in := op.Inputs[0].Data[d.inputIndex]
	if !d.keepValid || param.IsValid(in) {
		d.previousInput[0] = in
	}
}

type differenceIdxData struct {
	indexA int
	indexB int
}

// MakeDifference outputs inputA - inputB element by element.
func MakeDifference(a *arena.Arena, inputA, inputB param.Pipe) (*Operator, error) {
	if inputA.Size() != inputB.Size() {
		return nil, fmt.Errorf("difference input sizes %d and %d do not match: %w",
			inputA.Size(), inputB.Size(), errors.ErrSizeMismatch)
	}

	op := makeOperator(OpDifference, 2, 1)
	assignInput(op, inputA, 0)
	assignInput(op, inputB, 1)

	size := inputA.Size()
	if err := pushOutput(a, op, 0, size, 0.0, 0.0); err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		op.Outputs[0].LowerLimits[i] = inputA.LowerLimits[i] - inputB.UpperLimits[i]
		op.Outputs[0].UpperLimits[i] = inputA.UpperLimits[i] - inputB.LowerLimits[i]
	}
	return op, nil
}

// MakeDifferenceIdx outputs inputA[indexA] - inputB[indexB].
func MakeDifferenceIdx(a *arena.Arena, inputA, inputB param.Pipe, indexA, indexB int) (*Operator, error) {
	if indexA < 0 || indexA >= inputA.Size() || indexB < 0 || indexB >= inputB.Size() {
		return nil, fmt.Errorf("difference indexes %d/%d out of range for inputs of size %d/%d: %w",
			indexA, indexB, inputA.Size(), inputB.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpDifferenceIdx, 2, 1)
	assignInput(op, inputA, 0)
	assignInput(op, inputB, 1)

	if err := pushOutput(a, op, 0, 1,
		inputA.LowerLimits[indexA]-inputB.UpperLimits[indexB],
		inputA.UpperLimits[indexA]-inputB.LowerLimits[indexB]); err != nil {
		return nil, err
	}

	op.d = &differenceIdxData{indexA: indexA, indexB: indexB}
	return op, nil
}

func differenceStep(op *Operator, _ *System) {
	inA := op.Inputs[0].Data
	inB := op.Inputs[1].Data
	out := op.Outputs[0].Data

	for i := range inA {
		if param.IsValid(inA[i]) && param.IsValid(inB[i]) {
			out[i] = inA[i] - inB[i]
		} else {
			out[i] = param.Invalid()
		}
	}
}

func differenceStepIdx(op *Operator, _ *System) {
	d := op.d.(*differenceIdxData)
	a := op.Inputs[0].Data[d.indexA]
	b := op.Inputs[1].Data[d.indexB]

	if param.IsValid(a) && param.IsValid(b) {
		op.Outputs[0].Data[0] = a - b
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}

// Mapping routes one element of one input of an array map to an output slot.
type Mapping struct {
	InputIndex int
	ParamIndex int
}

type arrayMapData struct {
	mappings []Mapping
}

// MakeArrayMap concatenates and reorders elements of the inputs into a
// single output array, one element per mapping. Mappings pointing outside
// the inputs yield permanently invalid output elements.
func MakeArrayMap(a *arena.Arena, inputs []param.Pipe, mappings []Mapping) (*Operator, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("array map needs at least one input: %w", errors.ErrGraphMalformed)
	}

	op := makeOperator(OpArrayMap, len(inputs), 1)
	for i, in := range inputs {
		assignInput(op, in, i)
	}

	if err := pushOutput(a, op, 0, len(mappings), 0.0, 0.0); err != nil {
		return nil, err
	}

	for mi, m := range mappings {
		ll, ul := math.NaN(), math.NaN()
		if m.InputIndex >= 0 && m.InputIndex < len(inputs) &&
			m.ParamIndex >= 0 && m.ParamIndex < inputs[m.InputIndex].Size() {
			ll = inputs[m.InputIndex].LowerLimits[m.ParamIndex]
			ul = inputs[m.InputIndex].UpperLimits[m.ParamIndex]
		}
		op.Outputs[0].LowerLimits[mi] = ll
		op.Outputs[0].UpperLimits[mi] = ul
	}

	op.d = &arrayMapData{mappings: append([]Mapping(nil), mappings...)}
	return op, nil
}

func arrayMapStep(op *Operator, _ *System) {
	d := op.d.(*arrayMapData)
	out := op.Outputs[0].Data

	for mi, m := range d.mappings {
		if m.InputIndex >= 0 && m.InputIndex < len(op.Inputs) &&
			m.ParamIndex >= 0 && m.ParamIndex < op.Inputs[m.InputIndex].Size() {
			out[mi] = op.Inputs[m.InputIndex].Data[m.ParamIndex]
		} else {
			out[mi] = param.Invalid()
		}
	}
}

// binaryEquations are the predefined element-wise formulas of the binary
// equation operator. Division by zero propagates as Inf or NaN, which the
// validity encoding absorbs downstream.
var binaryEquations = [...]func(a, b float64) float64{
	func(a, b float64) float64 { return a + b },
	func(a, b float64) float64 { return a - b },
	func(a, b float64) float64 { return (a + b) / (a - b) },
	func(a, b float64) float64 { return (a - b) / (a + b) },
	func(a, b float64) float64 { return a / (a - b) },
	func(a, b float64) float64 { return (a - b) / a },
}

// NumBinaryEquations is the number of predefined binary equations.
const NumBinaryEquations = len(binaryEquations)

type binaryEquationIdxData struct {
	equationIndex int
	indexA        int
	indexB        int
}

// MakeBinaryEquation applies one of the predefined two-input formulas
// element by element. The output is as long as the shorter input.
func MakeBinaryEquation(
	a *arena.Arena,
	inputA, inputB param.Pipe,
	equationIndex int,
	outputLowerLimit, outputUpperLimit float64,
) (*Operator, error) {
	if equationIndex < 0 || equationIndex >= NumBinaryEquations {
		return nil, fmt.Errorf("binary equation index %d out of range [0,%d): %w",
			equationIndex, NumBinaryEquations, errors.ErrGraphMalformed)
	}

	op := makeOperator(OpBinaryEquation, 2, 1)
	assignInput(op, inputA, 0)
	assignInput(op, inputB, 1)

	size := min(inputA.Size(), inputB.Size())
	if err := pushOutput(a, op, 0, size, outputLowerLimit, outputUpperLimit); err != nil {
		return nil, err
	}

	op.d = equationIndex
	return op, nil
}

// MakeBinaryEquationIdx applies one of the predefined formulas to a single
// element of each input.
func MakeBinaryEquationIdx(
	a *arena.Arena,
	inputA, inputB param.Pipe,
	indexA, indexB int,
	equationIndex int,
	outputLowerLimit, outputUpperLimit float64,
) (*Operator, error) {
	if equationIndex < 0 || equationIndex >= NumBinaryEquations {
		return nil, fmt.Errorf("binary equation index %d out of range [0,%d): %w",
			equationIndex, NumBinaryEquations, errors.ErrGraphMalformed)
	}
	if indexA < 0 || indexA >= inputA.Size() || indexB < 0 || indexB >= inputB.Size() {
		return nil, fmt.Errorf("binary equation indexes %d/%d out of range for inputs of size %d/%d: %w",
			indexA, indexB, inputA.Size(), inputB.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpBinaryEquationIdx, 2, 1)
	assignInput(op, inputA, 0)
	assignInput(op, inputB, 1)

	if err := pushOutput(a, op, 0, 1, outputLowerLimit, outputUpperLimit); err != nil {
		return nil, err
	}

	op.d = &binaryEquationIdxData{equationIndex: equationIndex, indexA: indexA, indexB: indexB}
	return op, nil
}

func binaryEquationStep(op *Operator, _ *System) {
	eq := binaryEquations[op.d.(int)]
	inA := op.Inputs[0].Data
	inB := op.Inputs[1].Data
	out := op.Outputs[0].Data

	for i := range out {
		if param.IsValid(inA[i]) && param.IsValid(inB[i]) {
			out[i] = eq(inA[i], inB[i])
		} else {
			out[i] = param.Invalid()
		}
	}
}

func binaryEquationStepIdx(op *Operator, _ *System) {
	d := op.d.(*binaryEquationIdxData)
	a := op.Inputs[0].Data[d.indexA]
	b := op.Inputs[1].Data[d.indexB]

	if param.IsValid(a) && param.IsValid(b) {
		op.Outputs[0].Data[0] = binaryEquations[d.equationIndex](a, b)
	} else {
		op.Outputs[0].Data[0] = param.Invalid()
	}
}
