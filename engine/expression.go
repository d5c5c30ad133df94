package engine

import (
	"fmt"
	"math"

	"github.com/dop251/goja"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

/* The expression operator runs two user scripts: the begin script executes
 * once at build time and declares the outputs, the step script executes per
 * event and computes them.
 *
 * Input symbols visible to both scripts, per input with prefix p:
 *
 *	p_unit                          unit label (string)
 *	p_lower_limits, p_upper_limits  limit vectors (whole-array inputs)
 *	p_size                          element count (whole-array inputs)
 *	p_lower_limit, p_upper_limit    limit scalars (indexed inputs)
 *
 * The begin script's completion value declares the outputs as an array of
 * five-element arrays:
 *
 *	[ [name, unit, size, lowerLimits, upperLimits], ... ]
 *
 * where the limit entries are either two scalars, broadcast over the
 * output, or two arrays matching the output size.
 *
 * The step script sees each input bound to its prefix as an array (indexed
 * inputs become one-element arrays) and each declared output bound to its
 * name, plus name_lower_limits, name_upper_limits, name_size and name_unit.
 * Assignments into the output arrays become the operator's output. */

type expressionData struct {
	vm          *goja.Runtime
	stepProg    *goja.Program
	outputNames []string
	outputUnits []string
	failed      bool
}

type exprOutputSpec struct {
	name        string
	unit        string
	size        int
	lowerLimits []float64
	upperLimits []float64
}

// MakeExpression builds a script-defined operator. paramIndexes selects one
// element per input, NoParamIndex binds the whole array.
func MakeExpression(
	a *arena.Arena,
	inputs []param.Pipe,
	paramIndexes []int,
	prefixes, units []string,
	beginScript, stepScript string,
) (*Operator, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("expression needs at least one input: %w", errors.ErrGraphMalformed)
	}
	if len(paramIndexes) != len(inputs) || len(prefixes) != len(inputs) || len(units) != len(inputs) {
		return nil, fmt.Errorf("expression input metadata sizes %d/%d/%d do not match %d inputs: %w",
			len(paramIndexes), len(prefixes), len(units), len(inputs), errors.ErrSizeMismatch)
	}
	for i, pi := range paramIndexes {
		if pi >= inputs[i].Size() {
			return nil, fmt.Errorf("expression param index %d out of range [0,%d) for input %q: %w",
				pi, inputs[i].Size(), prefixes[i], errors.ErrGraphMalformed)
		}
	}

	vm := goja.New()
	installExprBuiltins(vm)

	for i, in := range inputs {
		prefix := prefixes[i]
		vm.Set(prefix+"_unit", units[i])
		if pi := paramIndexes[i]; pi < 0 {
			vm.Set(prefix+"_lower_limits", []float64(in.LowerLimits))
			vm.Set(prefix+"_upper_limits", []float64(in.UpperLimits))
			vm.Set(prefix+"_size", in.Size())
		} else {
			vm.Set(prefix+"_lower_limit", in.LowerLimits[pi])
			vm.Set(prefix+"_upper_limit", in.UpperLimits[pi])
		}
	}

	beginValue, err := vm.RunString(beginScript)
	if err != nil {
		return nil, errors.Semanticf("expression begin script failed: %v", err)
	}

	specs, err := parseExprOutputSpecs(beginValue)
	if err != nil {
		return nil, err
	}

	op := makeOperator(OpExpression, len(inputs), len(specs))
	for i, in := range inputs {
		assignInput(op, in, i)
	}

	d := &expressionData{vm: vm}
	for oi, spec := range specs {
		if err := pushOutput(a, op, oi, spec.size, 0.0, 0.0); err != nil {
			return nil, err
		}
		copy(op.Outputs[oi].LowerLimits, spec.lowerLimits)
		copy(op.Outputs[oi].UpperLimits, spec.upperLimits)
		d.outputNames = append(d.outputNames, spec.name)
		d.outputUnits = append(d.outputUnits, spec.unit)
	}

	// Live bindings for the step script. Indexed inputs become one-element
	// windows into the input vector.
	for i, in := range inputs {
		if pi := paramIndexes[i]; pi < 0 {
			vm.Set(prefixes[i], []float64(in.Data))
		} else {
			vm.Set(prefixes[i], []float64(in.Data[pi:pi+1]))
		}
	}
	for oi, spec := range specs {
		out := op.Outputs[oi]
		vm.Set(spec.name, []float64(out.Data))
		vm.Set(spec.name+"_lower_limits", []float64(out.LowerLimits))
		vm.Set(spec.name+"_upper_limits", []float64(out.UpperLimits))
		vm.Set(spec.name+"_size", spec.size)
		vm.Set(spec.name+"_unit", spec.unit)
	}

	if d.stepProg, err = goja.Compile("step", stepScript, false); err != nil {
		return nil, errors.Semanticf("expression step script failed to compile: %v", err)
	}

	op.d = d
	return op, nil
}

// ExpressionOutputNames returns the output names the begin script declared.
func ExpressionOutputNames(op *Operator) []string {
	if d, ok := op.d.(*expressionData); ok {
		return d.outputNames
	}
	return nil
}

// ExpressionOutputUnits returns the output units the begin script declared.
func ExpressionOutputUnits(op *Operator) []string {
	if d, ok := op.d.(*expressionData); ok {
		return d.outputUnits
	}
	return nil
}

func installExprBuiltins(vm *goja.Runtime) {
	vm.Set("is_valid", func(x float64) bool { return param.IsValid(x) })
	vm.Set("is_invalid", func(x float64) bool { return !param.IsValid(x) })
	vm.Set("make_invalid", func() float64 { return param.Invalid() })
	vm.Set("is_nan", func(x float64) bool { return math.IsNaN(x) })
	vm.Set("valid_or", func(x, fallback float64) float64 {
		if param.IsValid(x) {
			return x
		}
		return fallback
	})
}

func parseExprOutputSpecs(v goja.Value) ([]exprOutputSpec, error) {
	entries, ok := v.Export().([]interface{})
	if !ok {
		return nil, errors.Semanticf("expression begin script must evaluate to an array of output definitions")
	}
	if len(entries) == 0 {
		return nil, errors.Semanticf("expression begin script declared no outputs")
	}

	specs := make([]exprOutputSpec, 0, len(entries))
	for ei, entry := range entries {
		fields, ok := entry.([]interface{})
		if !ok || len(fields) != 5 {
			return nil, errors.Semanticf("expression output definition %d is not a 5-element array", ei)
		}

		name, nameOK := fields[0].(string)
		unit, unitOK := fields[1].(string)
		if !nameOK || !unitOK || name == "" {
			return nil, errors.Semanticf("expression output definition %d needs a name and a unit string", ei)
		}

		sizeNum, ok := exprNumber(fields[2])
		if !ok {
			return nil, errors.Semanticf("expression output %q size is not a number", name)
		}
		size := int(math.Round(sizeNum))
		if size <= 0 {
			return nil, errors.Semanticf("expression output %q size %d must be positive", name, size)
		}

		spec := exprOutputSpec{name: name, unit: unit, size: size}

		loScalar, loIsScalar := exprNumber(fields[3])
		hiScalar, hiIsScalar := exprNumber(fields[4])
		loVec, loIsVec := exprNumberSlice(fields[3])
		hiVec, hiIsVec := exprNumberSlice(fields[4])

		switch {
		case loIsScalar && hiIsScalar:
			spec.lowerLimits = broadcast(loScalar, size)
			spec.upperLimits = broadcast(hiScalar, size)
		case loIsVec && hiIsVec:
			if len(loVec) != len(hiVec) || len(loVec) != size {
				return nil, errors.Semanticf("expression output %q limit arrays have %d/%d elements for size %d",
					name, len(loVec), len(hiVec), size)
			}
			spec.lowerLimits = loVec
			spec.upperLimits = hiVec
		default:
			return nil, errors.Semanticf("expression output %q limits must be two numbers or two arrays", name)
		}

		specs = append(specs, spec)
	}
	return specs, nil
}

func exprNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func exprNumberSlice(v interface{}) ([]float64, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		n, ok := exprNumber(e)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func broadcast(v float64, size int) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = v
	}
	return out
}

func expressionStep(op *Operator, s *System) {
	d := op.d.(*expressionData)
	if d.failed {
		return
	}

	if _, err := d.vm.RunProgram(d.stepProg); err != nil {
		d.failed = true
		for _, out := range op.Outputs {
			out.Data.Invalidate()
		}
		if s != nil && s.logger != nil {
			s.logger.Error("expression step script failed, operator disabled", "error", err)
		}
	}
}
