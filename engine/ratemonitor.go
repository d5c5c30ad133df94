package engine

import (
	"fmt"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
	"github.com/c360/vmeflow/rate"
)

// NoParamIndex makes a rate monitor input contribute all of its elements
// instead of a single one.
const NoParamIndex = -1

type rateMonitorData struct {
	samplers     []*rate.Sampler
	paramIndexes []int

	// hitCounts accumulates per-sampler hits between timeticks. Flow rate
	// monitors only.
	hitCounts param.Vec
}

// MakeRateMonitor attaches samplers to input elements. Each input
// contributes either all of its elements (NoParamIndex) or the selected one,
// and the samplers line up with the contributed elements in order. typ picks
// the sampling mode:
//
//   - OpRateMonitorPrecalculated records the input values as rates directly.
//   - OpRateMonitorCounterDifference treats inputs as free-running counters
//     and records their per-step increments.
//   - OpRateMonitorFlowRate counts valid hits per step and turns them into
//     rates on every timetick.
func MakeRateMonitor(
	a *arena.Arena,
	inputs []param.Pipe,
	paramIndexes []int,
	samplers []*rate.Sampler,
	typ OperatorType,
) (*Operator, error) {
	switch typ {
	case OpRateMonitorPrecalculated, OpRateMonitorCounterDifference, OpRateMonitorFlowRate:
	default:
		return nil, fmt.Errorf("%s is not a rate monitor type: %w", typ, errors.ErrUnknownOperator)
	}
	if len(inputs) == 0 || len(inputs) != len(paramIndexes) {
		return nil, fmt.Errorf("rate monitor has %d inputs and %d param indexes: %w",
			len(inputs), len(paramIndexes), errors.ErrSizeMismatch)
	}

	expected := 0
	for i, in := range inputs {
		if pi := paramIndexes[i]; pi < 0 {
			expected += in.Size()
		} else {
			if pi >= in.Size() {
				return nil, fmt.Errorf("rate monitor param index %d out of range [0,%d): %w",
					pi, in.Size(), errors.ErrGraphMalformed)
			}
			expected++
		}
	}
	if len(samplers) != expected {
		return nil, fmt.Errorf("rate monitor needs %d samplers, got %d: %w",
			expected, len(samplers), errors.ErrSizeMismatch)
	}

	op := makeOperator(typ, len(inputs), 0)
	for i, in := range inputs {
		assignInput(op, in, i)
	}

	d := &rateMonitorData{
		samplers:     samplers,
		paramIndexes: append([]int(nil), paramIndexes...),
	}
	if typ == OpRateMonitorFlowRate {
		var err error
		if d.hitCounts, err = param.PushVecFill(a, len(samplers), 0.0); err != nil {
			return nil, err
		}
	}
	op.d = d
	return op, nil
}

// eachMonitoredValue walks the monitored input elements in sampler order.
func eachMonitoredValue(op *Operator, d *rateMonitorData, fn func(samplerIndex int, value float64)) {
	samplerIndex := 0
	for ii := range op.Inputs {
		if pi := d.paramIndexes[ii]; pi < 0 {
			for _, v := range op.Inputs[ii].Data {
				fn(samplerIndex, v)
				samplerIndex++
			}
		} else {
			fn(samplerIndex, op.Inputs[ii].Data[pi])
			samplerIndex++
		}
	}
}

func rateMonitorStep(op *Operator, _ *System) {
	d := op.d.(*rateMonitorData)

	switch op.Type {
	case OpRateMonitorPrecalculated:
		eachMonitoredValue(op, d, func(si int, v float64) {
			d.samplers[si].Record(v)
		})

	case OpRateMonitorCounterDifference:
		eachMonitoredValue(op, d, func(si int, v float64) {
			d.samplers[si].Sample(v)
		})

	case OpRateMonitorFlowRate:
		eachMonitoredValue(op, d, func(si int, v float64) {
			if param.IsValid(v) {
				d.hitCounts[si]++
			}
		})
	}
}

// rateMonitorSampleFlow feeds the accumulated hit counts of a flow rate
// monitor into its samplers. Driven by System.Timetick.
func rateMonitorSampleFlow(op *Operator) {
	d := op.d.(*rateMonitorData)
	for i, s := range d.samplers {
		s.Sample(d.hitCounts[i])
	}
}
