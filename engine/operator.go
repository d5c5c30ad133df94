package engine

import (
	"log/slog"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/param"
)

// NoCondition marks an operator as not gated on any condition bit.
const NoCondition = -1

// OperatorType identifies the step function of an operator.
type OperatorType uint8

const (
	OpInvalid OperatorType = iota

	OpCalibration
	OpCalibrationIdx
	OpKeepPrevious
	OpKeepPreviousIdx
	OpDifference
	OpDifferenceIdx
	OpArrayMap
	OpBinaryEquation
	OpBinaryEquationIdx

	OpAggregateSum
	OpAggregateMultiplicity
	OpAggregateMin
	OpAggregateMax
	OpAggregateMean
	OpAggregateSigma
	OpAggregateMinX
	OpAggregateMaxX
	OpAggregateMeanX
	OpAggregateSigmaX

	OpRangeFilter
	OpRangeFilterIdx
	OpRectFilter
	OpConditionFilter
	OpExpression

	OpConditionInterval
	OpConditionRectangle
	OpConditionPolygon

	OpH1DSink
	OpH1DSinkIdx
	OpH2DSink

	OpRateMonitorPrecalculated
	OpRateMonitorCounterDifference
	OpRateMonitorFlowRate

	OpExportSinkFull
	OpExportSinkSparse

	opTypeCount
)

var operatorTypeNames = [opTypeCount]string{
	OpInvalid: "invalid",

	OpCalibration:       "calibration",
	OpCalibrationIdx:    "calibration_idx",
	OpKeepPrevious:      "keep_previous",
	OpKeepPreviousIdx:   "keep_previous_idx",
	OpDifference:        "difference",
	OpDifferenceIdx:     "difference_idx",
	OpArrayMap:          "array_map",
	OpBinaryEquation:    "binary_equation",
	OpBinaryEquationIdx: "binary_equation_idx",

	OpAggregateSum:          "aggregate_sum",
	OpAggregateMultiplicity: "aggregate_multiplicity",
	OpAggregateMin:          "aggregate_min",
	OpAggregateMax:          "aggregate_max",
	OpAggregateMean:         "aggregate_mean",
	OpAggregateSigma:        "aggregate_sigma",
	OpAggregateMinX:         "aggregate_minx",
	OpAggregateMaxX:         "aggregate_maxx",
	OpAggregateMeanX:        "aggregate_meanx",
	OpAggregateSigmaX:       "aggregate_sigmax",

	OpRangeFilter:     "range_filter",
	OpRangeFilterIdx:  "range_filter_idx",
	OpRectFilter:      "rect_filter",
	OpConditionFilter: "condition_filter",
	OpExpression:      "expression",

	OpConditionInterval:  "condition_interval",
	OpConditionRectangle: "condition_rectangle",
	OpConditionPolygon:   "condition_polygon",

	OpH1DSink:    "h1d_sink",
	OpH1DSinkIdx: "h1d_sink_idx",
	OpH2DSink:    "h2d_sink",

	OpRateMonitorPrecalculated:     "rate_monitor_precalculated",
	OpRateMonitorCounterDifference: "rate_monitor_counter_difference",
	OpRateMonitorFlowRate:          "rate_monitor_flow_rate",

	OpExportSinkFull:   "export_sink_full",
	OpExportSinkSparse: "export_sink_sparse",
}

// String returns the snake_case name of the operator type.
func (t OperatorType) String() string {
	if t < opTypeCount {
		return operatorTypeNames[t]
	}
	return "unknown"
}

// Operator is one node of the analysis graph. Inputs alias the output pipes
// of upstream nodes, outputs are owned by the operator and allocated from
// the run's arena. The type-specific state lives behind d and is only
// touched by the step functions.
type Operator struct {
	Type    OperatorType
	Inputs  []param.Pipe
	Outputs []param.Pipe

	// ConditionIndex gates the operator on a bit of the system's condition
	// bitset. NoCondition disables gating.
	ConditionIndex int

	d any
}

// operatorFuncs bundles the per-type callbacks. Only step is mandatory;
// beginRun and endRun exist for sinks with run-scoped resources.
type operatorFuncs struct {
	step     func(op *Operator, s *System)
	beginRun func(op *Operator, logger *slog.Logger)
	endRun   func(op *Operator)
}

var operatorTable = [opTypeCount]operatorFuncs{
	OpCalibration:       {step: calibrationStep},
	OpCalibrationIdx:    {step: calibrationStepIdx},
	OpKeepPrevious:      {step: keepPreviousStep},
	OpKeepPreviousIdx:   {step: keepPreviousStepIdx},
	OpDifference:        {step: differenceStep},
	OpDifferenceIdx:     {step: differenceStepIdx},
	OpArrayMap:          {step: arrayMapStep},
	OpBinaryEquation:    {step: binaryEquationStep},
	OpBinaryEquationIdx: {step: binaryEquationStepIdx},

	OpAggregateSum:          {step: aggregateSumStep},
	OpAggregateMultiplicity: {step: aggregateMultiplicityStep},
	OpAggregateMin:          {step: aggregateMinStep},
	OpAggregateMax:          {step: aggregateMaxStep},
	OpAggregateMean:         {step: aggregateMeanStep},
	OpAggregateSigma:        {step: aggregateSigmaStep},
	OpAggregateMinX:         {step: aggregateMinXStep},
	OpAggregateMaxX:         {step: aggregateMaxXStep},
	OpAggregateMeanX:        {step: aggregateMeanXStep},
	OpAggregateSigmaX:       {step: aggregateSigmaXStep},

	OpRangeFilter:     {step: rangeFilterStep},
	OpRangeFilterIdx:  {step: rangeFilterStepIdx},
	OpRectFilter:      {step: rectFilterStep},
	OpConditionFilter: {step: conditionFilterStep},
	OpExpression:      {step: expressionStep},

	OpConditionInterval:  {step: conditionIntervalStep},
	OpConditionRectangle: {step: conditionRectangleStep},
	OpConditionPolygon:   {step: conditionPolygonStep},

	OpH1DSink:    {step: h1dSinkStep},
	OpH1DSinkIdx: {step: h1dSinkStepIdx},
	OpH2DSink:    {step: h2dSinkStep},

	OpRateMonitorPrecalculated:     {step: rateMonitorStep},
	OpRateMonitorCounterDifference: {step: rateMonitorStep},
	OpRateMonitorFlowRate:          {step: rateMonitorStep},

	OpExportSinkFull: {
		step:     exportSinkFullStep,
		beginRun: exportSinkBeginRun,
		endRun:   exportSinkEndRun,
	},
	OpExportSinkSparse: {
		step:     exportSinkSparseStep,
		beginRun: exportSinkBeginRun,
		endRun:   exportSinkEndRun,
	},
}

// makeOperator builds the operator shell. Output pipes are allocated by the
// individual factories via pushOutput.
func makeOperator(typ OperatorType, inputCount, outputCount int) *Operator {
	return &Operator{
		Type:           typ,
		Inputs:         make([]param.Pipe, inputCount),
		Outputs:        make([]param.Pipe, outputCount),
		ConditionIndex: NoCondition,
	}
}

// assignInput aliases an upstream pipe as input number index.
func assignInput(op *Operator, input param.Pipe, index int) {
	op.Inputs[index] = input
}

// pushOutput allocates output pipe number index with the given size and
// uniform limits. The data vector starts out invalid.
func pushOutput(a *arena.Arena, op *Operator, index, size int, lowerLimit, upperLimit float64) error {
	pipe, err := param.PushPipe(a, size)
	if err != nil {
		return err
	}
	pipe.LowerLimits.Fill(lowerLimit)
	pipe.UpperLimits.Fill(upperLimit)
	op.Outputs[index] = pipe
	return nil
}

// IsConditionOperator reports whether the operator writes condition bits
// instead of producing parameter output.
func IsConditionOperator(op *Operator) bool {
	switch op.Type {
	case OpConditionInterval, OpConditionRectangle, OpConditionPolygon:
		return true
	}
	return false
}

// ConditionBitCount returns the number of condition bits the operator
// occupies, zero for non-condition operators.
func ConditionBitCount(op *Operator) int {
	switch op.Type {
	case OpConditionInterval:
		return op.Inputs[0].Size()
	case OpConditionRectangle, OpConditionPolygon:
		return 1
	}
	return 0
}

// ConditionFirstBit returns the index of the first condition bit the
// operator writes, or NoCondition when the operator is not a condition or
// has not been added to a System yet.
func ConditionFirstBit(op *Operator) int {
	if d, ok := op.d.(conditionData); ok {
		return d.firstBit()
	}
	return NoCondition
}
