package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/metric"
)

// Readout geometry limits. Module data arrives addressed by event and
// module index, both bounded by the crate configuration.
const (
	MaxVMEEvents  = 12
	MaxVMEModules = 20
)

// System holds the analysis graph for all events of a readout and drives
// it through the begin/process/end cycle.
//
// The zero value is not usable, construct with NewSystem. A System is not
// safe for concurrent use, the readout loop owns it.
type System struct {
	arena *arena.Arena

	dataSources [MaxVMEEvents][]*DataSource
	operators   [MaxVMEEvents][]*Operator
	ranks       [MaxVMEEvents][]int

	conditionBits Bitset

	logger  *slog.Logger
	metrics *systemMetrics

	running bool
}

// NewSystem creates an empty analysis system allocating from a. Operator
// vectors built through the Make functions must use the same arena. A nil
// registry disables metrics.
func NewSystem(a *arena.Arena, logger *slog.Logger, registry *metric.MetricsRegistry) (*System, error) {
	if a == nil {
		return nil, fmt.Errorf("engine.NewSystem: arena is required: %w", errors.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newSystemMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("engine.NewSystem: metrics registration failed: %w", err)
	}

	return &System{
		arena:   a,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Arena returns the arena the system allocates from.
func (s *System) Arena() *arena.Arena { return s.arena }

// Running reports whether the system is between BeginRun and EndRun.
func (s *System) Running() bool { return s.running }

// ConditionBits exposes the shared condition bitset. Condition operators
// write it during end_event, gated operators read it.
func (s *System) ConditionBits() *Bitset { return &s.conditionBits }

// DataSourceCount returns the number of data sources attached to an event.
func (s *System) DataSourceCount(eventIndex int) int {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return 0
	}
	return len(s.dataSources[eventIndex])
}

// OperatorCount returns the number of operators attached to an event.
func (s *System) OperatorCount(eventIndex int) int {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return 0
	}
	return len(s.operators[eventIndex])
}

// AddDataSource attaches a data source to an event. Sources are processed
// in insertion order when module data arrives.
func (s *System) AddDataSource(eventIndex int, ds *DataSource) error {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return fmt.Errorf("engine.AddDataSource: event %d not in [0,%d): %w",
			eventIndex, MaxVMEEvents, errors.ErrEventIndex)
	}
	if ds.ModuleIndex < 0 || ds.ModuleIndex >= MaxVMEModules {
		return fmt.Errorf("engine.AddDataSource: module %d not in [0,%d): %w",
			ds.ModuleIndex, MaxVMEModules, errors.ErrModuleIndex)
	}

	s.dataSources[eventIndex] = append(s.dataSources[eventIndex], ds)
	return nil
}

// AddOperator attaches an operator to an event at the given rank. An
// operator must be ranked strictly above every operator producing one of
// its inputs, end_event steps operators in ascending rank order.
//
// Condition operators are assigned their bit range in the shared bitset
// here, in insertion order.
func (s *System) AddOperator(eventIndex, rank int, op *Operator) error {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return fmt.Errorf("engine.AddOperator: event %d not in [0,%d): %w",
			eventIndex, MaxVMEEvents, errors.ErrEventIndex)
	}
	if op.Type <= OpInvalid || op.Type >= opTypeCount {
		return fmt.Errorf("engine.AddOperator: operator type %d: %w",
			op.Type, errors.ErrUnknownOperator)
	}
	if operatorTable[op.Type].step == nil {
		return fmt.Errorf("engine.AddOperator: operator %v has no step function: %w",
			op.Type, errors.ErrUnknownOperator)
	}

	if IsConditionOperator(op) {
		if ConditionFirstBit(op) != NoCondition {
			return fmt.Errorf("engine.AddOperator: condition %v: %w",
				op.Type, errors.ErrConditionBitsSet)
		}
		firstBit := s.conditionBits.Extend(ConditionBitCount(op))
		op.d.(conditionData).setFirstBit(firstBit)
	}

	// Insert keeping ranks ascending. Equal ranks keep insertion order, so
	// siblings step in the order they were added.
	ops := s.operators[eventIndex]
	ranks := s.ranks[eventIndex]
	pos := len(ops)
	for i, r := range ranks {
		if r > rank {
			pos = i
			break
		}
	}

	ops = append(ops, nil)
	copy(ops[pos+1:], ops[pos:])
	ops[pos] = op
	s.operators[eventIndex] = ops

	ranks = append(ranks, 0)
	copy(ranks[pos+1:], ranks[pos:])
	ranks[pos] = rank
	s.ranks[eventIndex] = ranks

	return nil
}

// BeginRun prepares every operator for a new run. Export sinks open their
// output streams here.
func (s *System) BeginRun() {
	for ei := range s.operators {
		for _, op := range s.operators[ei] {
			if beginRun := operatorTable[op.Type].beginRun; beginRun != nil {
				beginRun(op, s.logger)
			}
		}
	}

	s.running = true
	s.metrics.setRunActive(true)
	s.logger.Info("analysis run started",
		"dataSources", s.totalDataSources(),
		"operators", s.totalOperators(),
		"conditionBits", s.conditionBits.Size())
}

// EndRun finalizes every operator. Export sinks flush and close their
// output streams here.
func (s *System) EndRun() {
	for ei := range s.operators {
		for _, op := range s.operators[ei] {
			if endRun := operatorTable[op.Type].endRun; endRun != nil {
				endRun(op)
			}
		}
	}

	s.running = false
	s.metrics.setRunActive(false)
	s.logger.Info("analysis run ended")
}

// BeginEvent resets the data sources of one event. Outputs are invalidated,
// partially matched multiword filters are cleared. Call before feeding the
// module data of a new readout event.
func (s *System) BeginEvent(eventIndex int) error {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return fmt.Errorf("engine.BeginEvent: event %d not in [0,%d): %w",
			eventIndex, MaxVMEEvents, errors.ErrEventIndex)
	}

	for _, ds := range s.dataSources[eventIndex] {
		switch ds.Type {
		case DataSourceExtractor:
			extractorBeginEvent(ds)
		case DataSourceListFilterExtractor:
			listFilterExtractorBeginEvent(ds)
		}
	}
	return nil
}

// ProcessModuleData feeds the raw words of one module to the data sources
// attached to it. Filter extractors each scan the full block. List filter
// extractors consume the block sequentially, sharing a cursor, in the
// order they were added.
func (s *System) ProcessModuleData(eventIndex, moduleIndex int, data []uint32) error {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return fmt.Errorf("engine.ProcessModuleData: event %d not in [0,%d): %w",
			eventIndex, MaxVMEEvents, errors.ErrEventIndex)
	}
	if moduleIndex < 0 || moduleIndex >= MaxVMEModules {
		return fmt.Errorf("engine.ProcessModuleData: module %d not in [0,%d): %w",
			moduleIndex, MaxVMEModules, errors.ErrModuleIndex)
	}

	cursor := 0
	for _, ds := range s.dataSources[eventIndex] {
		if ds.ModuleIndex != moduleIndex {
			continue
		}

		switch ds.Type {
		case DataSourceExtractor:
			extractorProcessModuleData(ds, data)
		case DataSourceListFilterExtractor:
			if cursor < len(data) {
				cursor += listFilterExtractorProcessModuleData(ds, data[cursor:])
			}
		}
	}

	s.metrics.recordModuleWords(eventIndex, moduleIndex, len(data))
	return nil
}

// EndEvent steps the operators of one event in rank order. Operators gated
// on a condition bit that tests false are skipped and keep their previous
// outputs.
func (s *System) EndEvent(eventIndex int) error {
	if eventIndex < 0 || eventIndex >= MaxVMEEvents {
		return fmt.Errorf("engine.EndEvent: event %d not in [0,%d): %w",
			eventIndex, MaxVMEEvents, errors.ErrEventIndex)
	}

	start := time.Now()
	skipped := 0

	for _, op := range s.operators[eventIndex] {
		if op.ConditionIndex >= 0 && !s.conditionBits.Test(op.ConditionIndex) {
			skipped++
			continue
		}
		operatorTable[op.Type].step(op, s)
	}

	s.metrics.recordEvent(eventIndex, time.Since(start).Seconds(), skipped)
	return nil
}

// Timetick drives the periodic sampling of flow rate monitors. Call at a
// fixed cadence, typically once per second, between events.
func (s *System) Timetick() {
	for ei := range s.operators {
		for _, op := range s.operators[ei] {
			if op.Type == OpRateMonitorFlowRate {
				rateMonitorSampleFlow(op)
			}
		}
	}
	s.metrics.recordTimetick()
}

func (s *System) totalDataSources() int {
	n := 0
	for ei := range s.dataSources {
		n += len(s.dataSources[ei])
	}
	return n
}

func (s *System) totalOperators() int {
	n := 0
	for ei := range s.operators {
		n += len(s.operators[ei])
	}
	return n
}
