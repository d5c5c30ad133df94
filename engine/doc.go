// Package engine implements the per-event analysis dataflow system.
//
// # Overview
//
// A System holds, per readout event, an ordered set of data sources and
// operators. Data sources turn raw 32 bit module words into parameter
// vectors, operators consume parameter vectors and produce new ones, sinks
// fill histograms, sample rates or write export files. All per-run storage
// (parameter vectors, operator state, histogram bins) comes from a single
// arena, so graph construction allocates and the event loop does not.
//
// # Event loop
//
// The driver contract for one readout event is
//
//	BeginEvent(ei)
//	ProcessModuleData(ei, mi, words)   // once per module in the event
//	EndEvent(ei)
//
// BeginEvent resets the extraction state of every data source of the event.
// ProcessModuleData hands the module's words to the data sources attached to
// that module. EndEvent steps the event's operators in rank order: an
// operator of rank N only reads outputs of operators with rank < N, so a
// single in-order pass settles the whole graph.
//
// Around a run the driver calls BeginRun and EndRun, which invoke the
// per-operator run hooks (export sinks open and close their output files
// there). Timetick is called roughly once per second of experiment time and
// feeds the flow-rate monitors.
//
// # Conditions
//
// Condition operators evaluate a predicate over their inputs and write the
// outcome into the system-wide condition bitset instead of producing an
// output vector. Any operator can be gated on one of those bits via its
// ConditionIndex: when the bit is false the operator is skipped for the
// event and its outputs keep their previous values. Ordering by rank
// guarantees a condition is stepped before the operators it gates.
//
// # Invalid values
//
// Parameters use the quiet-NaN encoding from the param package. Operators
// never special-case NaN beyond the documented validity checks; arithmetic
// on invalid values yields invalid values for free.
package engine
