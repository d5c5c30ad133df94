// Package vmeflow provides a real-time analysis pipeline for VME detector
// readout, converting raw MVLC data words into calibrated parameters,
// aggregates, filtered subsets, and histograms.
//
// # Architecture
//
// vmeflow processes one readout event at a time through a staged dataflow:
//
//	┌─────────────────────────────────────┐
//	│          Readout Feed               │  NATS subscription,
//	│   (subject → bounded event buffer)  │  frame decoding
//	└─────────────────────────────────────┘
//	           ↓ feeds
//	┌─────────────────────────────────────┐
//	│         Stream Worker               │  Run lifecycle, counters,
//	│  (begin/process/end event stepping) │  periodic timeticks
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│         Analysis System             │  Data sources extract,
//	│  (sources → operators by rank)      │  operators transform/sink
//	└─────────────────────────────────────┘
//	           ↓ observed via
//	┌─────────────────────────────────────┐
//	│         Monitor Service             │  HTTP API, WebSocket
//	│   (histograms, rates, run state)    │  snapshots, Prometheus
//	└─────────────────────────────────────┘
//
// Data sources match raw 32-bit words against bit-level filter patterns and
// extract address/data fields into parameter vectors. Operators run in rank
// order within each event: calibration and expressions first, then
// aggregates and filters that consume their outputs, then histogram and
// export sinks. A parameter is either a valid double or invalid (quiet NaN),
// and invalid values propagate through every stage without special cases.
//
// # Memory Model
//
// All parameter vectors and histogram bins live in a bump-allocated arena
// sized at system build time. The per-event hot path performs no heap
// allocation, which keeps processing latency flat at high event rates.
//
// # Packages
//
//   - arena: bump allocator backing all pipeline state
//   - param: parameter vectors, validity, unit intervals
//   - datafilter: bit-level word filters and multi-word event filters
//   - histo: H1D/H2D histograms with under/overflow tracking
//   - rate: sampled rate history for trend monitoring
//   - engine: analysis system, data sources, operators, export streams
//   - stream: run lifecycle worker between feed and engine
//   - feed: NATS readout subscription
//   - service: monitor HTTP/WebSocket service and object catalog
//   - config: layered configuration with validation
//
// The vmeflow binary under cmd/vmeflow wires these into a runnable
// pipeline with a built-in demonstration analysis.
package vmeflow
