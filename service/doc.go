// Package service implements the vmeflow monitor: the HTTP and
// websocket surface through which a running analysis is observed.
//
// # Monitor
//
// The Monitor serves:
//
//	/healthz             aggregated health of every registered component
//	/metrics             Prometheus metrics (promhttp)
//	/api/v1/histos       snapshots of all registered histograms
//	/api/v1/histos/{name} one histogram by name
//	/api/v1/rates        snapshots of all registered rate samplers
//	/api/v1/run          current run state and counters
//	/api/v1/components   metadata, health and flow of each component
//	/ws                  websocket pushing periodic snapshot messages
//
// # Snapshot Discipline
//
// Histogram bins and rate samplers belong to the stream worker's
// processing goroutine. Every read the monitor performs goes through
// the worker's Snapshot hook, which runs the read between events. A
// monitor constructed without a worker reads directly, which is only
// safe when nothing is processing.
//
// # Catalog
//
// The Catalog maps names to histograms and rate samplers. Analysis
// setup code registers objects while building the graph:
//
//	catalog := service.NewCatalog()
//	catalog.AddH1D("ch0_amplitude", h)
//	catalog.AddRate("event0_rate", sampler)
//
// # Websocket Broadcasts
//
// Connected clients receive a SnapshotMessage every broadcast interval.
// Each client has a bounded send queue; a client that falls more than
// the queue depth behind is disconnected instead of stalling the
// broadcaster.
//
// # BaseService
//
// BaseService carries the generic service machinery: status tracking
// (Stopped → Starting → Running → Stopping), periodic health checks
// with an optional custom check function, NATS connection monitoring,
// and graceful shutdown with timeout.
package service
