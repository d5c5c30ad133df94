// Package metric provides Prometheus-based metrics collection for the
// vmeflow analysis pipeline.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, readout throughput, NATS health) and
// custom component-specific metrics. The HTTP exposition lives in the
// service package, which mounts the registry's Prometheus handler next to
// the data API.
//
// # Architecture
//
// The package follows a two-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics
//     (MetricsRegistry Register* methods)
//
// This separates infrastructure concerns (core metrics) from application
// concerns (component-specific metrics) while keeping a single registry for
// the exposition endpoint.
//
// # Basic Usage
//
// Setting up metrics collection:
//
//	registry := metric.NewMetricsRegistry()
//
//	// Record core platform metrics
//	core := registry.CoreMetrics()
//	core.RecordServiceStatus("stream", 2)
//	core.RecordEvent("0")
//	core.RecordModuleWords("0", "3", 128)
//
// Components register their own series against the same registry:
//
//	fills := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "vmeflow_histo_fills_total",
//	    Help: "Total histogram fills",
//	})
//	if err := registry.RegisterCounter("histo", "fills_total", fills); err != nil {
//	    return err
//	}
//
// # Core Metrics
//
// The registry automatically exposes:
//
//   - Service lifecycle: vmeflow_service_status, vmeflow_health_status
//   - Readout throughput: vmeflow_readout_events_total, vmeflow_readout_module_words_total
//   - Readout quality: vmeflow_readout_invalid_frames_total, vmeflow_readout_events_dropped_total
//   - Analysis timing: vmeflow_analysis_event_duration_seconds
//   - Export volume: vmeflow_analysis_exported_bytes_total
//   - Condition gating: vmeflow_analysis_conditions_failed_total
//   - NATS transport: vmeflow_nats_connected, vmeflow_nats_rtt_milliseconds,
//     vmeflow_nats_reconnects_total
//
// Go runtime and process collectors are registered as well.
package metric
