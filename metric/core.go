package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not analysis-specific)
type Metrics struct {
	// Service metrics
	ServiceStatus     *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	// Readout metrics
	EventsProcessed  *prometheus.CounterVec
	ModuleDataWords  *prometheus.CounterVec
	InvalidFrames    *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec
	ExportedBytes    *prometheus.CounterVec
	ConditionsFailed *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// namespace prefixes every core series.
const namespace = "vmeflow"

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: newGaugeVec("service", "status",
			"Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)", "service"),
		ErrorsTotal: newCounterVec("errors", "total",
			"Total number of errors", "service", "type"),
		HealthCheckStatus: newGaugeVec("health", "status",
			"Health check status (0=unhealthy, 1=healthy)", "service"),

		EventsProcessed: newCounterVec("readout", "events_total",
			"Total number of readout events stepped through the graph", "event"),
		ModuleDataWords: newCounterVec("readout", "module_words_total",
			"Total number of raw module data words processed", "event", "module"),
		InvalidFrames: newCounterVec("readout", "invalid_frames_total",
			"Total number of readout frames rejected by the decoder", "reason"),
		EventsDropped: newCounterVec("readout", "events_dropped_total",
			"Total number of readout events dropped before analysis", "reason"),

		EventDuration: newHistogramVec("analysis", "event_duration_seconds",
			"Time spent stepping one event through the operator graph",
			prometheus.ExponentialBuckets(1e-6, 4, 10), "event"),
		ExportedBytes: newCounterVec("analysis", "exported_bytes_total",
			"Total bytes written by file export sinks", "sink"),
		ConditionsFailed: newCounterVec("analysis", "conditions_failed_total",
			"Total number of operator steps skipped by a false condition", "event"),

		NATSConnected: newGauge("nats", "connected",
			"NATS connection status (0=disconnected, 1=connected)"),
		NATSRTT: newGauge("nats", "rtt_milliseconds",
			"NATS round-trip time in milliseconds"),
		NATSReconnects: newCounter("nats", "reconnects_total",
			"Total number of NATS reconnections"),
	}
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func newGaugeVec(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		Buckets: buckets,
	}, labels)
}

// collectors returns every core series for bulk registration.
func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ServiceStatus,
		c.ErrorsTotal,
		c.HealthCheckStatus,
		c.EventsProcessed,
		c.ModuleDataWords,
		c.InvalidFrames,
		c.EventsDropped,
		c.EventDuration,
		c.ExportedBytes,
		c.ConditionsFailed,
		c.NATSConnected,
		c.NATSRTT,
		c.NATSReconnects,
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordEvent increments the processed event counter
func (c *Metrics) RecordEvent(event string) {
	c.EventsProcessed.WithLabelValues(event).Inc()
}

// RecordModuleWords adds the word count of one module data block
func (c *Metrics) RecordModuleWords(event, module string, words int) {
	c.ModuleDataWords.WithLabelValues(event, module).Add(float64(words))
}

// RecordInvalidFrame increments the rejected frame counter
func (c *Metrics) RecordInvalidFrame(reason string) {
	c.InvalidFrames.WithLabelValues(reason).Inc()
}

// RecordDroppedEvent increments the dropped event counter
func (c *Metrics) RecordDroppedEvent(reason string) {
	c.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordEventDuration records the graph stepping time for one event
func (c *Metrics) RecordEventDuration(event string, duration time.Duration) {
	c.EventDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordExportedBytes adds bytes written by an export sink
func (c *Metrics) RecordExportedBytes(sink string, n int) {
	c.ExportedBytes.WithLabelValues(sink).Add(float64(n))
}

// RecordConditionFailed increments the skipped-step counter
func (c *Metrics) RecordConditionFailed(event string) {
	c.ConditionsFailed.WithLabelValues(event).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
