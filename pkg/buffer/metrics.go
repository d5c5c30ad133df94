package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vmeflow/metric"
)

// bufferMetrics mirrors the hot-path statistics into Prometheus.
type bufferMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func promOpts(name, help, component string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   "vmeflow",
		Subsystem:   "buffer",
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"component": component},
	}
}

func newCounter(name, help, component string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts(promOpts(name, help, component)))
}

func newGauge(name, help, component string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts(promOpts(name, help, component)))
}

// newBufferMetrics builds and registers the metric set. Registration
// fails when the same component already owns a buffer.
func newBufferMetrics(registry *metric.MetricsRegistry, component string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writes:      newCounter("writes_total", "Total buffer write operations", component),
		reads:       newCounter("reads_total", "Total buffer read operations", component),
		overflows:   newCounter("overflows_total", "Total buffer overflow events", component),
		drops:       newCounter("drops_total", "Total items dropped due to overflow", component),
		size:        newGauge("size", "Current number of items in buffer", component),
		utilization: newGauge("utilization", "Buffer utilization (0.0 to 1.0)", component),
	}

	counters := map[string]prometheus.Counter{
		"buffer_writes":    m.writes,
		"buffer_reads":     m.reads,
		"buffer_overflows": m.overflows,
		"buffer_drops":     m.drops,
	}
	for name, c := range counters {
		if err := registry.RegisterCounter(component, name, c); err != nil {
			return nil, err
		}
	}

	gauges := map[string]prometheus.Gauge{
		"buffer_size":        m.size,
		"buffer_utilization": m.utilization,
	}
	for name, g := range gauges {
		if err := registry.RegisterGauge(component, name, g); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordOverflow() { m.overflows.Inc() }

func (m *bufferMetrics) recordDrop() { m.drops.Inc() }

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
