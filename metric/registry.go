package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/vmeflow/errors"
)

// MetricsRegistry owns the process-wide Prometheus registry and tracks
// which component registered each series. Collectors are keyed by
// "<component>.<metric>" so Unregister can find them later without the
// caller holding on to the collector value.
type MetricsRegistry struct {
	prom  *prometheus.Registry
	core  *Metrics
	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

// NewMetricsRegistry builds a registry preloaded with the vmeflow core
// series plus the standard Go runtime and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	prom := prometheus.NewRegistry()
	core := NewMetrics()

	prom.MustRegister(core.collectors()...)
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsRegistry{
		prom:  prom,
		core:  core,
		owned: make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry exposes the underlying registry for the exposition
// handler and for test gathering.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the shared platform metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

// RegisterCounter registers a counter owned by the named component.
func (r *MetricsRegistry) RegisterCounter(componentName, metricName string, counter prometheus.Counter) error {
	return r.register(componentName, metricName, counter)
}

// RegisterGauge registers a gauge owned by the named component.
func (r *MetricsRegistry) RegisterGauge(componentName, metricName string, gauge prometheus.Gauge) error {
	return r.register(componentName, metricName, gauge)
}

// RegisterHistogram registers a histogram owned by the named component.
func (r *MetricsRegistry) RegisterHistogram(componentName, metricName string, histogram prometheus.Histogram) error {
	return r.register(componentName, metricName, histogram)
}

// RegisterCounterVec registers a labeled counter owned by the named component.
func (r *MetricsRegistry) RegisterCounterVec(componentName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register(componentName, metricName, counterVec)
}

// RegisterGaugeVec registers a labeled gauge owned by the named component.
func (r *MetricsRegistry) RegisterGaugeVec(componentName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register(componentName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a labeled histogram owned by the named component.
func (r *MetricsRegistry) RegisterHistogramVec(
	componentName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register(componentName, metricName, histogramVec)
}

func (r *MetricsRegistry) register(componentName, metricName string, c prometheus.Collector) error {
	key := componentName + "." + metricName

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.owned[key]; taken {
		return errors.WrapInvalid(
			fmt.Errorf("collector %s is already registered", key),
			"MetricsRegistry", "register", "duplicate metric registration")
	}

	err := r.prom.Register(c)
	switch {
	case err == nil:
		r.owned[key] = c
		return nil
	case stderrors.As(err, new(prometheus.AlreadyRegisteredError)):
		// Same series name registered under a different key.
		return errors.WrapInvalid(err, "MetricsRegistry", "register",
			fmt.Sprintf("series name collision for %s", key))
	default:
		return errors.WrapFatal(err, "MetricsRegistry", "register",
			fmt.Sprintf("prometheus rejected collector %s", key))
	}
}

// Unregister removes a component's collector from the registry. It reports
// whether a collector was actually removed, freeing its series name for
// re-registration.
func (r *MetricsRegistry) Unregister(componentName, metricName string) bool {
	key := componentName + "." + metricName

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.owned[key]
	if !ok {
		return false
	}
	if !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}
