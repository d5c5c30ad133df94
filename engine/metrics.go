package engine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vmeflow/metric"
)

// systemMetrics holds Prometheus metrics for the analysis event loop.
type systemMetrics struct {
	// Event processing
	events        *prometheus.CounterVec   // By event_index
	moduleWords   *prometheus.CounterVec   // By event_index and module_index
	eventDuration *prometheus.HistogramVec // By event_index

	// Condition gating
	skippedOperators *prometheus.CounterVec // By event_index

	// Run lifecycle
	timeticks prometheus.Counter
	runActive prometheus.Gauge

	// Label values are needed on every event, so they are precomputed
	// instead of calling strconv in the hot path.
	eventLabels  [MaxVMEEvents]string
	moduleLabels [MaxVMEModules]string
}

// newSystemMetrics creates and registers event loop metrics with the provided registry.
func newSystemMetrics(registry *metric.MetricsRegistry) (*systemMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &systemMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Total number of events stepped through the analysis graph",
		}, []string{"event_index"}),

		moduleWords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "module_words_total",
			Help:      "Total number of raw data words consumed from readout modules",
		}, []string{"event_index", "module_index"}),

		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "event_duration_seconds",
			Help:      "Wall time spent stepping the operators of one event",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2},
		}, []string{"event_index"}),

		skippedOperators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "skipped_operators_total",
			Help:      "Total number of operator steps skipped by a failed condition",
		}, []string{"event_index"}),

		timeticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "timeticks_total",
			Help:      "Total number of timetick callbacks delivered to rate monitors",
		}),

		runActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmeflow",
			Subsystem: "engine",
			Name:      "run_active",
			Help:      "Whether a run is currently active (1) or not (0)",
		}),
	}

	for i := range m.eventLabels {
		m.eventLabels[i] = strconv.Itoa(i)
	}
	for i := range m.moduleLabels {
		m.moduleLabels[i] = strconv.Itoa(i)
	}

	// Register all metrics
	if err := registry.RegisterCounterVec("engine", "events", m.events); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "module_words", m.moduleWords); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "event_duration", m.eventDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "skipped_operators", m.skippedOperators); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "timeticks", m.timeticks); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "run_active", m.runActive); err != nil {
		return nil, err
	}

	return m, nil
}

// recordEvent records one completed end_event cycle.
func (m *systemMetrics) recordEvent(eventIndex int, durationSeconds float64, skipped int) {
	if m == nil {
		return
	}

	label := m.eventLabels[eventIndex]
	m.events.WithLabelValues(label).Inc()
	m.eventDuration.WithLabelValues(label).Observe(durationSeconds)
	if skipped > 0 {
		m.skippedOperators.WithLabelValues(label).Add(float64(skipped))
	}
}

// recordModuleWords records raw words consumed by the data sources of one module.
func (m *systemMetrics) recordModuleWords(eventIndex, moduleIndex, words int) {
	if m == nil {
		return
	}

	m.moduleWords.WithLabelValues(m.eventLabels[eventIndex], m.moduleLabels[moduleIndex]).Add(float64(words))
}

// recordTimetick records one timetick delivery.
func (m *systemMetrics) recordTimetick() {
	if m != nil {
		m.timeticks.Inc()
	}
}

// setRunActive flips the run state gauge.
func (m *systemMetrics) setRunActive(active bool) {
	if m == nil {
		return
	}

	if active {
		m.runActive.Set(1)
	} else {
		m.runActive.Set(0)
	}
}
