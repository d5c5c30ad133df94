package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/vmeflow/component"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/health"
	"github.com/c360/vmeflow/metric"
	"github.com/c360/vmeflow/natsclient"
	"github.com/c360/vmeflow/stream"
)

// Metrics holds Prometheus metrics for the monitor service
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	wsClients        prometheus.Gauge
	wsMessagesSent   prometheus.Counter
	wsBytesSent      prometheus.Counter
	wsClientsDropped *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
}

// newMetrics creates and registers monitor metrics
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by endpoint",
		}, []string{"endpoint"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "ws_clients",
			Help:      "Currently connected websocket clients",
		}),
		wsMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "ws_messages_sent_total",
			Help:      "Snapshot messages queued to websocket clients",
		}),
		wsBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "ws_bytes_sent_total",
			Help:      "Snapshot bytes queued to websocket clients",
		}),
		wsClientsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "ws_clients_dropped_total",
			Help:      "Websocket clients disconnected by reason",
		}, []string{"reason"}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vmeflow",
			Subsystem: "monitor",
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent inside the worker snapshot hook",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}

	registry.RegisterCounterVec("monitor", "http_requests", metrics.httpRequests)
	registry.RegisterGauge("monitor", "ws_clients", metrics.wsClients)
	registry.RegisterCounter("monitor", "ws_messages_sent", metrics.wsMessagesSent)
	registry.RegisterCounter("monitor", "ws_bytes_sent", metrics.wsBytesSent)
	registry.RegisterCounterVec("monitor", "ws_clients_dropped", metrics.wsClientsDropped)
	registry.RegisterHistogram("monitor", "snapshot_duration", metrics.snapshotDuration)

	return metrics
}

// MonitorConfig holds configuration for the monitor service
type MonitorConfig struct {
	ListenAddr        string
	BroadcastInterval time.Duration
}

// MonitorDeps holds runtime dependencies for the monitor service
type MonitorDeps struct {
	Config          MonitorConfig
	Catalog         *Catalog
	Worker          *stream.Worker
	Components      []component.Discoverable
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// RunStatus is the JSON view of the stream worker's run counters
type RunStatus struct {
	RunID       string    `json:"run_id,omitempty"`
	State       string    `json:"state"`
	StartTime   time.Time `json:"start_time"`
	StopTime    time.Time `json:"stop_time"`
	Buffers     uint64    `json:"buffers"`
	Events      uint64    `json:"events"`
	Bytes       uint64    `json:"bytes"`
	Timeticks   uint64    `json:"timeticks"`
	Dropped     uint64    `json:"dropped"`
	EventCounts []uint64  `json:"event_counts"`
}

// SnapshotMessage is the envelope broadcast to websocket clients
type SnapshotMessage struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Run       RunStatus       `json:"run"`
	Histos    []HistoSnapshot `json:"histos"`
	Rates     []RateSnapshot  `json:"rates"`
}

// Monitor serves the runtime's observation surface over HTTP: liveness,
// Prometheus metrics, JSON snapshots of histograms and rates, and a
// websocket that pushes those snapshots periodically.
//
// All histogram and rate reads go through the stream worker's Snapshot
// hook so they never race with event processing.
type Monitor struct {
	*BaseService

	config     MonitorConfig
	catalog    *Catalog
	worker     *stream.Worker
	components []component.Discoverable
	registry   *metric.MetricsRegistry
	healthMon  *health.Monitor
	hub        *hub
	metrics    *Metrics

	server        *http.Server
	addr          atomic.Value // string
	broadcastDone chan struct{}
}

// NewMonitor creates the monitor service
func NewMonitor(deps MonitorDeps) (*Monitor, error) {
	cfg := deps.Config
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = time.Second
	}

	catalog := deps.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}

	base := NewBaseService("monitor",
		WithNATS(deps.NATSClient),
		WithMetrics(deps.MetricsRegistry),
		WithLogger(deps.Logger),
	)

	m := &Monitor{
		BaseService: base,
		config:      cfg,
		catalog:     catalog,
		worker:      deps.Worker,
		components:  deps.Components,
		registry:    deps.MetricsRegistry,
		healthMon:   health.NewMonitor(),
		metrics:     newMetrics(deps.MetricsRegistry),
	}
	m.hub = newHub(m.logger, m.metrics)
	m.SetHealthCheck(m.healthCheck)

	return m, nil
}

// Catalog returns the catalog the monitor serves from
func (m *Monitor) Catalog() *Catalog {
	return m.catalog
}

// Addr returns the bound listen address, available after Start. With a
// ":0" listen address this is the only way to learn the chosen port.
func (m *Monitor) Addr() string {
	if v := m.addr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Start binds the listen address and begins serving
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.RLock()
	started := m.server != nil
	m.mu.RUnlock()
	if started {
		return fmt.Errorf("monitor already started")
	}

	if err := m.BaseService.Start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", m.config.ListenAddr)
	if err != nil {
		_ = m.BaseService.Stop(time.Second)
		return errors.WrapTransient(err, "monitor", "Start", "bind listen address")
	}

	m.mu.Lock()
	if m.server != nil {
		m.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("monitor already started")
	}
	m.addr.Store(ln.Addr().String())
	m.server = &http.Server{
		Handler:           m.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.broadcastDone = make(chan struct{})
	m.hub.start()
	server := m.server
	broadcastDone := m.broadcastDone
	m.mu.Unlock()

	go m.serve(server, ln)
	go m.broadcastLoop(broadcastDone)

	m.logger.Info("monitor listening", "addr", m.Addr())
	return nil
}

// Stop shuts the HTTP server down and disconnects websocket clients
func (m *Monitor) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	m.mu.Lock()
	server := m.server
	broadcastDone := m.broadcastDone
	m.server = nil
	m.broadcastDone = nil
	m.mu.Unlock()

	if server == nil {
		return m.BaseService.Stop(timeout)
	}

	if broadcastDone != nil {
		select {
		case <-broadcastDone:
		default:
			close(broadcastDone)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		m.logger.Warn("http server shutdown", "error", err)
	}

	m.hub.stop(timeout)

	return m.BaseService.Stop(timeout)
}

// healthCheck reports the monitor unhealthy when the server is down
func (m *Monitor) healthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.server == nil {
		return fmt.Errorf("http server not running")
	}
	return nil
}

// serve runs the HTTP server until Shutdown
func (m *Monitor) serve(server *http.Server, ln net.Listener) {
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		m.logger.Error("http server failed", "error", err)
	}
}

// broadcastLoop pushes periodic snapshots to websocket clients
func (m *Monitor) broadcastLoop(done chan struct{}) {
	ticker := time.NewTicker(m.config.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if m.hub.clientCount() == 0 {
				continue
			}
			data, err := m.snapshotPayload()
			if err != nil {
				m.logger.Error("snapshot broadcast failed", "error", err)
				continue
			}
			m.hub.broadcast(data)
		}
	}
}

// snapshotPayload builds one broadcast message inside the worker hook
func (m *Monitor) snapshotPayload() ([]byte, error) {
	var msg SnapshotMessage
	m.withSnapshot(func() {
		msg = SnapshotMessage{
			Type:      "snapshot",
			Timestamp: time.Now().UnixMilli(),
			Run:       m.runStatus(),
			Histos:    m.catalog.SnapshotHistos(),
			Rates:     m.catalog.SnapshotRates(),
		}
	})
	return json.Marshal(msg)
}

// withSnapshot runs fn between events when a worker is attached,
// directly otherwise.
func (m *Monitor) withSnapshot(fn func()) {
	start := time.Now()
	if m.worker != nil {
		_ = m.worker.Snapshot(fn)
	} else {
		fn()
	}
	if m.metrics != nil {
		m.metrics.snapshotDuration.Observe(time.Since(start).Seconds())
	}
}

// runStatus builds the JSON view of the current run
func (m *Monitor) runStatus() RunStatus {
	if m.worker == nil {
		return RunStatus{State: stream.RunStateIdle.String()}
	}

	c := m.worker.Counters()
	return RunStatus{
		RunID:       c.RunID,
		State:       m.worker.RunState().String(),
		StartTime:   c.StartTime,
		StopTime:    c.StopTime,
		Buffers:     c.Buffers,
		Events:      c.Events,
		Bytes:       c.Bytes,
		Timeticks:   c.Timeticks,
		Dropped:     c.Dropped,
		EventCounts: c.EventCounts[:],
	}
}

// routes builds the HTTP mux
func (m *Monitor) routes() *http.ServeMux {
	mux := http.NewServeMux()

	m.handle(mux, "/healthz", "healthz", m.handleHealthz)
	m.handle(mux, "/api/v1/histos", "histos", m.handleHistos)
	m.handle(mux, "/api/v1/histos/", "histo", m.handleHisto)
	m.handle(mux, "/api/v1/rates", "rates", m.handleRates)
	m.handle(mux, "/api/v1/run", "run", m.handleRun)
	m.handle(mux, "/api/v1/components", "components", m.handleComponents)
	m.handle(mux, "/ws", "ws", m.hub.handleWS)

	if m.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			m.registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	return mux
}

// handle registers a handler with request accounting
func (m *Monitor) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		m.recordActivity()
		if m.metrics != nil {
			m.metrics.httpRequests.WithLabelValues(name).Inc()
		}
		h(w, r)
	})
}

// handleHealthz aggregates component health into one system status
func (m *Monitor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	for _, comp := range m.components {
		meta := comp.Meta()
		m.healthMon.Update(meta.Name, health.FromComponentHealth(meta.Name, comp.Health()))
	}
	m.healthMon.Update(m.Name(), m.Health())

	aggregate := m.healthMon.AggregateHealth("vmeflow")

	code := http.StatusOK
	if aggregate.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	m.writeJSON(w, code, aggregate)
}

// handleHistos serves snapshots of every registered histogram
func (m *Monitor) handleHistos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var snaps []HistoSnapshot
	m.withSnapshot(func() {
		snaps = m.catalog.SnapshotHistos()
	})
	m.writeJSON(w, http.StatusOK, snaps)
}

// handleHisto serves one histogram by name
func (m *Monitor) handleHisto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/histos/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "Invalid histogram name", http.StatusBadRequest)
		return
	}

	var snap HistoSnapshot
	var ok bool
	m.withSnapshot(func() {
		snap, ok = m.catalog.SnapshotHisto(name)
	})
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.writeJSON(w, http.StatusOK, snap)
}

// handleRates serves snapshots of every registered rate sampler
func (m *Monitor) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var snaps []RateSnapshot
	m.withSnapshot(func() {
		snaps = m.catalog.SnapshotRates()
	})
	m.writeJSON(w, http.StatusOK, snaps)
}

// handleRun serves the current run counters
func (m *Monitor) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.writeJSON(w, http.StatusOK, m.runStatus())
}

// componentStatus is the JSON view of one discoverable component
type componentStatus struct {
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Description     string    `json:"description"`
	Version         string    `json:"version"`
	Healthy         bool      `json:"healthy"`
	ErrorCount      int       `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	EventsPerSecond float64   `json:"events_per_second"`
	BytesPerSecond  float64   `json:"bytes_per_second"`
	ErrorRate       float64   `json:"error_rate"`
	LastActivity    time.Time `json:"last_activity"`
}

// handleComponents lists every registered component with health and flow
func (m *Monitor) handleComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := make([]componentStatus, 0, len(m.components))
	for _, comp := range m.components {
		meta := comp.Meta()
		h := comp.Health()
		flow := comp.DataFlow()
		statuses = append(statuses, componentStatus{
			Name:            meta.Name,
			Type:            meta.Type,
			Description:     meta.Description,
			Version:         meta.Version,
			Healthy:         h.Healthy,
			ErrorCount:      h.ErrorCount,
			LastError:       h.LastError,
			UptimeSeconds:   h.Uptime.Seconds(),
			EventsPerSecond: flow.EventsPerSecond,
			BytesPerSecond:  flow.BytesPerSecond,
			ErrorRate:       flow.ErrorRate,
			LastActivity:    flow.LastActivity,
		})
	}
	m.writeJSON(w, http.StatusOK, statuses)
}

// writeJSON encodes a JSON response
func (m *Monitor) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error("failed to encode response", "error", err)
	}
}
