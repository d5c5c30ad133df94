// Package service provides the long-running HTTP monitor for vmeflow
// plus the base service plumbing it is built on: status tracking,
// periodic health checks, and graceful shutdown.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/vmeflow/health"
	"github.com/c360/vmeflow/metric"
	"github.com/c360/vmeflow/natsclient"
)

// Status is the lifecycle state of a service.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

var statusNames = [...]string{
	StatusStopped:  "stopped",
	StatusStarting: "starting",
	StatusRunning:  "running",
	StatusStopping: "stopping",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Info is a point-in-time snapshot of a service's runtime counters.
type Info struct {
	Name               string        `json:"name"`
	Status             Status        `json:"status"`
	Uptime             time.Duration `json:"uptime"`
	StartTime          time.Time     `json:"start_time"`
	RequestsServed     int64         `json:"requests_served"`
	LastActivity       time.Time     `json:"last_activity"`
	HealthChecks       int64         `json:"health_checks"`
	FailedHealthChecks int64         `json:"failed_health_checks"`
}

// HealthCheckFunc reports nil when the service is able to do its job.
type HealthCheckFunc func() error

// Option configures a BaseService.
type Option func(*BaseService)

// BaseService carries the lifecycle, health, and bookkeeping shared by
// every vmeflow service. Concrete services embed it and layer their own
// Start/Stop on top of the base ones.
type BaseService struct {
	name    string
	logger  *slog.Logger
	nats    *natsclient.Client
	metrics *metric.MetricsRegistry

	state   atomic.Int32 // Status
	healthy atomic.Bool

	startedAt    atomic.Int64 // UnixNano, zero until the first Start
	lastActivity atomic.Int64 // UnixNano
	requests     atomic.Int64
	checksRun    atomic.Int64
	checksFailed atomic.Int64

	checkFn        atomic.Pointer[HealthCheckFunc]
	healthInterval time.Duration

	// mu guards done; embedding services also use it for their own
	// mutable state.
	mu   sync.RWMutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewBaseService creates a stopped service with the given name.
func NewBaseService(name string, opts ...Option) *BaseService {
	s := &BaseService{
		name:           name,
		logger:         slog.Default().With("service", name),
		healthInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Publishes the initial status gauge when metrics are wired.
	s.setState(StatusStopped)
	return s
}

// WithNATS sets the NATS client the default health check verifies.
func WithNATS(client *natsclient.Client) Option {
	return func(s *BaseService) {
		s.nats = client
	}
}

// WithMetrics sets the registry that receives status transitions.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *BaseService) {
		s.metrics = registry
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *BaseService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthInterval sets how often health checks run. Zero disables
// periodic checking.
func WithHealthInterval(interval time.Duration) Option {
	return func(s *BaseService) {
		s.healthInterval = interval
	}
}

// Name returns the service name.
func (s *BaseService) Name() string {
	return s.name
}

// Status returns the current lifecycle state.
func (s *BaseService) Status() Status {
	return Status(s.state.Load())
}

// IsHealthy reports whether the most recent health check passed.
func (s *BaseService) IsHealthy() bool {
	return s.healthy.Load()
}

// Health translates the service state into a health.Status.
func (s *BaseService) Health() health.Status {
	if !s.healthy.Load() {
		if n := s.checksFailed.Load(); n > 0 {
			return health.NewUnhealthy(s.name, fmt.Sprintf("%d health checks failed", n))
		}
		return health.NewUnhealthy(s.name, "no successful health check yet")
	}

	switch s.Status() {
	case StatusRunning:
		return health.NewHealthy(s.name, "running")
	case StatusStarting:
		return health.NewDegraded(s.name, "starting up")
	case StatusStopping:
		return health.NewDegraded(s.name, "shutting down")
	default:
		return health.NewUnhealthy(s.name, "stopped")
	}
}

// Start marks the service running and launches the watch goroutine.
// Starting a running service is a no-op.
func (s *BaseService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusRunning, StatusStarting:
		return nil
	}

	s.setState(StatusStarting)
	s.done = make(chan struct{})

	now := time.Now()
	s.startedAt.Store(now.UnixNano())
	s.lastActivity.Store(now.UnixNano())

	s.wg.Add(1)
	go s.watch(ctx, s.done)

	s.setState(StatusRunning)
	return nil
}

// Stop shuts the service down, waiting up to timeout for its goroutines.
// Stopping a stopped service is a no-op.
func (s *BaseService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case StatusStopped, StatusStopping:
		return nil
	}

	s.setState(StatusStopping)
	if s.done != nil {
		close(s.done)
		s.done = nil
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
		s.logger.Warn("timed out waiting for service goroutines", "timeout", timeout)
	}

	s.setState(StatusStopped)
	s.healthy.Store(false)
	return nil
}

// SetHealthCheck swaps the health check after construction. Safe to
// call while the service is running.
func (s *BaseService) SetHealthCheck(fn HealthCheckFunc) {
	s.checkFn.Store(&fn)
}

// GetStatus returns the current runtime counters.
func (s *BaseService) GetStatus() Info {
	started := timeFromNanos(s.startedAt.Load())

	var uptime time.Duration
	if !started.IsZero() && s.Status() == StatusRunning {
		uptime = time.Since(started)
	}

	return Info{
		Name:               s.name,
		Status:             s.Status(),
		Uptime:             uptime,
		StartTime:          started,
		RequestsServed:     s.requests.Load(),
		LastActivity:       timeFromNanos(s.lastActivity.Load()),
		HealthChecks:       s.checksRun.Load(),
		FailedHealthChecks: s.checksFailed.Load(),
	}
}

// recordActivity counts one served request.
func (s *BaseService) recordActivity() {
	s.requests.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *BaseService) setState(st Status) {
	s.state.Store(int32(st))
	if s.metrics != nil {
		s.metrics.CoreMetrics().RecordServiceStatus(s.name, int(st))
	}
}

// watch owns the health check ticker and reacts to parent context
// cancellation. One goroutine per Start.
func (s *BaseService) watch(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	var tick, first <-chan time.Time
	if s.healthInterval > 0 {
		t := time.NewTicker(s.healthInterval)
		defer t.Stop()
		tick = t.C
		// Give Start callers a moment to finish wiring the concrete
		// service before the first check runs.
		first = time.After(200 * time.Millisecond)
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			s.setState(StatusStopped)
			s.healthy.Store(false)
			return
		case <-first:
			first = nil
			s.performHealthCheck()
		case <-tick:
			s.performHealthCheck()
		}
	}
}

func (s *BaseService) performHealthCheck() {
	s.checksRun.Add(1)

	err := s.checkOnce()
	if err != nil {
		s.checksFailed.Add(1)
	}

	ok := err == nil
	was := s.healthy.Swap(ok)
	if was == ok {
		return
	}
	if ok {
		s.logger.Info("health restored")
	} else {
		s.logger.Warn("health check failed", "error", err)
	}
}

// checkOnce runs the custom check first, then verifies the NATS
// connection when one was supplied.
func (s *BaseService) checkOnce() error {
	if p := s.checkFn.Load(); p != nil {
		if fn := *p; fn != nil {
			if err := fn(); err != nil {
				return err
			}
		}
	}
	if s.nats != nil && !s.nats.IsHealthy() {
		return natsclient.ErrNotConnected
	}
	return nil
}

func timeFromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
