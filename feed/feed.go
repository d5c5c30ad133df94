package feed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vmeflow/component"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/metric"
	"github.com/c360/vmeflow/natsclient"
	"github.com/c360/vmeflow/pkg/buffer"
	"github.com/c360/vmeflow/pkg/retry"
	"github.com/c360/vmeflow/stream"
)

// DefaultBufferCapacity bounds the decode buffer between the NATS
// callback and the worker channel.
const DefaultBufferCapacity = 4096

// Metrics holds Prometheus metrics for the readout feed
type Metrics struct {
	framesReceived    prometheus.Counter
	bytesReceived     prometheus.Counter
	decodeErrors      prometheus.Counter
	eventsDropped     prometheus.Counter
	bufferUtilization prometheus.Gauge
	lastActivity      prometheus.Gauge
}

// newMetrics creates and registers readout feed metrics
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Total readout frames received from NATS",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from NATS",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Frames discarded because they failed to decode",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "events_dropped_total",
			Help:      "Decoded events dropped because the buffer overflowed",
		}),
		bufferUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "buffer_utilization_ratio",
			Help:      "Decode buffer usage (0-1) showing backpressure",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmeflow",
			Subsystem: "feed",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received frame",
		}),
	}

	registry.RegisterCounter("readout_feed", "frames_received", metrics.framesReceived)
	registry.RegisterCounter("readout_feed", "bytes_received", metrics.bytesReceived)
	registry.RegisterCounter("readout_feed", "decode_errors", metrics.decodeErrors)
	registry.RegisterCounter("readout_feed", "events_dropped", metrics.eventsDropped)
	registry.RegisterGauge("readout_feed", "buffer_utilization", metrics.bufferUtilization)
	registry.RegisterGauge("readout_feed", "last_activity", metrics.lastActivity)

	return metrics
}

// FeedDeps holds runtime dependencies for the readout feed
type FeedDeps struct {
	Name            string
	Subject         string
	QueueGroup      string
	BufferCapacity  int
	Client          *natsclient.Client
	Events          chan<- stream.ReadoutEvent
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Feed receives readout frames from NATS, decodes them and hands the
// events to the stream worker's channel. Between the NATS callback and
// the worker sits a bounded drop-oldest buffer: a stalled or paused
// worker costs the oldest events, never blocks the subscription.
type Feed struct {
	name       string
	subject    string
	queueGroup string
	client     *natsclient.Client
	events     chan<- stream.ReadoutEvent
	logger     *slog.Logger

	buffer  *buffer.CircularBuffer[stream.ReadoutEvent]
	notifyc chan struct{}

	retryConfig retry.Config

	// Lifecycle management
	mu         sync.Mutex
	lifecycle  component.State
	sub        *nats.Subscription
	shutdown   chan struct{}
	done       chan struct{}
	startTime  time.Time
	subscribed atomic.Bool

	// Counters (atomic for concurrent readers)
	framesReceived atomic.Int64
	bytesReceived  atomic.Int64
	eventsDropped  atomic.Int64
	errorCount     atomic.Int64
	lastActivity   atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Feed implements all required interfaces
var _ component.Discoverable = (*Feed)(nil)
var _ component.LifecycleComponent = (*Feed)(nil)

// NewFeed creates a readout feed component
func NewFeed(deps FeedDeps) *Feed {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "readout-feed")
	}

	capacity := deps.BufferCapacity
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	f := &Feed{
		name:        deps.Name,
		subject:     deps.Subject,
		queueGroup:  deps.QueueGroup,
		client:      deps.Client,
		events:      deps.Events,
		logger:      logger,
		notifyc:     make(chan struct{}, 1),
		retryConfig: retry.Persistent(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.MetricsRegistry),
	}
	f.lastActivity.Store(time.Time{})

	bufferOpts := []buffer.Option[stream.ReadoutEvent]{
		buffer.WithOverflowPolicy[stream.ReadoutEvent](buffer.DropOldest),
		buffer.WithDropCallback[stream.ReadoutEvent](func(stream.ReadoutEvent) {
			f.eventsDropped.Add(1)
			if f.metrics != nil {
				f.metrics.eventsDropped.Inc()
			}
		}),
	}
	if deps.MetricsRegistry != nil {
		bufferOpts = append(bufferOpts,
			buffer.WithMetrics[stream.ReadoutEvent](deps.MetricsRegistry, "readout_feed"))
	}

	eventBuffer, err := buffer.NewCircularBuffer(capacity, bufferOpts...)
	if err != nil {
		logger.Error("Failed to create event buffer", "error", err)
		return nil
	}
	f.buffer = eventBuffer

	return f
}

// Meta returns the component metadata
func (f *Feed) Meta() component.Metadata {
	name := f.name
	if name == "" {
		name = "readout-feed"
	}

	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("NATS readout subscriber on %s", f.subject),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (f *Feed) Health() component.HealthStatus {
	f.mu.Lock()
	started := f.lifecycle == component.StateStarted
	f.mu.Unlock()

	healthy := started && f.subscribed.Load()

	status := component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(f.errorCount.Load()),
		Uptime:     time.Since(f.startTime),
	}
	if started && !f.subscribed.Load() {
		status.LastError = "readout subscription not established"
	}
	return status
}

// DataFlow returns the current data flow metrics
func (f *Feed) DataFlow() component.FlowMetrics {
	frames := f.framesReceived.Load()
	bytes := f.bytesReceived.Load()
	errorCount := f.errorCount.Load()
	lastActivity, _ := f.lastActivity.Load().(time.Time)

	var framesPerSecond float64
	var bytesPerSecond float64
	var errorRate float64

	if uptime := time.Since(f.startTime).Seconds(); uptime > 0 {
		framesPerSecond = float64(frames) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}

	if frames > 0 {
		errorRate = float64(errorCount) / float64(frames)
	}

	return component.FlowMetrics{
		EventsPerSecond: framesPerSecond,
		BytesPerSecond:  bytesPerSecond,
		ErrorRate:       errorRate,
		LastActivity:    lastActivity,
	}
}

// Initialize validates dependencies and prepares the feed for Start
func (f *Feed) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lifecycle == component.StateStarted {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"readout-feed", "Initialize", "state check")
	}

	if f.subject == "" {
		return errors.WrapInvalid(fmt.Errorf("empty subject"),
			"readout-feed", "Initialize", "subject validation")
	}
	if f.client == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"readout-feed", "Initialize", "NATS client validation")
	}
	if f.events == nil {
		return errors.WrapInvalid(fmt.Errorf("nil event channel"),
			"readout-feed", "Initialize", "event channel validation")
	}

	f.lifecycle = component.StateInitialized
	return nil
}

// Start subscribes to the readout subject and begins pumping decoded
// events to the worker. The subscription is established in the
// background with retries, so Start succeeds while NATS is still
// connecting; Health reports the feed unhealthy until the subscription
// is up.
func (f *Feed) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "readout-feed", "Start", "context check")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lifecycle == component.StateStarted {
		return nil // Already running, idempotent
	}
	if f.lifecycle != component.StateInitialized {
		return errors.WrapInvalid(
			fmt.Errorf("%w: feed not initialized (state %s)", errors.ErrNotStarted, f.lifecycle),
			"readout-feed", "Start", "state check")
	}

	// Discard events buffered by a previous run
	f.buffer.Clear()

	f.shutdown = make(chan struct{})
	f.done = make(chan struct{})
	f.startTime = time.Now()
	f.lifecycle = component.StateStarted

	go f.run(ctx, f.shutdown, f.done)

	return nil
}

// Stop unsubscribes and drains the pump with the specified timeout
func (f *Feed) Stop(timeout time.Duration) error {
	f.mu.Lock()
	if f.lifecycle != component.StateStarted {
		f.mu.Unlock()
		return nil
	}

	if f.sub != nil && f.sub.IsValid() {
		_ = f.sub.Unsubscribe()
	}
	f.sub = nil
	f.subscribed.Store(false)

	select {
	case <-f.shutdown:
	default:
		close(f.shutdown)
	}
	done := f.done
	f.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"readout-feed", "Stop", "pump shutdown")
	}

	f.mu.Lock()
	f.lifecycle = component.StateStopped
	f.mu.Unlock()
	return nil
}

// Dropped returns the number of decoded events lost to buffer overflow
func (f *Feed) Dropped() int64 {
	return f.eventsDropped.Load()
}

// run establishes the subscription and pumps decoded events until the
// context is cancelled or the feed is stopped.
func (f *Feed) run(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	// The pump runs regardless of subscription state so buffered events
	// always drain toward the worker.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		f.pump(runCtx, shutdown)
	}()

	if err := retry.Do(runCtx, f.retryConfig, func() error {
		return f.subscribe(runCtx)
	}); err != nil {
		if runCtx.Err() == nil {
			f.errorCount.Add(1)
			f.logger.Error("readout subscription failed",
				"subject", f.subject, "error", err)
		}
	}

	<-pumpDone
}

// subscribe creates the NATS subscription. With a queue group multiple
// feed instances share the readout stream.
func (f *Feed) subscribe(ctx context.Context) error {
	var sub *nats.Subscription
	var err error

	if f.queueGroup != "" {
		sub, err = f.client.QueueSubscribe(ctx, f.subject, f.queueGroup, f.handleMessage)
	} else {
		sub, err = f.client.Subscribe(ctx, f.subject, f.handleMessage)
	}
	if err != nil {
		// A malformed subject never becomes valid by retrying.
		if stderrors.Is(err, nats.ErrBadSubject) {
			return retry.Permanent(err)
		}
		return err
	}

	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()
	f.subscribed.Store(true)

	f.logger.Info("subscribed to readout stream",
		"subject", f.subject, "queueGroup", f.queueGroup)
	return nil
}

// handleMessage decodes one readout frame from NATS and buffers it
func (f *Feed) handleMessage(_ context.Context, data []byte) {
	f.framesReceived.Add(1)
	f.bytesReceived.Add(int64(len(data)))
	now := time.Now()
	f.lastActivity.Store(now)

	if f.metrics != nil {
		f.metrics.framesReceived.Inc()
		f.metrics.bytesReceived.Add(float64(len(data)))
		f.metrics.lastActivity.Set(float64(now.Unix()))
	}

	ev, err := DecodeFrame(data)
	if err != nil {
		f.errorCount.Add(1)
		if f.metrics != nil {
			f.metrics.decodeErrors.Inc()
		}
		f.logger.Warn("discarding undecodable readout frame",
			"bytes", len(data), "error", err)
		return
	}

	if err := f.buffer.Write(ev); err != nil {
		// Buffer closed during shutdown
		return
	}

	if f.metrics != nil {
		f.metrics.bufferUtilization.Set(float64(f.buffer.Size()) / float64(f.buffer.Capacity()))
	}

	f.notify()
}

// notify nudges the pump without blocking the NATS callback
func (f *Feed) notify() {
	select {
	case f.notifyc <- struct{}{}:
	default:
	}
}

// pump moves decoded events from the buffer to the worker channel,
// draining in batches to keep lock traffic off the NATS callback. The
// send may block when the worker is paused; overflow is absorbed by the
// drop-oldest buffer, not here.
func (f *Feed) pump(ctx context.Context, shutdown chan struct{}) {
	const drainBatch = 64

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-f.notifyc:
		}

		for {
			batch := f.buffer.ReadBatch(drainBatch)
			if len(batch) == 0 {
				break
			}

			for _, ev := range batch {
				select {
				case f.events <- ev:
				case <-ctx.Done():
					return
				case <-shutdown:
					return
				}
			}
		}
	}
}
