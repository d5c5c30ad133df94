package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/metric"
)

// ConnectionStatus is the observable state of the NATS connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var connStatusNames = [...]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusCircuitOpen:  "circuit_open",
}

func (s ConnectionStatus) String() string {
	if s >= 0 && int(s) < len(connStatusNames) {
		return connStatusNames[s]
	}
	return "unknown"
}

var (
	ErrNotConnected      = stderrors.New("not connected to NATS")
	ErrCircuitOpen       = stderrors.New("circuit breaker is open")
	ErrConnectionTimeout = stderrors.New("connection timeout")
)

// Status is a snapshot of the client's connection state.
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int32
	RTT             time.Duration
}

// Client wraps a nats.Conn with a circuit breaker, credential handling
// and background health probes. One client serves the whole process;
// the feed holds its subscription, the monitor reads its health.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	subs []*nats.Subscription

	status   atomic.Value // ConnectionStatus
	failures atomic.Int32 // total since the last successful connect

	// Circuit breaker state.
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	roundFailures    atomic.Int32 // failures since the circuit last closed
	circuitThreshold int32
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Cleared on Close so credentials do not outlive the connection.
	username string
	password string
	token    string

	clientName  string
	compression bool

	coreMetrics *metric.Metrics
	reconnects  atomic.Int32

	onHealthChange func(bool)

	healthTicker   *time.Ticker
	healthInterval time.Duration
	healthDone     chan struct{}

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for the given server URL. The connection
// is not established until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.New(slog.DiscardHandler),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		healthInterval:   10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy reports whether the connection is established.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the failure count since the last successful connect.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the wait before the next circuit probe.
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// MaxReconnects returns the configured reconnection attempt limit.
func (c *Client) MaxReconnects() int {
	return c.maxReconnects
}

// ReconnectWait returns the configured wait between reconnects.
func (c *Client) ReconnectWait() time.Duration {
	return c.reconnectWait
}

// PingInterval returns the configured server ping interval.
func (c *Client) PingInterval() time.Duration {
	return c.pingInterval
}

// GetStatus returns a snapshot of connection state and failure history.
func (c *Client) GetStatus() Status {
	st := Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
		Reconnects:      c.reconnects.Load(),
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			st.RTT = rtt
		}
	}

	return st
}

// setStatus updates the connection status and mirrors it into metrics.
func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.coreMetrics != nil {
		c.coreMetrics.RecordNATSStatus(status == StatusConnected)
	}
}

// Connect establishes the connection. It fails fast with ErrCircuitOpen
// while the circuit breaker is open, so callers can retry on a schedule
// without hammering an unreachable server.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debug("connection attempt skipped, circuit open")
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	if err := c.dial(ctx); err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("connected to NATS", "url", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}
	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// dial runs nats.Connect in a goroutine so a cancelled context cannot
// leave Connect blocked behind a slow TCP dial.
func (c *Client) dial(ctx context.Context) error {
	result := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
		if err != nil {
			result <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForConnection polls until the connection is healthy or the
// context expires.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Close drains subscriptions, closes the connection and clears stored
// credentials. Calling Close more than once is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}

	// Before taking mu: the health goroutine shutdown needs it.
	c.stopHealthMonitoring()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if !sub.IsValid() {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Error("unsubscribe failed", "subject", sub.Subject, "error", err)
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.drainLocked(ctx); err != nil {
			errs = append(errs, err)
		}
		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// drainLocked flushes pending messages before the connection closes.
// The drain window shrinks to the context deadline when that is sooner.
func (c *Client) drainLocked(ctx context.Context) error {
	window := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < window {
			window = remaining
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Error("drain failed", "error", err)
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(window):
		c.logger.Warn("drain timed out, forcing close", "timeout", window)
		return errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", window), "Client", "Close", "drain timeout")
	case <-ctx.Done():
		c.logger.Warn("drain cancelled, forcing close")
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain cancelled")
	}
}

// ConnectionOptions returns the nats.Option set Connect will use.
func (c *Client) ConnectionOptions() []nats.Option {
	return c.buildConnectionOptions()
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts
}
