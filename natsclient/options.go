package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/vmeflow/metric"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithLogger routes client internals into the given logger. The client
// is silent by default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts.
// Use -1 for unlimited reconnects.
func WithMaxReconnects(maxReconnects int) ClientOption {
	return func(c *Client) error {
		if maxReconnects < -1 {
			return fmt.Errorf("maxReconnects must be >= -1, got %d", maxReconnects)
		}
		c.maxReconnects = maxReconnects
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts.
func WithReconnectWait(wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnectWait must be non-negative, got %v", wait)
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithPingInterval sets the interval for connection health pings.
func WithPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval <= 0 {
			return fmt.Errorf("pingInterval must be positive, got %v", interval)
		}
		c.pingInterval = interval
		return nil
	}
}

// WithConnectionTimeout sets the timeout for the initial connection.
func WithConnectionTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining subscriptions on close.
func WithDrainTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("drainTimeout must be positive, got %v", timeout)
		}
		c.drainTimeout = timeout
		return nil
	}
}

// WithCircuitBreaker configures how many consecutive failures open the
// circuit and the cap on the reconnect backoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold <= 0 {
			return fmt.Errorf("threshold must be positive, got %d", threshold)
		}
		if maxBackoff <= 0 {
			return fmt.Errorf("maxBackoff must be positive, got %v", maxBackoff)
		}
		c.circuitThreshold = threshold
		c.maxBackoff = maxBackoff
		return nil
	}
}

// WithHealthCheckInterval sets how often the connection health is verified.
// Set to 0 to disable background health monitoring.
func WithHealthCheckInterval(interval time.Duration) ClientOption {
	return func(c *Client) error {
		if interval < 0 {
			return fmt.Errorf("health check interval must be non-negative, got %v", interval)
		}
		c.healthInterval = interval
		return nil
	}
}

// WithCredentials sets username/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("username cannot be empty")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}
		c.token = token
		return nil
	}
}

// WithClientName sets the client name reported to the NATS server.
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("client name cannot be empty")
		}
		c.clientName = name
		return nil
	}
}

// WithCompression enables connection compression.
func WithCompression(enabled bool) ClientOption {
	return func(c *Client) error {
		c.compression = enabled
		return nil
	}
}

// WithMetrics wires connection status, RTT and reconnect counts into the
// shared metrics registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return fmt.Errorf("metrics registry cannot be nil")
		}
		c.coreMetrics = registry.CoreMetrics()
		return nil
	}
}
