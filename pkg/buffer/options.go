package buffer

import "github.com/c360/vmeflow/metric"

// Option configures a buffer at construction time.
type Option[T any] func(*config[T])

// config collects construction settings. Statistics are always on;
// Prometheus export only happens when WithMetrics supplies a registry.
type config[T any] struct {
	policy    OverflowPolicy
	onDrop    DropCallback[T]
	registry  *metric.MetricsRegistry
	component string
}

func newConfig[T any](options ...Option[T]) *config[T] {
	cfg := &config[T]{policy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithOverflowPolicy selects what Write does when the buffer is full.
// The default is DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(c *config[T]) { c.policy = policy }
}

// WithDropCallback registers a callback invoked with every item the
// overflow policy or Clear discards.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(c *config[T]) { c.onDrop = cb }
}

// WithMetrics exposes buffer counters as Prometheus metrics labelled
// with the owning component. A nil registry or empty component name
// leaves metrics off.
func WithMetrics[T any](registry *metric.MetricsRegistry, component string) Option[T] {
	return func(c *config[T]) {
		if registry != nil && component != "" {
			c.registry = registry
			c.component = component
		}
	}
}
