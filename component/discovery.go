package component

import "time"

// Discoverable exposes identity, health, and throughput so the monitor
// can present a system view without knowing concrete component types.
// The feed, the stream worker, and the monitor itself all implement it.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata identifies a component in the monitor's component listing.
// Type is one of "input", "processor", or "service".
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus is a component's own view of its health. The monitor
// folds these into the /healthz aggregate.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics summarizes throughput for the component listing. Rates
// are computed over each component's own sampling window.
type FlowMetrics struct {
	EventsPerSecond float64   `json:"events_per_second"`
	BytesPerSecond  float64   `json:"bytes_per_second"`
	ErrorRate       float64   `json:"error_rate"`
	LastActivity    time.Time `json:"last_activity"`
}
