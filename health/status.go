// Package health provides health monitoring functionality for components and systems
package health

import (
	"fmt"
	"time"

	"github.com/c360/vmeflow/component"
)

// Status strings as they appear in /healthz payloads.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is one component's health report. The monitor keeps the latest
// report per component and serves the aggregate over HTTP.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the runtime counters attached to a status.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

// NewHealthy builds a healthy status stamped now.
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, true, message)
}

// NewDegraded builds a degraded status: the component works but with
// reduced capacity, for example a feed dropping events under
// backpressure.
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, false, message)
}

// NewUnhealthy builds an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, false, message)
}

func newStatus(component, state string, healthy bool, message string) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsHealthy reports whether the component is fully operational.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded reports whether the component runs with reduced capacity.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy reports whether the component is down.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// Aggregate folds sub-statuses worst-first: any unhealthy component
// makes the aggregate unhealthy, otherwise any degraded one makes it
// degraded. The sub-statuses ride along on the result so the /healthz
// payload shows which component dragged the system down.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "no components registered")
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var agg Status
	switch {
	case unhealthy > 0:
		agg = NewUnhealthy(component,
			fmt.Sprintf("%d of %d components unhealthy", unhealthy, len(subs)))
	case degraded > 0:
		agg = NewDegraded(component,
			fmt.Sprintf("%d of %d components degraded", degraded, len(subs)))
	default:
		agg = NewHealthy(component, "all components healthy")
	}
	agg.SubStatuses = append([]Status(nil), subs...)
	return agg
}

// FromComponentHealth converts a component's self-reported health into
// a status entry. Error text is sanitized first so connection strings
// and paths never reach the /healthz payload.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	state := StatusUnhealthy
	if ch.Healthy {
		state = StatusHealthy
	}

	var message string
	switch {
	case ch.LastError != "":
		message = sanitizeErrorMessage(ch.LastError)
	case ch.Healthy:
		message = "component healthy"
	default:
		message = "component reported unhealthy"
	}

	return Status{
		Component: name,
		Healthy:   ch.Healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:       ch.Uptime,
			ErrorCount:   ch.ErrorCount,
			LastActivity: ch.LastCheck,
		},
	}
}
