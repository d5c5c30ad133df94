package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/component"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		state     string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{StatusHealthy, true, false, false},
		{StatusDegraded, false, true, false},
		{StatusUnhealthy, false, false, true},
		{"", false, false, false},
		{"HEALTHY", false, false, false}, // states are case sensitive
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("state=%q", tt.state), func(t *testing.T) {
			status := Status{Status: tt.state}
			assert.Equal(t, tt.healthy, status.IsHealthy())
			assert.Equal(t, tt.degraded, status.IsDegraded())
			assert.Equal(t, tt.unhealthy, status.IsUnhealthy())
		})
	}
}

func TestStatusConstructors(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		wantState   string
		wantHealthy bool
	}{
		{"healthy", NewHealthy("feed", "subscribed"), StatusHealthy, true},
		{"degraded", NewDegraded("feed", "dropping events"), StatusDegraded, false},
		{"unhealthy", NewUnhealthy("feed", "disconnected"), StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "feed", tt.status.Component)
			assert.Equal(t, tt.wantState, tt.status.Status)
			assert.Equal(t, tt.wantHealthy, tt.status.Healthy)
			assert.False(t, tt.status.Timestamp.IsZero(), "constructor must stamp a timestamp")
		})
	}
}

func TestAggregateWorstFirst(t *testing.T) {
	healthy := NewHealthy("worker", "running")
	degraded := NewDegraded("feed", "buffer near capacity")
	unhealthy := NewUnhealthy("export", "disk full")

	agg := Aggregate("vmeflow", []Status{healthy, healthy})
	assert.True(t, agg.IsHealthy(), "all healthy should aggregate healthy")

	agg = Aggregate("vmeflow", []Status{healthy, degraded})
	assert.True(t, agg.IsDegraded(), "one degraded should aggregate degraded")
	assert.Contains(t, agg.Message, "1 of 2")

	agg = Aggregate("vmeflow", []Status{healthy, degraded, unhealthy})
	assert.True(t, agg.IsUnhealthy(), "one unhealthy should dominate")
	assert.Len(t, agg.SubStatuses, 3)
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate("vmeflow", nil)
	assert.True(t, agg.IsHealthy(), "empty aggregate defaults to healthy")
	assert.Empty(t, agg.SubStatuses)
}

func TestAggregateCopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("feed", "ok")}
	agg := Aggregate("vmeflow", subs)

	subs[0].Status = StatusUnhealthy
	assert.Equal(t, StatusHealthy, agg.SubStatuses[0].Status,
		"aggregate must not alias the caller's slice")
}

func TestFromComponentHealth(t *testing.T) {
	tests := []struct {
		name        string
		health      component.HealthStatus
		wantState   string
		wantMessage string
	}{
		{
			name: "healthy component",
			health: component.HealthStatus{
				Healthy:   true,
				LastCheck: time.Now(),
				Uptime:    time.Hour,
			},
			wantState:   StatusHealthy,
			wantMessage: "component healthy",
		},
		{
			name: "unhealthy with error text",
			health: component.HealthStatus{
				Healthy:    false,
				LastCheck:  time.Now(),
				ErrorCount: 3,
				LastError:  "subscription lost",
				Uptime:     time.Minute,
			},
			wantState:   StatusUnhealthy,
			wantMessage: "subscription lost",
		},
		{
			name: "unhealthy without error text",
			health: component.HealthStatus{
				Healthy:    false,
				LastCheck:  time.Now(),
				ErrorCount: 1,
			},
			wantState:   StatusUnhealthy,
			wantMessage: "component reported unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := FromComponentHealth("stream-worker", tt.health)

			assert.Equal(t, "stream-worker", status.Component)
			assert.Equal(t, tt.wantState, status.Status)
			assert.Equal(t, tt.wantMessage, status.Message)
			assert.False(t, status.Timestamp.IsZero())

			require.NotNil(t, status.Metrics)
			assert.Equal(t, tt.health.Uptime, status.Metrics.Uptime)
			assert.Equal(t, tt.health.ErrorCount, status.Metrics.ErrorCount)
			assert.Equal(t, tt.health.LastCheck, status.Metrics.LastActivity)
		})
	}
}
