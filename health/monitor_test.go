package health

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	monitor := NewMonitor()

	// Partially filled status: the monitor fills name and timestamp.
	monitor.Update("readout-feed", Status{Status: "healthy", Message: "subscribed"})

	status, ok := monitor.Get("readout-feed")
	if !ok {
		t.Fatal("Expected status after update")
	}
	if status.Component != "readout-feed" {
		t.Errorf("Expected component readout-feed, got %s", status.Component)
	}
	if status.Timestamp.IsZero() {
		t.Error("Update should stamp a zero timestamp")
	}

	if _, ok := monitor.Get("unknown"); ok {
		t.Error("Expected no status for unknown component")
	}
}

func TestMonitorUpdateForcesName(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("stream-worker", Status{Component: "wrong-name", Status: "healthy"})

	status, ok := monitor.Get("stream-worker")
	if !ok {
		t.Fatal("Expected status under the registered name")
	}
	if status.Component != "stream-worker" {
		t.Errorf("Expected component forced to stream-worker, got %s", status.Component)
	}
}

func TestMonitorUpdateKeepsTimestamp(t *testing.T) {
	monitor := NewMonitor()
	stamp := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	monitor.Update("feed", Status{Status: "healthy", Timestamp: stamp})

	status, _ := monitor.Get("feed")
	if !status.Timestamp.Equal(stamp) {
		t.Errorf("Expected caller timestamp %v preserved, got %v", stamp, status.Timestamp)
	}
}

func TestMonitorGetAllReturnsCopy(t *testing.T) {
	monitor := NewMonitor()
	monitor.Update("feed", NewHealthy("feed", "ok"))
	monitor.Update("worker", NewDegraded("worker", "paused"))

	all := monitor.GetAll()
	if len(all) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(all))
	}

	delete(all, "feed")
	if _, ok := monitor.Get("feed"); !ok {
		t.Error("Mutating the GetAll copy must not reach the monitor")
	}
}

func TestMonitorAggregateHealth(t *testing.T) {
	monitor := NewMonitor()

	agg := monitor.AggregateHealth("vmeflow")
	if !agg.IsHealthy() {
		t.Errorf("Empty monitor should aggregate healthy, got %s", agg.Status)
	}

	monitor.Update("feed", NewHealthy("feed", "ok"))
	monitor.Update("worker", NewHealthy("worker", "ok"))
	agg = monitor.AggregateHealth("vmeflow")
	if !agg.IsHealthy() {
		t.Errorf("All healthy should aggregate healthy, got %s", agg.Status)
	}
	if agg.Component != "vmeflow" {
		t.Errorf("Expected aggregate component vmeflow, got %s", agg.Component)
	}

	monitor.Update("export", NewUnhealthy("export", "disk full"))
	agg = monitor.AggregateHealth("vmeflow")
	if !agg.IsUnhealthy() {
		t.Errorf("One unhealthy component should fail the aggregate, got %s", agg.Status)
	}
	if len(agg.SubStatuses) != 3 {
		t.Errorf("Expected 3 sub-statuses, got %d", len(agg.SubStatuses))
	}

	// Recovery flips the aggregate back.
	monitor.Update("export", NewHealthy("export", "recovered"))
	agg = monitor.AggregateHealth("vmeflow")
	if !agg.IsHealthy() {
		t.Errorf("Recovered components should aggregate healthy, got %s", agg.Status)
	}
}

func TestMonitorConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		name := fmt.Sprintf("component-%d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.Update(name, NewHealthy(name, "ok"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.Get(name)
				monitor.AggregateHealth("vmeflow")
			}
		}()
	}
	wg.Wait()

	if len(monitor.GetAll()) != 8 {
		t.Errorf("Expected 8 components after concurrent updates, got %d", len(monitor.GetAll()))
	}
}
