// Package health tracks component health for vmeflow and aggregates it into
// a single process-level status.
//
// The monitor service serves the aggregate of every registered component's
// health on its /healthz endpoint; the feed, stream worker, and exporters
// report into a shared Monitor.
//
// A Status carries one of three states. Healthy means the component operates
// normally. Degraded means reduced capacity worth surfacing but not failing
// over: a feed reconnecting to NATS or shedding events under backpressure
// keeps the process serving while signalling trouble. Unhealthy fails the
// aggregate.
//
// # Usage
//
//	monitor := health.NewMonitor()
//
//	monitor.Update("readout-feed", health.NewHealthy("readout-feed", "Subscribed to readout subject"))
//	monitor.Update("stream-worker", health.NewDegraded("stream-worker", "Event buffer above 90% capacity"))
//
//	system := monitor.AggregateHealth("vmeflow")
//	if system.IsUnhealthy() {
//	    log.Printf("system unhealthy: %s", system.Message)
//	}
//
// Aggregation is worst-first: any unhealthy component makes the system
// unhealthy, any degraded component (with none unhealthy) makes it degraded.
//
// Error messages passed through FromComponentHealth are sanitized to remove
// URLs, file paths, IP addresses, ports, and credential-looking fragments
// before they are exposed on health endpoints.
//
// The package does not return errors because it represents the result of
// error handling, not a step in error propagation.
package health
