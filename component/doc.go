// Package component defines the lifecycle and discovery contracts shared by
// vmeflow's long-running pieces: the NATS readout feed, the analysis stream
// worker, and the monitor service.
//
// # Lifecycle Pattern
//
// Every managed component follows the same three-phase pattern:
//
//	comp := feed.NewFeed(cfg, deps)
//	if err := comp.Initialize(); err != nil { ... }  // allocate, validate, no I/O loops
//	if err := comp.Start(ctx); err != nil { ... }    // spin up goroutines bound to ctx
//	defer comp.Stop(5 * time.Second)                 // graceful shutdown with timeout
//
// Initialize performs setup only and takes no context. Start receives the run
// context as a parameter and must not store it beyond deriving its loop
// lifetime. Stop blocks until the component's goroutines drain or the timeout
// expires. Stop is idempotent; calling it on a never-started component is a
// no-op.
//
// cmd/vmeflow starts components in dependency order (service, worker, feed)
// and stops them in reverse.
//
// # Discovery
//
// Discoverable exposes identity (Meta), health (Health), and throughput
// (DataFlow) so the monitor service can aggregate a system view without
// knowing concrete component types. HealthStatus feeds through
// health.FromComponentHealth into the /healthz aggregate; FlowMetrics backs
// the component listing endpoint.
//
// # Testing
//
// StandardLifecycleTests runs the shared state-transition suite against any
// LifecycleComponent:
//
//	func TestWorkerLifecycle(t *testing.T) {
//	    component.StandardLifecycleTests(t, func() component.LifecycleComponent {
//	        return newTestWorker(t)
//	    })
//	}
package component
