// Package retry provides bounded exponential backoff for transport
// operations that are expected to fail transiently.
//
// # Overview
//
// Two places in the pipeline race external infrastructure: the CLI
// connects to NATS at startup (the broker may still be booting) and the
// readout feed re-establishes its subscription after a broker restart.
// Both wrap the fallible call in Do with a Config describing how long to
// keep trying.
//
// # Quick Start
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//		return client.Connect(ctx)
//	})
//
// Two tuned profiles cover the common cases:
//
//	// Startup races: ~10 attempts over a few seconds.
//	retry.Do(ctx, retry.Quick(), connect)
//
//	// Outliving a broker restart: ~30 attempts over minutes.
//	retry.Do(ctx, retry.Persistent(), subscribe)
//
// # Permanent Failures
//
// Some errors no amount of retrying fixes, such as a malformed NATS
// subject. Mark them with Permanent and Do returns immediately:
//
//	sub, err := conn.Subscribe(subject, handler)
//	if errors.Is(err, nats.ErrBadSubject) {
//		return retry.Permanent(err)
//	}
//
// # Cancellation
//
// Do honors the context between attempts and while sleeping, so a
// component shutting down never waits out a backoff schedule.
package retry
