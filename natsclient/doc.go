// Package natsclient manages the NATS connection that carries readout data
// into the analysis pipeline.
//
// The client wraps nats.Conn with a circuit breaker, automatic reconnection
// and background health monitoring. After repeated connection failures the
// circuit opens and connection attempts fail fast with ErrCircuitOpen until
// an exponentially growing backoff elapses. Subscriptions created through
// Subscribe or QueueSubscribe are tracked and drained on Close.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithClientName("vmeflow-feed"),
//		natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	sub, err := client.QueueSubscribe(ctx, "vmeflow.readout", "feed",
//		func(ctx context.Context, data []byte) {
//			// decode and enqueue the readout frame
//		})
//
// The feed component owns the only subscription in a normal deployment;
// QueueSubscribe lets multiple feed instances share one readout stream.
package natsclient
