// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies, always-on statistics, and optional
// Prometheus metrics.
//
// Buffers decouple producers from consumers in the readout pipeline: the
// NATS feed queues decoded events ahead of the analysis loop, and rate
// monitors keep their sample history in a small ring.
//
// # Usage
//
//	buf, err := buffer.NewCircularBuffer[stream.ReadoutEvent](5000,
//		buffer.WithOverflowPolicy[stream.ReadoutEvent](buffer.DropOldest),
//		buffer.WithMetrics[stream.ReadoutEvent](registry, "feed"),
//	)
//	if err != nil {
//		return err
//	}
//
//	if err := buf.Write(ev); err != nil {
//		return err
//	}
//	batch := buf.ReadBatch(64)
//
// Three overflow policies govern a Write against a full buffer: DropOldest
// (the default) evicts the oldest element, DropNewest rejects the write,
// and Block waits for a reader. Under Block, WriteContext bounds the wait
// by a context:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	err := buf.WriteContext(ctx, event)
//
// # Observability
//
// Statistics cost one atomic add per operation and are always collected:
//
//	summary := buf.Stats().Summary()
//	slog.Info("feed buffer", "drops", summary.Drops, "max_size", summary.MaxSize)
//
// Prometheus export is opt-in via WithMetrics and registers counters and
// gauges labeled with the owning component, so tests and debug endpoints
// never depend on a metrics registry being wired.
//
// Snapshot returns an ordered copy of the current contents without
// consuming them, which the rate monitors use to publish their history.
package buffer
