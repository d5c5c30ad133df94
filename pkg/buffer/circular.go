package buffer

import (
	"context"
	"sync"

	"github.com/c360/vmeflow/errors"
)

// CircularBuffer is a thread-safe ring buffer with configurable
// overflow policies. The ring keeps the index of the oldest item and a
// count; the write position is derived from those.
type CircularBuffer[T any] struct {
	mu    sync.RWMutex
	ring  []T
	start int // index of the oldest item
	count int

	stats   *Statistics
	metrics *bufferMetrics
	cfg     *config[T]

	spaceFree *sync.Cond // Block policy writers wait here
	closed    bool
}

// NewCircularBuffer creates a ring buffer holding up to capacity items.
// A capacity below one is raised to one. The error is only non-nil when
// WithMetrics was requested and registration failed.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (*CircularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}
	cfg := newConfig(options...)

	var m *bufferMetrics
	if cfg.registry != nil {
		var err error
		if m, err = newBufferMetrics(cfg.registry, cfg.component); err != nil {
			return nil, errors.WrapTransient(err, "Buffer", "NewCircularBuffer", "metrics registration")
		}
	}

	b := &CircularBuffer[T]{
		ring:    make([]T, capacity),
		cfg:     cfg,
		stats:   NewStatistics(),
		metrics: m,
	}
	b.spaceFree = sync.NewCond(&b.mu)
	return b, nil
}

// Write adds an item to the buffer according to the overflow policy.
// Drop callbacks run after the lock is released.
func (b *CircularBuffer[T]) Write(item T) error {
	dropped, err := b.write(item)
	b.reportDrops(dropped)
	return err
}

func (b *CircularBuffer[T]) write(item T) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if b.count == len(b.ring) {
		switch b.cfg.policy {
		case DropNewest:
			b.noteDrop()
			return []T{item}, nil
		case Block:
			for b.count == len(b.ring) && !b.closed {
				b.spaceFree.Wait()
			}
			if b.closed {
				return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write",
					"buffer closed during blocking wait")
			}
		default: // DropOldest
			b.noteDrop()
			dropped := b.evictOldest()
			b.push(item)
			return []T{dropped}, nil
		}
	}

	b.push(item)
	return nil, nil
}

// WriteContext is Write with cancellation for the Block policy. The
// drop policies never wait, so it just forwards to Write.
func (b *CircularBuffer[T]) WriteContext(ctx context.Context, item T) error {
	if b.cfg.policy != Block {
		return b.Write(item)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "WriteContext", "buffer closed")
	}

	// A cond wait cannot watch a channel, so a helper goroutine turns
	// context expiry into a broadcast.
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			b.spaceFree.Broadcast()
		case <-watch:
		}
	}()

	for b.count == len(b.ring) && !b.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.spaceFree.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "WriteContext",
			"buffer closed during wait")
	}

	b.push(item)
	return nil
}

// push stores one item at the derived write position. Callers hold the
// lock and have ensured space.
func (b *CircularBuffer[T]) push(item T) {
	b.ring[(b.start+b.count)%len(b.ring)] = item
	b.count++

	b.stats.Write()
	b.stats.UpdateSize(int64(b.count))
	if b.metrics != nil {
		b.metrics.recordWrite(b.count, len(b.ring))
	}
}

// evictOldest removes and returns the oldest item. Callers hold the
// lock and have checked count.
func (b *CircularBuffer[T]) evictOldest() T {
	var zero T
	item := b.ring[b.start]
	b.ring[b.start] = zero
	b.start = (b.start + 1) % len(b.ring)
	b.count--
	return item
}

func (b *CircularBuffer[T]) noteDrop() {
	b.stats.Overflow()
	b.stats.Drop()
	if b.metrics != nil {
		b.metrics.recordOverflow()
		b.metrics.recordDrop()
	}
}

// reportDrops invokes the drop callback outside the buffer lock so the
// callback may safely touch the buffer again.
func (b *CircularBuffer[T]) reportDrops(items []T) {
	if b.cfg.onDrop == nil {
		return
	}
	for _, item := range items {
		b.cfg.onDrop(item)
	}
}

// Read retrieves and removes the oldest item.
func (b *CircularBuffer[T]) Read() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}

	item := b.evictOldest()
	b.stats.Read()
	b.stats.UpdateSize(int64(b.count))
	if b.metrics != nil {
		b.metrics.recordRead(b.count, len(b.ring))
	}

	b.spaceFree.Signal()
	return item, true
}

// ReadBatch retrieves and removes up to max items, oldest first. It
// returns nil when the buffer is empty.
func (b *CircularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(max, b.count)
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for range n {
		out = append(out, b.evictOldest())
		b.stats.Read()
	}

	b.stats.UpdateSize(int64(b.count))
	if b.metrics != nil {
		b.metrics.updateSize(b.count, len(b.ring))
	}

	b.spaceFree.Broadcast()
	return out
}

// Peek returns the oldest item without removing it.
func (b *CircularBuffer[T]) Peek() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	b.stats.Peek()
	return b.ring[b.start], true
}

// Snapshot returns a copy of the buffered items oldest first without
// consuming them. Rate monitors use it to publish their sample history.
func (b *CircularBuffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *CircularBuffer[T]) snapshotLocked() []T {
	out := make([]T, b.count)
	for i := range out {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the maximum number of items the buffer can hold.
func (b *CircularBuffer[T]) Capacity() int { return len(b.ring) }

// IsFull reports whether the buffer is at capacity.
func (b *CircularBuffer[T]) IsFull() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count == len(b.ring)
}

// IsEmpty reports whether the buffer contains no items.
func (b *CircularBuffer[T]) IsEmpty() bool { return b.Size() == 0 }

// Clear removes all items. Each removed item is reported to the drop
// callback after the lock is released.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()

	var dropped []T
	if b.cfg.onDrop != nil && b.count > 0 {
		dropped = b.snapshotLocked()
	}

	clear(b.ring)
	b.start = 0
	b.count = 0

	b.stats.UpdateSize(0)
	if b.metrics != nil {
		b.metrics.updateSize(0, len(b.ring))
	}

	b.spaceFree.Broadcast()
	b.mu.Unlock()

	b.reportDrops(dropped)
}

// Stats returns the live statistics tracker.
func (b *CircularBuffer[T]) Stats() *Statistics { return b.stats }

// Close marks the buffer closed and wakes all blocked writers. Items
// already buffered remain readable.
func (b *CircularBuffer[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.spaceFree.Broadcast()
	}
	return nil
}
