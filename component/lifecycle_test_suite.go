package component

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/errors"
)

// LifecycleFactory builds a fresh component for one suite case.
type LifecycleFactory func() LifecycleComponent

// StandardLifecycleTests verifies the LifecycleComponent contract
// against a concrete implementation. The feed and stream worker test
// packages both run it, which keeps their state machines in lockstep.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("FullCycle", func(t *testing.T) {
		comp := factory()
		require.NotNil(t, comp)

		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(t.Context()))
		require.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("StartIsIdempotent", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(t.Context()))
		defer func() { _ = comp.Stop(5 * time.Second) }()

		assert.NoError(t, comp.Start(t.Context()), "second Start must be a no-op")
	})

	t.Run("StopWithoutStart", func(t *testing.T) {
		comp := factory()
		assert.NoError(t, comp.Stop(time.Second), "Stop before Start must be a no-op")
	})

	t.Run("StopTwice", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(t.Context()))

		assert.NoError(t, comp.Stop(5*time.Second))
		assert.NoError(t, comp.Stop(5*time.Second), "second Stop must be a no-op")
	})

	t.Run("StartWithoutInitialize", func(t *testing.T) {
		comp := factory()

		err := comp.Start(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotStarted)
	})

	t.Run("RestartNeedsInitialize", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(t.Context()))
		require.NoError(t, comp.Stop(5*time.Second))

		err := comp.Start(t.Context())
		require.Error(t, err, "a stopped component must not restart without Initialize")
		assert.ErrorIs(t, err, errors.ErrNotStarted)

		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(t.Context()))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := comp.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoError(t, comp.Stop(time.Second))
	})

	t.Run("ExpiredContext", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		time.Sleep(5 * time.Millisecond)

		err := comp.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NoError(t, comp.Stop(time.Second))
	})

	t.Run("ConcurrentStartStop", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())

		var wg sync.WaitGroup
		var starts, stops atomic.Int32

		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if comp.Start(t.Context()) == nil {
					starts.Add(1)
				}
			}()
		}
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(10 * time.Millisecond)
				if comp.Stop(5*time.Second) == nil {
					stops.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.GreaterOrEqual(t, starts.Load(), int32(1), "at least one Start must win")
		assert.GreaterOrEqual(t, stops.Load(), int32(1), "at least one Stop must win")
		_ = comp.Stop(5 * time.Second)
	})

	t.Run("ConcurrentInitialize", func(t *testing.T) {
		comp := factory()

		var wg sync.WaitGroup
		var ok atomic.Int32
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if comp.Initialize() == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.GreaterOrEqual(t, ok.Load(), int32(1), "at least one Initialize must win")
		assert.NoError(t, comp.Stop(time.Second))
	})
}
