package component

import (
	"context"
	"time"
)

// State tracks where a component is in its lifecycle. The zero value
// is StateCreated, so a freshly constructed component needs no
// explicit initialization of the field.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
)

var stateNames = [...]string{
	StateCreated:     "created",
	StateInitialized: "initialized",
	StateStarted:     "started",
	StateStopped:     "stopped",
}

func (cs State) String() string {
	if cs >= 0 && int(cs) < len(stateNames) {
		return stateNames[cs]
	}
	return "unknown"
}

// LifecycleComponent is implemented by the feed and the stream worker.
// The contract:
//
//   - Initialize validates dependencies and moves Created to
//     Initialized. It takes no context because it must not block.
//   - Start launches the run loop. The component derives its lifetime
//     from ctx but never stores it. Starting a running component is a
//     no-op; starting an uninitialized one fails with an error chain
//     containing errors.ErrNotStarted.
//   - Stop shuts the run loop down, waiting at most timeout. Stopping
//     a component that is not running is a no-op, so shutdown paths
//     need no state bookkeeping.
//
// A stopped component returns to Initialized via Initialize and can be
// started again.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
