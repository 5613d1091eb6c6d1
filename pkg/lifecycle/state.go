package lifecycle

import (
	"sync"
)

// Phase is the coordinator's position in its lifecycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseShuttingDown
	PhaseShutDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// lifecycleState holds everything the coordinator mutates. It is only
// touched through a lockedBox.
type lifecycleState struct {
	// shutdownRequested flips false->true once and never resets.
	shutdownRequested bool
	phase             Phase

	running       *Running
	subscriptions []*Subscription

	// listener is non-nil only between a successful start and shutdown.
	listener Listener

	// shutdownDone closes when the first shutdown finishes teardown.
	shutdownDone chan struct{}
}

// lockedBox guards a value with a mutex. Callbacks run with the lock held
// and must not block.
type lockedBox[T any] struct {
	mu    sync.Mutex
	value T
}

func (b *lockedBox[T]) withLock(fn func(v *T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.value)
}

func withLockValue[T, R any](b *lockedBox[T], fn func(v *T) R) R {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(&b.value)
}
