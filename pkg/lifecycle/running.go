package lifecycle

import (
	"context"
	"sync"
)

// Reasons recorded on a Running handle when it resolves.
const (
	CauseStopRequested = "stop requested"
	CauseShutdown      = "shutdown"
)

// Running is a single-fulfillment handle representing "the server is up".
// Resolving it releases every waiter; only the first resolution counts.
type Running struct {
	once  sync.Once
	done  chan struct{}
	cause string
}

// NewRunning returns an unresolved handle.
func NewRunning() *Running {
	return &Running{done: make(chan struct{})}
}

// Resolve marks the handle resolved. It reports true only for the call
// that actually resolved it.
func (r *Running) Resolve() bool {
	return r.ResolveWith(CauseStopRequested)
}

// ResolveWith is Resolve with a reason that Cause reports afterwards.
func (r *Running) ResolveWith(cause string) bool {
	resolved := false
	r.once.Do(func() {
		r.cause = cause
		close(r.done)
		resolved = true
	})
	return resolved
}

// Stop resolves the handle from the host process.
func (r *Running) Stop() {
	r.ResolveWith(CauseStopRequested)
}

// Wait blocks until the handle resolves.
func (r *Running) Wait() {
	<-r.done
}

// WaitContext blocks until the handle resolves or ctx is done.
func (r *Running) WaitContext(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed on resolution.
func (r *Running) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether the handle has been resolved.
func (r *Running) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Cause returns the reason given to the resolving call, or "" while
// unresolved.
func (r *Running) Cause() string {
	if !r.Resolved() {
		return ""
	}
	return r.cause
}
