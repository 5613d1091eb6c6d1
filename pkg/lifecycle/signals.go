package lifecycle

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// DefaultSignals are the termination signals the coordinator handles.
var DefaultSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// SignalHook observes a delivered signal. resolved is true when the
// delivery was the one that resolved the running handle.
type SignalHook func(sig os.Signal, resolved bool)

// Subscription forwards one OS signal to a shared Running handle. While
// armed, the signal's default disposition is suppressed.
type Subscription struct {
	sig    os.Signal
	ch     chan os.Signal
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// Subscribe arms a handler for sig on its own goroutine. The first delivery
// that resolves running writes a newline to echo (if non-nil) so the shell's
// ^C echo does not run into the next log line. Later deliveries are absorbed.
//
// hook must not call Cancel on this subscription.
func Subscribe(sig os.Signal, running *Running, echo io.Writer, hook SignalHook) *Subscription {
	s := &Subscription{
		sig:    sig,
		ch:     make(chan os.Signal, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	signal.Notify(s.ch, sig)
	go s.loop(running, echo, hook)

	return s
}

func (s *Subscription) loop(running *Running, echo io.Writer, hook SignalHook) {
	defer close(s.exited)

	for {
		select {
		case sig := <-s.ch:
			resolved := running.ResolveWith("signal: " + sig.String())
			if resolved && echo != nil {
				_, _ = fmt.Fprintln(echo)
			}
			if hook != nil {
				hook(sig, resolved)
			}
		case <-s.stop:
			return
		}
	}
}

// Signal returns the subscribed signal.
func (s *Subscription) Signal() os.Signal {
	return s.sig
}

// Cancel deregisters the handler and waits for its goroutine to exit.
// Safe to call more than once and from multiple goroutines.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		signal.Stop(s.ch)
		close(s.stop)
	})
	<-s.exited
}
