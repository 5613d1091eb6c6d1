package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/internal/telemetry"
)

// Listener is the server the coordinator drives. Start must bind
// synchronously and return once the listener accepts connections; serving
// continues in the background until Stop.
type Listener interface {
	Start(ctx context.Context, network, address string) error
	Stop(ctx context.Context) error
	Addr() net.Addr
}

// Coordinator starts a Listener, turns termination signals into a single
// running-handle resolution, and shuts everything down exactly once.
//
// A started Coordinator must be shut down before it is dropped; Release
// checks this and a cleanup reports coordinators that are leaked.
type Coordinator struct {
	box    *lockedBox[lifecycleState]
	server Listener

	signals         []os.Signal
	shutdownTimeout time.Duration
	echo            io.Writer
	misuse          func(error)
	defaultHost     string
	defaultPort     int
	metrics         Metrics

	cleanup runtime.Cleanup
}

// New creates an idle coordinator for server.
func New(server Listener, opts ...Option) *Coordinator {
	c := &Coordinator{
		box:             &lockedBox[lifecycleState]{},
		server:          server,
		signals:         DefaultSignals,
		shutdownTimeout: DefaultShutdownTimeout,
		echo:            os.Stdout,
		misuse:          logMisuse,
		defaultHost:     DefaultHost,
		defaultPort:     DefaultPort,
		metrics:         noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cleanup = runtime.AddCleanup(c, reportLeak, leakCheck{box: c.box, misuse: c.misuse})
	c.metrics.SetPhase(PhaseIdle.String())
	return c
}

// Start resolves the bind target, starts the listener, creates the running
// handle and arms the signal subscriptions. It does not block.
//
// While started, the handled signals no longer terminate the process; they
// resolve the running handle instead until Shutdown restores them.
func (c *Coordinator) Start(ctx context.Context, opts BindOptions) error {
	err := withLockValue(c.box, func(s *lifecycleState) error {
		if s.phase != PhaseIdle || s.shutdownRequested {
			return ErrAlreadyStarted
		}
		c.setPhase(s, PhaseStarting)
		return nil
	})
	if err != nil {
		return err
	}

	target, err := ResolveBindTarget(opts)
	if err != nil {
		c.abortStart()
		return err
	}

	network, address := target.Resolve(c.defaultHost, c.defaultPort)

	ctx, span := telemetry.StartLifecycleSpan(ctx, "start",
		telemetry.ListenNetwork(network),
		telemetry.ListenAddress(address),
	)
	defer span.End()

	if err := c.server.Start(ctx, network, address); err != nil {
		c.abortStart()
		bindErr := &ListenerBindError{Network: network, Address: address, Err: err}
		telemetry.RecordError(ctx, bindErr)
		return bindErr
	}

	running := NewRunning()
	cancelled := withLockValue(c.box, func(s *lifecycleState) bool {
		if s.shutdownRequested {
			return true
		}
		s.listener = c.server
		s.running = running
		return false
	})
	if cancelled {
		c.stopOrphanedListener()
		return ErrShutdownDuringStartup
	}

	subs := make([]*Subscription, 0, len(c.signals))
	hook := signalHook(c.metrics)
	for _, sig := range c.signals {
		subs = append(subs, Subscribe(sig, running, c.echo, hook))
	}

	cancelled = withLockValue(c.box, func(s *lifecycleState) bool {
		if s.shutdownRequested {
			return true
		}
		s.subscriptions = subs
		c.setPhase(s, PhaseRunning)
		return false
	})
	if cancelled {
		for _, sub := range subs {
			sub.Cancel()
		}
		return ErrShutdownDuringStartup
	}

	logger.InfoCtx(ctx, "Server started",
		logger.KeyNetwork, network,
		logger.KeyAddress, listenerAddr(c.server, address),
	)
	return nil
}

// abortStart returns a coordinator whose start failed before acquiring
// anything to idle.
func (c *Coordinator) abortStart() {
	c.box.withLock(func(s *lifecycleState) {
		if s.phase == PhaseStarting {
			c.setPhase(s, PhaseIdle)
		}
	})
}

// setPhase records a transition. It runs with the state lock held so the
// published phase always follows the order of the transitions.
func (c *Coordinator) setPhase(s *lifecycleState, p Phase) {
	s.phase = p
	c.metrics.SetPhase(p.String())
}

// stopOrphanedListener stops a listener that finished starting after a
// concurrent Shutdown had already run its teardown.
func (c *Coordinator) stopOrphanedListener() {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()
	if err := c.server.Stop(ctx); err != nil {
		logger.Warn("Failed to stop listener started during shutdown", logger.Err(err))
	}
}

func signalHook(m Metrics) SignalHook {
	return func(sig os.Signal, resolved bool) {
		m.RecordSignal(sig.String(), resolved)
		if resolved {
			logger.Info("Received signal, shutting down", logger.Signal(sig))
		} else {
			logger.Debug("Ignoring repeated signal", logger.Signal(sig))
		}
	}
}

func listenerAddr(l Listener, fallback string) string {
	if addr := l.Addr(); addr != nil {
		return addr.String()
	}
	return fallback
}

// AwaitCompletion blocks until the running handle resolves, by signal or by
// RequestStop, or until ctx is done. There is no built-in deadline.
func (c *Coordinator) AwaitCompletion(ctx context.Context) error {
	running := c.runningHandle()
	if running == nil {
		return ErrNotStarted
	}
	return running.WaitContext(ctx)
}

// Done returns a channel closed when the running handle resolves. Before
// Start it returns nil, which blocks forever in a select.
func (c *Coordinator) Done() <-chan struct{} {
	if running := c.runningHandle(); running != nil {
		return running.Done()
	}
	return nil
}

// RequestStop resolves the running handle without a signal. It reports
// whether this call was the one that resolved it.
func (c *Coordinator) RequestStop() bool {
	running := c.runningHandle()
	if running == nil {
		return false
	}
	return running.ResolveWith(CauseStopRequested)
}

// Running returns the running handle, or nil before Start.
func (c *Coordinator) Running() *Running {
	return c.runningHandle()
}

func (c *Coordinator) runningHandle() *Running {
	return withLockValue(c.box, func(s *lifecycleState) *Running {
		return s.running
	})
}

// Shutdown stops the listener and cancels signal subscriptions, bounded by
// the shutdown timeout. Only the first call does any work; concurrent and
// later calls wait for it and return nil. Teardown is best-effort: every
// step runs and failures are joined into the returned error.
func (c *Coordinator) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()
	return c.shutdown(ctx)
}

// ShutdownAsync runs Shutdown on its own goroutine, bounded by ctx instead
// of the configured timeout. The channel receives the result and is closed.
func (c *Coordinator) ShutdownAsync(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		result <- c.shutdown(ctx)
	}()
	return result
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	var (
		first    bool
		done     chan struct{}
		listener Listener
		subs     []*Subscription
		running  *Running
	)

	c.box.withLock(func(s *lifecycleState) {
		if s.shutdownRequested {
			done = s.shutdownDone
			return
		}
		first = true
		s.shutdownRequested = true
		c.setPhase(s, PhaseShuttingDown)
		s.shutdownDone = make(chan struct{})
		done = s.shutdownDone

		listener, s.listener = s.listener, nil
		subs, s.subscriptions = s.subscriptions, nil
		running = s.running
	})

	if !first {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	start := time.Now()

	ctx, span := telemetry.StartLifecycleSpan(ctx, "shutdown")
	defer span.End()

	if running != nil {
		running.ResolveWith(CauseShutdown)
	}

	var errs []error
	if listener != nil {
		if err := listener.Stop(ctx); err != nil {
			logger.WarnCtx(ctx, "Listener shutdown error", logger.Err(err))
			errs = append(errs, fmt.Errorf("stop listener: %w", err))
		}
	}

	for _, sub := range subs {
		sub.Cancel()
	}

	c.box.withLock(func(s *lifecycleState) {
		c.setPhase(s, PhaseShutDown)
		close(s.shutdownDone)
	})

	err := errors.Join(errs...)
	telemetry.RecordError(ctx, err)
	c.metrics.ObserveShutdown(time.Since(start), err)

	logger.InfoCtx(ctx, "Server shutdown complete", logger.Elapsed(start))
	return err
}

// Release ends the coordinator's life. It fails with ErrNotShutDown when
// the coordinator was started and Shutdown has not been requested.
func (c *Coordinator) Release() error {
	if err := checkReleasable(c.box); err != nil {
		return err
	}
	c.cleanup.Stop()
	return nil
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	return withLockValue(c.box, func(s *lifecycleState) Phase { return s.phase })
}

// ShutdownRequested reports whether Shutdown has been called.
func (c *Coordinator) ShutdownRequested() bool {
	return withLockValue(c.box, func(s *lifecycleState) bool { return s.shutdownRequested })
}

// SubscriptionCount returns the number of armed signal subscriptions.
func (c *Coordinator) SubscriptionCount() int {
	return withLockValue(c.box, func(s *lifecycleState) int { return len(s.subscriptions) })
}

// Addr returns the bound listener address, or nil when not running.
func (c *Coordinator) Addr() net.Addr {
	l := withLockValue(c.box, func(s *lifecycleState) Listener { return s.listener })
	if l == nil {
		return nil
	}
	return l.Addr()
}

func checkReleasable(box *lockedBox[lifecycleState]) error {
	return withLockValue(box, func(s *lifecycleState) error {
		if s.phase != PhaseIdle && !s.shutdownRequested {
			return ErrNotShutDown
		}
		return nil
	})
}

// leakCheck must not reference the Coordinator, or the cleanup would keep
// it reachable.
type leakCheck struct {
	box    *lockedBox[lifecycleState]
	misuse func(error)
}

func reportLeak(l leakCheck) {
	err := checkReleasable(l.box)
	if err == nil {
		return
	}
	l.misuse(err)

	var subs []*Subscription
	l.box.withLock(func(s *lifecycleState) {
		subs, s.subscriptions = s.subscriptions, nil
	})
	for _, sub := range subs {
		sub.Cancel()
	}
}
