package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(l Listener, opts ...Option) *Coordinator {
	opts = append([]Option{WithSignalEcho(io.Discard), WithShutdownTimeout(2 * time.Second)}, opts...)
	return New(l, opts...)
}

// ============================================================================
// Start / Shutdown
// ============================================================================

func TestCoordinatorStartAndShutdown(t *testing.T) {
	l := &fakeListener{bindReal: true}
	m := newRecordingMetrics()
	c := newTestCoordinator(l, WithMetrics(m))

	assert.Equal(t, PhaseIdle, c.Phase())
	require.NoError(t, c.Start(context.Background(), ephemeral()))

	assert.Equal(t, PhaseRunning, c.Phase())
	assert.Equal(t, 2, c.SubscriptionCount())
	assert.False(t, c.ShutdownRequested())
	require.NotNil(t, c.Addr())
	assert.Equal(t, "tcp", l.network)
	assert.Equal(t, "127.0.0.1:0", l.address)
	assert.False(t, c.Running().Resolved())

	require.NoError(t, c.Shutdown())

	assert.True(t, c.ShutdownRequested())
	assert.Equal(t, PhaseShutDown, c.Phase())
	assert.Zero(t, c.SubscriptionCount())
	assert.Nil(t, c.Addr())
	assert.True(t, c.Running().Resolved())
	assert.Equal(t, CauseShutdown, c.Running().Cause())

	_, stops := l.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, []string{"idle", "starting", "running", "shutting_down", "shut_down"}, m.snapshotPhases())
	require.NoError(t, c.Release())
}

func TestCoordinatorShutdownIsIdempotent(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Shutdown())
	require.NoError(t, <-c.ShutdownAsync(context.Background()))

	_, stops := l.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, PhaseShutDown, c.Phase())
}

func TestCoordinatorConcurrentShutdown(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- c.Shutdown()
		}()
		go func() {
			defer wg.Done()
			errs <- <-c.ShutdownAsync(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	_, stops := l.counts()
	assert.Equal(t, 1, stops)
	assert.Zero(t, c.SubscriptionCount())
	assert.Equal(t, PhaseShutDown, c.Phase())
}

func TestCoordinatorShutdownBeforeStart(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)

	require.NoError(t, c.Shutdown())
	assert.True(t, c.ShutdownRequested())

	_, stops := l.counts()
	assert.Zero(t, stops)

	err := c.Start(context.Background(), BindOptions{})
	assert.ErrorIs(t, err, ErrLifecycleMisuse)
	require.NoError(t, c.Release())
}

func TestCoordinatorShutdownBestEffort(t *testing.T) {
	stopErr := errors.New("drain timeout")
	l := &fakeListener{stopErr: stopErr}
	m := newRecordingMetrics()
	c := newTestCoordinator(l, WithMetrics(m))
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	err := c.Shutdown()
	require.ErrorIs(t, err, stopErr)

	assert.Zero(t, c.SubscriptionCount())
	assert.Equal(t, PhaseShutDown, c.Phase())
	assert.True(t, c.Running().Resolved())
	require.Len(t, m.shutdowns, 1)
	assert.ErrorIs(t, m.shutdowns[0], stopErr)
}

// ============================================================================
// Start failures
// ============================================================================

func TestCoordinatorStartTwice(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)
	require.NoError(t, c.Start(context.Background(), BindOptions{}))
	defer c.Shutdown()

	err := c.Start(context.Background(), BindOptions{})
	require.ErrorIs(t, err, ErrLifecycleMisuse)
	require.ErrorIs(t, err, ErrAlreadyStarted)

	starts, _ := l.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 2, c.SubscriptionCount())
}

func TestCoordinatorConflictingBindOptions(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)

	sock, bind := "/tmp/mini.sock", "localhost:9000"
	err := c.Start(context.Background(), BindOptions{UnixSocket: &sock, Bind: &bind})
	require.ErrorIs(t, err, ErrConflictingBindOptions)

	starts, _ := l.counts()
	assert.Zero(t, starts)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Zero(t, c.SubscriptionCount())
	require.NoError(t, c.Release())
}

func TestCoordinatorPortOutOfRange(t *testing.T) {
	l := &fakeListener{}
	c := newTestCoordinator(l)

	port := 70000
	err := c.Start(context.Background(), BindOptions{Port: &port})
	require.ErrorIs(t, err, ErrPortOutOfRange)

	starts, _ := l.counts()
	assert.Zero(t, starts, "listener must not bind a port that was not asked for")
	assert.Equal(t, PhaseIdle, c.Phase())
	require.NoError(t, c.Release())
}

func TestCoordinatorListenerBindFailure(t *testing.T) {
	cause := syscall.EADDRINUSE
	l := &fakeListener{startErr: cause}
	c := newTestCoordinator(l)

	port := 8443
	err := c.Start(context.Background(), BindOptions{Port: &port})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenerBind)
	assert.ErrorIs(t, err, syscall.EADDRINUSE)

	var bindErr *ListenerBindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "tcp", bindErr.Network)
	assert.Equal(t, "127.0.0.1:8443", bindErr.Address)
	assert.Contains(t, err.Error(), "127.0.0.1:8443")

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Zero(t, c.SubscriptionCount())
	assert.Nil(t, c.Running())

	// Shutdown after a failed start is safe.
	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Release())
}

func TestCoordinatorRealPortInUse(t *testing.T) {
	first := &fakeListener{bindReal: true}
	c1 := newTestCoordinator(first)
	require.NoError(t, c1.Start(context.Background(), ephemeral()))
	defer c1.Shutdown()

	bind := c1.Addr().String()
	c2 := newTestCoordinator(&fakeListener{bindReal: true})
	err := c2.Start(context.Background(), BindOptions{Bind: &bind})
	assert.ErrorIs(t, err, ErrListenerBind)
}

// ============================================================================
// Running handle / stop
// ============================================================================

func TestCoordinatorPhaseMetricFollowsTransitions(t *testing.T) {
	for i := 0; i < 50; i++ {
		l := &fakeListener{}
		m := newRecordingMetrics()
		c := newTestCoordinator(l, WithMetrics(m))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Start(context.Background(), ephemeral())
		}()
		go func() {
			defer wg.Done()
			_ = c.Shutdown()
		}()
		wg.Wait()

		require.Equal(t, PhaseShutDown, c.Phase())
		phases := m.snapshotPhases()
		require.NotEmpty(t, phases)
		assert.Equal(t, "shut_down", phases[len(phases)-1], "iteration %d: %v", i, phases)
		require.NoError(t, c.Release())
	}
}

func TestCoordinatorRequestStop(t *testing.T) {
	c := newTestCoordinator(&fakeListener{})

	assert.False(t, c.RequestStop())
	assert.ErrorIs(t, c.AwaitCompletion(context.Background()), ErrNotStarted)
	assert.Nil(t, c.Done())

	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	returned := make(chan error, 1)
	go func() { returned <- c.AwaitCompletion(context.Background()) }()

	assert.True(t, c.RequestStop())
	assert.False(t, c.RequestStop())

	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitCompletion did not return after RequestStop")
	}

	<-c.Done()
	assert.Equal(t, CauseStopRequested, c.Running().Cause())

	// Resolution alone does not tear anything down.
	assert.Equal(t, PhaseRunning, c.Phase())
	assert.Equal(t, 2, c.SubscriptionCount())
	require.NoError(t, c.Shutdown())
}

func TestCoordinatorAwaitCompletionContext(t *testing.T) {
	c := newTestCoordinator(&fakeListener{})
	require.NoError(t, c.Start(context.Background(), BindOptions{}))
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AwaitCompletion(ctx), context.DeadlineExceeded)
}

func TestCoordinatorShutdownReleasesWaiters(t *testing.T) {
	c := newTestCoordinator(&fakeListener{})
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	returned := make(chan struct{})
	go func() {
		_ = c.AwaitCompletion(context.Background())
		close(returned)
	}()

	require.NoError(t, <-c.ShutdownAsync(context.Background()))

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("waiter not released by shutdown")
	}
}

// ============================================================================
// Release
// ============================================================================

func TestCoordinatorRelease(t *testing.T) {
	t.Run("IdleIsReleasable", func(t *testing.T) {
		c := newTestCoordinator(&fakeListener{})
		assert.NoError(t, c.Release())
	})

	t.Run("RunningIsMisuse", func(t *testing.T) {
		c := newTestCoordinator(&fakeListener{})
		require.NoError(t, c.Start(context.Background(), BindOptions{}))

		err := c.Release()
		require.ErrorIs(t, err, ErrLifecycleMisuse)
		require.ErrorIs(t, err, ErrNotShutDown)

		require.NoError(t, c.Shutdown())
		assert.NoError(t, c.Release())
	})
}

// startAndDrop starts a coordinator and lets it become unreachable without
// shutting it down.
func startAndDrop(t *testing.T, reported chan<- error) {
	c := New(&fakeListener{},
		WithSignalEcho(io.Discard),
		WithMisuseHandler(func(err error) { reported <- err }),
	)
	require.NoError(t, c.Start(context.Background(), BindOptions{}))
}

func TestCoordinatorLeakIsReported(t *testing.T) {
	reported := make(chan error, 1)
	startAndDrop(t, reported)

	var err error
	require.Eventually(t, func() bool {
		runtime.GC()
		select {
		case err = <-reported:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, err, ErrNotShutDown)
}

// ============================================================================
// Signals
// ============================================================================

func TestCoordinatorSignalResolvesRunning(t *testing.T) {
	echo := &syncBuffer{}
	m := newRecordingMetrics()
	l := &fakeListener{bindReal: true}
	c := New(l, WithSignalEcho(echo), WithMetrics(m))

	require.NoError(t, c.Start(context.Background(), ephemeral()))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.AwaitCompletion(ctx))

	assert.Equal(t, "signal: interrupt", c.Running().Cause())
	require.Eventually(t, func() bool { return m.signalCount("interrupt") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "\n", echo.String())

	require.NoError(t, c.Shutdown())
	assert.Zero(t, c.SubscriptionCount())
	assert.Nil(t, c.Addr())
	_, stops := l.counts()
	assert.Equal(t, 1, stops)
}

func TestCoordinatorConcurrentSignals(t *testing.T) {
	echo := &syncBuffer{}
	m := newRecordingMetrics()
	c := New(&fakeListener{}, WithSignalEcho(echo), WithMetrics(m))
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	var wg sync.WaitGroup
	for _, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		wg.Add(1)
		go func(s syscall.Signal) {
			defer wg.Done()
			_ = syscall.Kill(os.Getpid(), s)
		}(sig)
	}
	wg.Wait()

	// Both deliveries must be observed before the handlers are removed,
	// otherwise a late SIGTERM would hit the default disposition.
	require.Eventually(t, func() bool {
		return m.signalCount("interrupt") >= 1 && m.signalCount("terminated") >= 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.AwaitCompletion(context.Background()))
	assert.Equal(t, 1, m.resolvedCount())
	assert.Equal(t, "\n", echo.String())

	require.NoError(t, c.Shutdown())
	assert.Zero(t, c.SubscriptionCount())
}

func TestCoordinatorSignalRacesShutdown(t *testing.T) {
	m := newRecordingMetrics()
	c := New(&fakeListener{}, WithSignalEcho(io.Discard), WithMetrics(m))
	require.NoError(t, c.Start(context.Background(), BindOptions{}))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	require.Eventually(t, func() bool { return m.signalCount("terminated") == 1 }, 5*time.Second, 5*time.Millisecond)

	done := make(chan error, 2)
	go func() { done <- c.Shutdown() }()
	go func() { done <- <-c.ShutdownAsync(context.Background()) }()

	assert.NoError(t, <-done)
	assert.NoError(t, <-done)
	assert.Equal(t, 1, m.resolvedCount())
	assert.Equal(t, PhaseShutDown, c.Phase())
}
