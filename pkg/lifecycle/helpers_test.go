package lifecycle

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"
)

// fakeListener records calls and optionally binds a real socket.
type fakeListener struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	bindReal bool

	starts  int
	stops   int
	network string
	address string
	ln      net.Listener
}

func (f *fakeListener) Start(_ context.Context, network, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.starts++
	f.network, f.address = network, address
	if f.startErr != nil {
		return f.startErr
	}
	if f.bindReal {
		ln, err := net.Listen(network, address)
		if err != nil {
			return err
		}
		f.ln = ln
	}
	return nil
}

func (f *fakeListener) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stops++
	if f.ln != nil {
		_ = f.ln.Close()
		f.ln = nil
	}
	return f.stopErr
}

func (f *fakeListener) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ln == nil {
		return nil
	}
	return f.ln.Addr()
}

func (f *fakeListener) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// syncBuffer is a bytes.Buffer safe for the signal goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recordingMetrics captures lifecycle observations.
type recordingMetrics struct {
	mu        sync.Mutex
	phases    []string
	signals   map[string]int
	resolved  int
	shutdowns []error
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{signals: make(map[string]int)}
}

func (m *recordingMetrics) SetPhase(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}

func (m *recordingMetrics) RecordSignal(signal string, resolved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[signal]++
	if resolved {
		m.resolved++
	}
}

func (m *recordingMetrics) ObserveShutdown(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns = append(m.shutdowns, err)
}

func (m *recordingMetrics) signalCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[name]
}

func (m *recordingMetrics) resolvedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved
}

func (m *recordingMetrics) snapshotPhases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.phases...)
}

func ephemeral() BindOptions {
	host, port := "127.0.0.1", 0
	return BindOptions{Hostname: &host, Port: &port}
}
