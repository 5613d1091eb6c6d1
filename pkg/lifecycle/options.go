package lifecycle

import (
	"io"
	"os"
	"time"

	"github.com/marmos91/miniserver/internal/logger"
)

// Default settings for a new Coordinator.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8080
	DefaultShutdownTimeout = 30 * time.Second
)

// Metrics receives lifecycle observations. Implementations must be safe
// for concurrent use. SetPhase is called with the coordinator's state lock
// held and must not block or call back into the coordinator.
type Metrics interface {
	SetPhase(phase string)
	RecordSignal(signal string, resolved bool)
	ObserveShutdown(d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) SetPhase(string)                      {}
func (noopMetrics) RecordSignal(string, bool)            {}
func (noopMetrics) ObserveShutdown(time.Duration, error) {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSignals replaces the handled termination signals.
func WithSignals(sigs ...os.Signal) Option {
	return func(c *Coordinator) {
		c.signals = append([]os.Signal(nil), sigs...)
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for the listener to
// drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithSignalEcho sets where the post-signal newline is written. nil
// disables it.
func WithSignalEcho(w io.Writer) Option {
	return func(c *Coordinator) {
		c.echo = w
	}
}

// WithMisuseHandler sets the function called when a coordinator is
// garbage collected while still running.
func WithMisuseHandler(fn func(error)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.misuse = fn
		}
	}
}

// WithDefaultAddress sets the host and port used when bind options leave
// them unset.
func WithDefaultAddress(host string, port int) Option {
	return func(c *Coordinator) {
		if host != "" {
			c.defaultHost = host
		}
		if validPort(port) {
			c.defaultPort = port
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func logMisuse(err error) {
	logger.Error("Server lifecycle misuse", logger.Err(err))
}
