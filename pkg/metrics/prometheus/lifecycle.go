package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/miniserver/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lifecyclePhases = []string{"idle", "starting", "running", "shutting_down", "shut_down"}

// LifecycleMetrics records server lifecycle transitions. A nil
// *LifecycleMetrics is valid and records nothing.
type LifecycleMetrics struct {
	phase          *prometheus.GaugeVec
	signals        *prometheus.CounterVec
	shutdown       prometheus.Histogram
	shutdownErrors prometheus.Counter
}

// NewLifecycleMetrics creates lifecycle metrics on the active registry.
//
// Returns nil if metrics are not enabled.
func NewLifecycleMetrics() *LifecycleMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &LifecycleMetrics{
		phase: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "lifecycle_phase",
				Help:      "Current server lifecycle phase (1 for the active phase)",
			},
			[]string{"phase"},
		),
		signals: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "signals_received_total",
				Help:      "Termination signals received, by signal and whether the delivery triggered shutdown",
			},
			[]string{"signal", "resolved"},
		),
		shutdown: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "shutdown_duration_seconds",
				Help:      "Time spent tearing down the listener and signal handlers",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
			},
		),
		shutdownErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "shutdown_errors_total",
				Help:      "Shutdowns that completed with at least one teardown error",
			},
		),
	}
}

// SetPhase marks phase as the active lifecycle phase.
func (m *LifecycleMetrics) SetPhase(phase string) {
	if m == nil {
		return
	}
	for _, p := range lifecyclePhases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// RecordSignal counts a delivered termination signal.
func (m *LifecycleMetrics) RecordSignal(signal string, resolved bool) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(signal, strconv.FormatBool(resolved)).Inc()
}

// ObserveShutdown records a completed shutdown.
func (m *LifecycleMetrics) ObserveShutdown(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.shutdown.Observe(d.Seconds())
	if err != nil {
		m.shutdownErrors.Inc()
	}
}
