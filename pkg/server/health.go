package server

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/miniserver/pkg/lifecycle"
)

// HealthCheckTimeout bounds the database ping of the readiness probe.
const HealthCheckTimeout = 5 * time.Second

// PhaseReporter exposes the lifecycle phase of the running server.
type PhaseReporter interface {
	Phase() lifecycle.Phase
}

// Pinger is the part of the store used by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	service   string
	lifecycle PhaseReporter
	db        Pinger
	startTime time.Time
}

// Liveness handles GET /health.
func (h *healthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	data := map[string]any{
		"service":    h.service,
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}
	if h.lifecycle != nil {
		data["phase"] = h.lifecycle.Phase().String()
	}
	writeJSON(w, http.StatusOK, healthyResponse(data))
}

// Readiness handles GET /health/ready. It reports 503 while the server is
// not in the running phase or the database does not answer.
func (h *healthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.lifecycle != nil {
		if phase := h.lifecycle.Phase(); phase != lifecycle.PhaseRunning {
			writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server is "+phase.String()))
			return
		}
	}
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("database not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("database: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"database": map[string]any{
			"status":  "healthy",
			"latency": time.Since(start).String(),
		},
	}))
}
