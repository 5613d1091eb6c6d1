package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/metrics"
	"github.com/marmos91/miniserver/pkg/metrics/prometheus"
	"github.com/marmos91/miniserver/pkg/store"
)

// RouterConfig carries the collaborators of the router. Nil collaborators
// disable the routes that need them.
type RouterConfig struct {
	// Service is reported by the liveness probe.
	Service string

	// Lifecycle reports the server phase to the health probes.
	Lifecycle PhaseReporter

	// Store backs the readiness probe and the test routes.
	Store store.Store

	// Tokens authenticates /api/v1 requests. /api/v1 is not mounted when nil.
	Tokens *auth.TokenService

	// Metrics records HTTP metrics. May be nil.
	Metrics *prometheus.HTTPMetrics

	// MetricsPath is the scrape route. Default: /metrics
	MetricsPath string

	// TestRoutes mounts the /test routes.
	TestRoutes bool

	// RequestTimeout bounds each request. Default: 30s
	RequestTimeout time.Duration
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus scrape endpoint (when metrics are enabled)
//   - GET /test/hello/{name} - Greeting (test routes only)
//   - GET /test/user - Seed and describe the test user (test routes only)
//   - GET /api/v1/me - Current user (bearer token)
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Service == "" {
		cfg.Service = "miniserver"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	health := &healthHandler{
		service:   cfg.Service,
		lifecycle: cfg.Lifecycle,
		startTime: time.Now(),
	}
	if cfg.Store != nil {
		health.db = cfg.Store
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	if metrics.IsEnabled() {
		r.Method(http.MethodGet, cfg.MetricsPath, metrics.Handler())
	}

	if cfg.TestRoutes {
		test := &testHandler{store: cfg.Store}
		r.Route("/test", func(r chi.Router) {
			r.Get("/hello/{name}", test.Hello)
			r.Get("/user", test.User)
		})
	}

	if cfg.Tokens != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(auth.BearerAuth(cfg.Tokens))
			r.Get("/me", Me)
		})
	}

	return r
}
