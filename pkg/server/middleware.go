package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/internal/telemetry"
	"github.com/marmos91/miniserver/pkg/metrics/prometheus"
)

// requestLogger traces, measures and logs every request. The route pattern
// is only known once chi has routed the request, so span name, metric
// labels and the completion log are filled in afterwards.
func requestLogger(m *prometheus.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.Begin()

			ctx, span := telemetry.StartHTTPSpan(r.Context(), r.Method, "",
				telemetry.ClientAddress(r.RemoteAddr),
				telemetry.UserAgent(r.UserAgent()),
			)
			defer span.End()

			lc := logger.NewLogContext(clientIP(r.RemoteAddr))
			lc.RequestID = middleware.GetReqID(ctx)
			lc.Method = r.Method
			lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
			ctx = logger.WithContext(ctx, lc)

			logger.DebugCtx(ctx, "HTTP request started", logger.KeyPath, r.URL.Path)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if route != "" {
				span.SetName(r.Method + " " + route)
			}
			span.SetAttributes(telemetry.HTTPRoute(route), telemetry.HTTPStatusCode(status))
			done(r.Method, route, status)

			args := []any{
				logger.KeyRoute, route,
				logger.KeyPath, r.URL.Path,
				logger.KeyStatus, status,
				logger.KeyBytes, ww.BytesWritten(),
				logger.Elapsed(lc.StartTime),
			}
			// Probes and scrapes are logged at DEBUG to keep logs readable.
			if isQuietPath(r.URL.Path) {
				logger.DebugCtx(ctx, "HTTP request completed", args...)
			} else {
				logger.InfoCtx(ctx, "HTTP request completed", args...)
			}
		})
	}
}

func isQuietPath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// clientIP strips the port from a remote address. middleware.RealIP may
// already have replaced it with a bare IP.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
