package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions.
const (
	// ========================================================================
	// HTTP
	// ========================================================================
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrClientAddress  = "client.address"
	AttrUserAgent      = "user_agent.original"

	// ========================================================================
	// Server lifecycle
	// ========================================================================
	AttrListenNetwork = "server.listen.network"
	AttrListenAddress = "server.listen.address"
	AttrSignal        = "process.signal"

	// ========================================================================
	// Persistence
	// ========================================================================
	AttrDBSystem    = "db.system"
	AttrDBOperation = "db.operation.name"
	AttrUserID      = "app.user.id"
)

func HTTPMethod(m string) attribute.KeyValue { return attribute.String(AttrHTTPMethod, m) }

func HTTPRoute(r string) attribute.KeyValue { return attribute.String(AttrHTTPRoute, r) }

func HTTPStatusCode(code int) attribute.KeyValue { return attribute.Int(AttrHTTPStatusCode, code) }

func ClientAddress(addr string) attribute.KeyValue { return attribute.String(AttrClientAddress, addr) }

func UserAgent(ua string) attribute.KeyValue { return attribute.String(AttrUserAgent, ua) }

func ListenNetwork(n string) attribute.KeyValue { return attribute.String(AttrListenNetwork, n) }

func ListenAddress(a string) attribute.KeyValue { return attribute.String(AttrListenAddress, a) }

func Signal(name string) attribute.KeyValue { return attribute.String(AttrSignal, name) }

func DBSystem(s string) attribute.KeyValue { return attribute.String(AttrDBSystem, s) }

func UserID(id string) attribute.KeyValue { return attribute.String(AttrUserID, id) }

// StartHTTPSpan starts a server span for an inbound request.
func StartHTTPSpan(ctx context.Context, method, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	name := method
	if route != "" {
		name = method + " " + route
	}
	all := append([]attribute.KeyValue{HTTPMethod(method), HTTPRoute(route)}, attrs...)
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(all...),
	)
}

// StartLifecycleSpan starts an internal span for a server lifecycle step
// such as "lifecycle.start" or "lifecycle.shutdown".
func StartLifecycleSpan(ctx context.Context, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "lifecycle."+step,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartStoreSpan starts a client span for a database operation.
func StartStoreSpan(ctx context.Context, system, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{DBSystem(system), attribute.String(AttrDBOperation, operation)}, attrs...)
	return StartSpan(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(all...),
	)
}
