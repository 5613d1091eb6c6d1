package logger

import (
	"log/slog"
	"os"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so log aggregation can query them.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// HTTP
	// ========================================================================
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyRoute     = "route"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyBytes     = "bytes"
	KeyClientIP  = "client_ip"
	KeyUserAgent = "user_agent"

	// ========================================================================
	// Server Lifecycle
	// ========================================================================
	KeyNetwork = "network"
	KeyAddress = "address"
	KeyPhase   = "phase"
	KeySignal  = "signal"
	KeyPID     = "pid"

	// ========================================================================
	// Persistence
	// ========================================================================
	KeyDatabase  = "database"
	KeyVersion   = "version"
	KeyDirty     = "dirty"
	KeyRows      = "rows"
	KeyUserID    = "user_id"
	KeyUsername  = "username"
	KeyTokenID   = "token_id"
	KeyAgent     = "agent"
	KeyComponent = "component"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs  = "duration_ms"
	KeyError       = "error"
	KeyEnvironment = "environment"
)

// TraceID returns a trace id attribute
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// RequestID returns a request id attribute
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// Network returns a listener network attribute (tcp, unix)
func Network(n string) slog.Attr { return slog.String(KeyNetwork, n) }

// Address returns a listen address attribute
func Address(a string) slog.Attr { return slog.String(KeyAddress, a) }

// Phase returns a lifecycle phase attribute
func Phase(p string) slog.Attr { return slog.String(KeyPhase, p) }

// Signal returns an OS signal attribute
func Signal(sig os.Signal) slog.Attr {
	if sig == nil {
		return slog.String(KeySignal, "")
	}
	return slog.String(KeySignal, sig.String())
}

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func UserID(id string) slog.Attr { return slog.String(KeyUserID, id) }

// DurationMs returns a duration attribute in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Elapsed returns a duration attribute measured from start
func Elapsed(start time.Time) slog.Attr { return DurationMs(Duration(start)) }

// Err returns an error attribute. A nil error yields an empty attribute
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
