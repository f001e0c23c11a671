// Package telemetry defines logging, metrics, and tracing facades, with
// concrete implementations (clue.go, otel.go, prom.go) and noop
// implementations (noop.go). No node or adapter in this module calls into
// them.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log lines. Implementations must be safe for
	// concurrent use. keyvals is an alternating key/value list, following the
	// convention used throughout the teacher repo this package is grounded on.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges. labels is an alternating
	// key/value list of label dimensions.
	Metrics interface {
		IncCounter(name string, value float64, labels ...string)
		RecordTimer(name string, d time.Duration, labels ...string)
		RecordGauge(name string, value float64, labels ...string)
	}

	// Tracer creates spans around node and capability execution.
	Tracer interface {
		// Start begins a new span named op, returning a context carrying it
		// and the span itself.
		Start(ctx context.Context, op string) (context.Context, Span)
		// Span returns the span currently active in ctx, or a noop span if
		// none is active.
		Span(ctx context.Context) Span
	}

	// Span is a single traced operation.
	Span interface {
		AddEvent(name string, keyvals ...string)
		SetStatus(code StatusCode, description string)
		RecordError(err error)
		End()
	}

	// StatusCode mirrors the subset of OpenTelemetry span status codes this
	// module cares about, without requiring non-otel implementations to
	// import the otel SDK.
	StatusCode int
)

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)
