package telemetry

import (
	"context"
	"time"
)

type (
	// NoopLogger discards every log line.
	NoopLogger struct{}
	// NoopMetrics discards every metric.
	NoopMetrics struct{}
	// NoopTracer never records spans.
	NoopTracer struct{}

	noopSpan struct{}
)

var (
	_ Logger  = NoopLogger{}
	_ Metrics = NoopMetrics{}
	_ Tracer  = NoopTracer{}
	_ Span    = noopSpan{}
)

// NewNoopLogger returns a Logger that discards all output.
func NewNoopLogger() Logger { return NoopLogger{} }

// NewNoopMetrics returns a Metrics that discards all recordings.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

// NewNoopTracer returns a Tracer that never records spans.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)       {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}
func (NoopMetrics) RecordGauge(string, float64, ...string)       {}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (NoopTracer) Span(context.Context) Span { return noopSpan{} }

func (noopSpan) AddEvent(string, ...string)       {}
func (noopSpan) SetStatus(StatusCode, string)     {}
func (noopSpan) RecordError(error)                {}
func (noopSpan) End()                             {}
