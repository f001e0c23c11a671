package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OtelTracer delegates span creation to the global OpenTelemetry
// TracerProvider, the same pattern the teacher's ClueTracer uses. Configure
// the provider (via otel.SetTracerProvider) before invoking nodes.
type OtelTracer struct {
	tracer trace.Tracer
}

var _ Tracer = (*OtelTracer)(nil)

// NewOtelTracer constructs a Tracer named scope, using the global
// TracerProvider.
func NewOtelTracer(scope string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(scope)}
}

func (t *OtelTracer) Start(ctx context.Context, op string) (context.Context, Span) {
	spanCtx, span := t.tracer.Start(ctx, op)
	return spanCtx, &otelSpan{span: span}
}

func (t *OtelTracer) Span(ctx context.Context) Span {
	return &otelSpan{span: trace.SpanFromContext(ctx)}
}

type otelSpan struct {
	span trace.Span
}

var _ Span = (*otelSpan)(nil)

func (s *otelSpan) AddEvent(name string, keyvals ...string) {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		attrs = append(attrs, attribute.String(keyvals[i], keyvals[i+1]))
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s *otelSpan) SetStatus(code StatusCode, description string) {
	switch code {
	case StatusOK:
		s.span.SetStatus(codes.Ok, description)
	case StatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
func (s *otelSpan) End()                  { s.span.End() }
