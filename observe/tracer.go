package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with operation-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation.
	StartSpan(ctx context.Context, op Op) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error with its kind.
	EndSpan(span trace.Span, kind string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("noop")
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with operation metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, op Op) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("op.id", op.ID()),
		attribute.String("op.name", op.Name),
		attribute.Bool("op.error", false),
	}
	if op.Component != "" {
		attrs = append(attrs, attribute.String("op.component", op.Component))
	}
	if op.Audience != "" {
		attrs = append(attrs, attribute.String("auth.audience", op.Audience))
	}

	return t.tracer.Start(ctx, op.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span. Failures carry only the error kind; messages may
// describe rejected credentials and stay out of exported spans.
func (t *tracerImpl) EndSpan(span trace.Span, kind string, err error) {
	if err != nil {
		span.SetStatus(codes.Error, kind)
		span.SetAttributes(
			attribute.Bool("op.error", true),
			attribute.String("error.kind", kind),
		)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
