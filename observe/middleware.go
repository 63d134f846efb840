package observe

import (
	"context"
	"time"
)

// Classifier names the kind of an operation error for metrics and spans.
type Classifier func(error) string

// Middleware wraps authorization operations with tracing, metrics and
// logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
//   - A nil *Middleware runs the function without instrumentation.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify Classifier
}

// NewMiddleware creates a Middleware. A nil classify labels every error
// "error".
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, classify Classifier) *Middleware {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	if classify == nil {
		classify = func(error) string { return "error" }
	}
	return &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		classify: classify,
	}
}

// Run executes fn as op.
func (m *Middleware) Run(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}

	ctx, span := m.tracer.StartSpan(ctx, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	var kind string
	if err != nil {
		kind = m.classify(err)
	}

	m.tracer.EndSpan(span, kind, err)
	m.metrics.RecordOp(ctx, op, duration, kind)

	opLogger := m.logger.WithOp(op)
	fields := []Field{
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error.kind", Value: kind})
		opLogger.Warn(ctx, "operation failed", fields...)
	} else {
		opLogger.Debug(ctx, "operation completed", fields...)
	}

	return err
}

// CacheLookup records a token cache hit or miss.
func (m *Middleware) CacheLookup(ctx context.Context, audience string, hit bool) {
	if m == nil {
		return
	}
	m.metrics.RecordCacheLookup(ctx, audience, hit)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, classify Classifier) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), classify), nil
}
