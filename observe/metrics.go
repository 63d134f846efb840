package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricOpTotal      = "agentauth.op.total"
	MetricOpErrors     = "agentauth.op.errors"
	MetricOpDuration   = "agentauth.op.duration_ms"
	MetricCacheLookups = "agentauth.cache.lookups"
)

// Metrics records authorization operation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOp records one operation with its duration and error kind.
	// kind is empty on success.
	RecordOp(ctx context.Context, op Op, duration time.Duration, kind string)

	// RecordCacheLookup records a token cache hit or miss.
	RecordCacheLookup(ctx context.Context, audience string, hit bool)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	cacheLookups metric.Int64Counter
}

// NewMetrics creates the operation instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		MetricOpTotal,
		metric.WithDescription("Total number of authorization operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		MetricOpErrors,
		metric.WithDescription("Total number of failed authorization operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		MetricOpDuration,
		metric.WithDescription("Authorization operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		MetricCacheLookups,
		metric.WithDescription("Access token cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		cacheLookups: cacheLookups,
	}, nil
}

func (m *metricsImpl) RecordOp(ctx context.Context, op Op, duration time.Duration, kind string) {
	attrs := []attribute.KeyValue{
		attribute.String("op.id", op.ID()),
	}
	if op.Audience != "" {
		attrs = append(attrs, attribute.String("auth.audience", op.Audience))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if kind != "" {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.kind", kind))...))
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, audience string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.audience", audience),
		attribute.String("result", result),
	))
}

type noopMetrics struct{}

func (noopMetrics) RecordOp(context.Context, Op, time.Duration, string) {}
func (noopMetrics) RecordCacheLookup(context.Context, string, bool)    {}
