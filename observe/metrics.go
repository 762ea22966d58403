package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricFetchTotal          = "query.fetch.total"
	MetricFetchErrors         = "query.fetch.errors"
	MetricFetchDuration       = "query.fetch.duration_ms"
	MetricWriteDiscarded      = "query.write.discarded"
	MetricInvalidationTargets = "query.invalidation.affected"
	MetricMutationTotal       = "query.mutation.total"
	MetricMutationErrors      = "query.mutation.errors"
)

// Metrics records query lifecycle metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch records one finished fetch with its duration and error.
	RecordFetch(ctx context.Context, meta QueryMeta, duration time.Duration, err error)

	// RecordDiscarded records a fetch result dropped because it was superseded.
	RecordDiscarded(ctx context.Context, meta QueryMeta)

	// RecordInvalidation records an invalidation and how many entries it hit.
	RecordInvalidation(ctx context.Context, meta QueryMeta, affected int)

	// RecordMutation records one finished mutation.
	RecordMutation(ctx context.Context, meta QueryMeta, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	fetchTotal     metric.Int64Counter
	fetchErrors    metric.Int64Counter
	fetchDuration  metric.Float64Histogram
	discarded      metric.Int64Counter
	invalidated    metric.Int64Histogram
	mutationTotal  metric.Int64Counter
	mutationErrors metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter's instruments.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.fetchTotal, err = meter.Int64Counter(MetricFetchTotal,
		metric.WithDescription("Total number of query fetches"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}

	if m.fetchErrors, err = meter.Int64Counter(MetricFetchErrors,
		metric.WithDescription("Total number of failed query fetches"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.fetchDuration, err = meter.Float64Histogram(MetricFetchDuration,
		metric.WithDescription("Query fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.discarded, err = meter.Int64Counter(MetricWriteDiscarded,
		metric.WithDescription("Fetch results discarded because a newer fetch superseded them"),
		metric.WithUnit("{write}"),
	); err != nil {
		return nil, err
	}

	if m.invalidated, err = meter.Int64Histogram(MetricInvalidationTargets,
		metric.WithDescription("Entries marked stale per invalidation"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}

	if m.mutationTotal, err = meter.Int64Counter(MetricMutationTotal,
		metric.WithDescription("Total number of mutations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.mutationErrors, err = meter.Int64Counter(MetricMutationErrors,
		metric.WithDescription("Total number of failed mutations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func attrsFor(meta QueryMeta) metric.MeasurementOption {
	attrs := []attribute.KeyValue{
		attribute.String("query.scope", meta.Scope()),
		attribute.Int("query.depth", meta.Key.Len()),
	}
	if meta.Name != "" {
		attrs = append(attrs, attribute.String("query.name", meta.Name))
	}
	return metric.WithAttributes(attrs...)
}

func (m *metricsImpl) RecordFetch(ctx context.Context, meta QueryMeta, duration time.Duration, err error) {
	opt := attrsFor(meta)
	m.fetchTotal.Add(ctx, 1, opt)
	if err != nil {
		m.fetchErrors.Add(ctx, 1, opt)
	}
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordDiscarded(ctx context.Context, meta QueryMeta) {
	m.discarded.Add(ctx, 1, attrsFor(meta))
}

func (m *metricsImpl) RecordInvalidation(ctx context.Context, meta QueryMeta, affected int) {
	m.invalidated.Record(ctx, int64(affected), attrsFor(meta))
}

func (m *metricsImpl) RecordMutation(ctx context.Context, meta QueryMeta, err error) {
	opt := attrsFor(meta)
	m.mutationTotal.Add(ctx, 1, opt)
	if err != nil {
		m.mutationErrors.Add(ctx, 1, opt)
	}
}

// nopMetrics is a metrics implementation that does nothing.
type nopMetrics struct{}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

func (nopMetrics) RecordFetch(context.Context, QueryMeta, time.Duration, error) {}
func (nopMetrics) RecordDiscarded(context.Context, QueryMeta)                   {}
func (nopMetrics) RecordInvalidation(context.Context, QueryMeta, int)           {}
func (nopMetrics) RecordMutation(context.Context, QueryMeta, error)             {}
