package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SnapshotMetrics tracks schema snapshot rebuilds.
type SnapshotMetrics struct {
	rebuilds        metric.Int64Counter
	failures        metric.Int64Counter
	duration        metric.Float64Histogram
	tables          metric.Int64Gauge
	lastSuccessUnix atomic.Int64
}

// InitSnapshotMetrics creates the snapshot instruments on the global meter provider.
func InitSnapshotMetrics(logger *slog.Logger) (*SnapshotMetrics, error) {
	meter := otel.Meter("listquery")

	rebuilds, err := meter.Int64Counter(
		"listquery.schema.rebuilds.total",
		metric.WithDescription("Schema snapshot rebuild attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot rebuild counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"listquery.schema.rebuild_errors.total",
		metric.WithDescription("Failed schema snapshot rebuilds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot failure counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"listquery.schema.rebuild.duration",
		metric.WithDescription("Duration of schema snapshot rebuilds in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot duration histogram: %w", err)
	}

	tables, err := meter.Int64Gauge(
		"listquery.schema.tables",
		metric.WithDescription("Tables exposed by the current schema snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot table gauge: %w", err)
	}

	lastSuccess, err := meter.Int64ObservableGauge(
		"listquery.schema.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful snapshot rebuild"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot last success gauge: %w", err)
	}

	m := &SnapshotMetrics{
		rebuilds: rebuilds,
		failures: failures,
		duration: duration,
		tables:   tables,
	}

	_, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		if ts := m.lastSuccessUnix.Load(); ts > 0 {
			observer.ObserveInt64(lastSuccess, ts)
		}
		return nil
	}, lastSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to register snapshot gauge callback: %w", err)
	}

	logger.Info("schema snapshot metrics initialized")
	return m, nil
}

// RecordRebuild records one snapshot rebuild. tables is ignored on failure.
func (m *SnapshotMetrics) RecordRebuild(ctx context.Context, duration time.Duration, trigger string, tables int, err error) {
	if m == nil {
		return
	}
	success := err == nil
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	)
	m.rebuilds.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Milliseconds()), attrs)

	if !success {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}
	m.tables.Record(ctx, int64(tables))
	m.lastSuccessUnix.Store(time.Now().Unix())
}
