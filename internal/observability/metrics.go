package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request outcomes recorded on listquery.requests.total.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeRestricted  = "restricted"
	OutcomeNotFound    = "not_found"
	OutcomeServerError = "error"
)

// QueryMetrics holds the instruments for list-query requests.
type QueryMetrics struct {
	requestDuration       metric.Float64Histogram
	requestCounter        metric.Int64Counter
	activeRequests        metric.Int64UpDownCounter
	validationErrors      metric.Int64Counter
	restrictionViolations metric.Int64Counter
	rowsReturned          metric.Int64Histogram
	clauseCount           metric.Int64Histogram
}

// InitQueryMetrics creates the list-query instruments on the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter("listquery")

	requestDuration, err := meter.Float64Histogram(
		"listquery.request.duration",
		metric.WithDescription("Duration of list requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"listquery.requests.total",
		metric.WithDescription("Total number of list requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"listquery.requests.active",
		metric.WithDescription("Number of list requests in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	validationErrors, err := meter.Int64Counter(
		"listquery.validation_errors.total",
		metric.WithDescription("Total number of rejected query specifications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation error counter: %w", err)
	}

	restrictionViolations, err := meter.Int64Counter(
		"listquery.restriction_violations.total",
		metric.WithDescription("Total number of fields or relations denied by a strict policy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create restriction violation counter: %w", err)
	}

	rowsReturned, err := meter.Int64Histogram(
		"listquery.rows.returned",
		metric.WithDescription("Number of rows returned by list requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows returned histogram: %w", err)
	}

	clauseCount, err := meter.Int64Histogram(
		"listquery.plan.clauses",
		metric.WithDescription("Number of top-level where clauses in compiled plans"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create clause count histogram: %w", err)
	}

	return &QueryMetrics{
		requestDuration:       requestDuration,
		requestCounter:        requestCounter,
		activeRequests:        activeRequests,
		validationErrors:      validationErrors,
		restrictionViolations: restrictionViolations,
		rowsReturned:          rowsReturned,
		clauseCount:           clauseCount,
	}, nil
}

// RecordRequest records one list request with its duration and outcome.
func (m *QueryMetrics) RecordRequest(ctx context.Context, duration time.Duration, entity, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("outcome", outcome),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

// RecordValidationError counts a rejected specification.
func (m *QueryMetrics) RecordValidationError(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.validationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordRestrictionViolations counts denied fields, labelled by axis and code.
func (m *QueryMetrics) RecordRestrictionViolations(ctx context.Context, entity, axis, code string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.restrictionViolations.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("axis", axis),
		attribute.String("code", code),
	))
}

// RecordRows records the number of rows a list request returned.
func (m *QueryMetrics) RecordRows(ctx context.Context, entity string, rows int) {
	if m == nil {
		return
	}
	m.rowsReturned.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordClauses records the size of a compiled where clause list.
func (m *QueryMetrics) RecordClauses(ctx context.Context, entity string, clauses int) {
	if m == nil {
		return
	}
	m.clauseCount.Record(ctx, int64(clauses), metric.WithAttributes(attribute.String("entity", entity)))
}

// IncrementActiveRequests increments the active requests counter
func (m *QueryMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *QueryMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the query metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("list query metrics initialized")
	return metrics, nil
}
