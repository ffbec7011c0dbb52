package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication outcomes and throttled requests.
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
	rateLimited           metric.Int64Counter
	adminAccess           metric.Int64Counter
}

// InitSecurityMetrics creates the security instruments on the global meter provider.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("listquery/security")
	m := &SecurityMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.authAttempts, "security.auth.attempts.total", "Authentication attempts by method and outcome"},
		{&m.authFailures, "security.auth.failures.total", "Rejected credentials by method and reason"},
		{&m.tokenValidationErrors, "security.token.validation_errors.total", "Bearer tokens that failed validation"},
		{&m.rateLimited, "security.rate_limited.total", "Requests rejected by the rate limiter"},
		{&m.adminAccess, "security.admin.access.total", "Calls to administrative endpoints"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordAuthAttempt records one authentication attempt and whether it succeeded.
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	))
}

// RecordAuthFailure records a rejected credential.
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, method, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("reason", reason),
	))
}

// RecordTokenValidationError records a token that failed parsing or verification.
func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.tokenValidationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}

// RecordRateLimited records a request rejected by the limiter.
func (m *SecurityMetrics) RecordRateLimited(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordAdminAccess records a call to an administrative endpoint.
func (m *SecurityMetrics) RecordAdminAccess(ctx context.Context, operation string, success bool) {
	if m == nil {
		return
	}
	m.adminAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}
