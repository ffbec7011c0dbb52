package listapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"listquery/internal/logging"
	"listquery/internal/observability"
	"listquery/internal/queryspec"
	"listquery/internal/restrict"
)

// statusError is a request failure with a fixed HTTP status and client-facing message.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	// Code and Violations are set for restriction failures.
	Code       string               `json:"code,omitempty"`
	Violations []restrict.Violation `json:"violations,omitempty"`
}

// fail maps err onto a status code, records the outcome and writes the error body.
// Database and other internal errors are logged and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, entity string, start time.Time, err error) {
	reqLogger := logging.FromContext(r.Context())
	ctx := r.Context()

	var (
		statusErr      *statusError
		validationErr  *queryspec.ValidationError
		restrictionErr *restrict.RestrictionError
	)
	switch {
	case errors.As(err, &statusErr):
		outcome := observability.OutcomeServerError
		if statusErr.status == http.StatusNotFound {
			outcome = observability.OutcomeNotFound
			// Unknown entities share one label to bound metric cardinality.
			entity = "unknown"
		}
		h.metrics.RecordRequest(ctx, time.Since(start), entity, outcome)
		writeJSON(w, statusErr.status, errorResponse{Error: statusErr.message})

	case errors.As(err, &validationErr):
		h.metrics.RecordValidationError(ctx, entity)
		h.metrics.RecordRequest(ctx, time.Since(start), entity, observability.OutcomeInvalid)
		reqLogger.Debug("rejected list query",
			slog.String("entity", entity),
			slog.String("error", validationErr.Message),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: validationErr.Message,
			Field: validationErr.Field,
		})

	case errors.As(err, &restrictionErr):
		counts := make(map[[2]string]int)
		for _, v := range restrictionErr.Errors {
			counts[[2]string{string(v.Axis), v.Code}]++
		}
		for key, n := range counts {
			h.metrics.RecordRestrictionViolations(ctx, entity, key[0], key[1], n)
		}
		h.metrics.RecordRequest(ctx, time.Since(start), entity, observability.OutcomeRestricted)
		reqLogger.Info("list query denied by restriction policy",
			slog.String("entity", entity),
			slog.String("code", restrictionErr.Code),
			slog.Int("violations", len(restrictionErr.Errors)),
		)
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:      restrictionErr.Error(),
			Code:       restrictionErr.Code,
			Violations: restrictionErr.Errors,
		})

	default:
		h.metrics.RecordRequest(ctx, time.Since(start), entity, observability.OutcomeServerError)
		reqLogger.Error("list query failed",
			slog.String("entity", entity),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
