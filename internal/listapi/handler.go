// Package listapi serves list queries over HTTP. A request names an entity in the path and
// carries the list-query wire format in its query string; the handler restricts, compiles,
// renders and executes it against the current schema snapshot.
package listapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"listquery/internal/apiquery"
	"listquery/internal/dbexec"
	"listquery/internal/introspection"
	"listquery/internal/logging"
	"listquery/internal/middleware"
	"listquery/internal/observability"
	"listquery/internal/planner"
	"listquery/internal/queryspec"
	"listquery/internal/restrict"
	"listquery/internal/schemarefresh"
	"listquery/internal/sqlutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RoutePrefix is the path prefix list endpoints are mounted under.
	RoutePrefix = "/v1/"

	defaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("listquery/listapi")

// SnapshotSource provides the schema snapshot requests are compiled against.
type SnapshotSource interface {
	Current() *schemarefresh.Snapshot
}

// PolicyResolver picks the restriction policy for a caller role and entity. A nil policy
// allows every field and relation.
type PolicyResolver func(role, entity string) *restrict.Policy

// Config wires a Handler.
type Config struct {
	Snapshots SnapshotSource
	Executor  dbexec.QueryExecutor
	Dialect   sqlutil.Dialect
	Policies  PolicyResolver
	// DefaultLimit applies when a request sets no limit.
	DefaultLimit int
	// MaxLimit caps every request's limit when positive.
	MaxLimit int
	// Timeout bounds query execution.
	Timeout time.Duration
	Metrics *observability.QueryMetrics
}

// Handler serves the list and plan endpoints.
type Handler struct {
	snapshots    SnapshotSource
	executor     dbexec.QueryExecutor
	dialect      sqlutil.Dialect
	policies     PolicyResolver
	defaultLimit int
	maxLimit     int
	timeout      time.Duration
	metrics      *observability.QueryMetrics
}

// New validates cfg and returns a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Snapshots == nil {
		return nil, errors.New("listapi: snapshot source is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("listapi: query executor is required")
	}
	if cfg.Dialect != sqlutil.MySQL && cfg.Dialect != sqlutil.Postgres {
		return nil, fmt.Errorf("listapi: unsupported dialect %q", cfg.Dialect)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = queryspec.DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Handler{
		snapshots:    cfg.Snapshots,
		executor:     cfg.Executor,
		dialect:      cfg.Dialect,
		policies:     cfg.Policies,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		timeout:      cfg.Timeout,
		metrics:      cfg.Metrics,
	}, nil
}

// Register mounts the list and plan endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+RoutePrefix+"{entity}", h.serveList)
	mux.HandleFunc("GET "+RoutePrefix+"{entity}/plan", h.servePlan)
}

// request is the compiled state shared by both endpoints.
type request struct {
	entity string
	schema *introspection.Schema
	table  *introspection.Table
	opts   *apiquery.Options
	plan   *planner.QueryPlan
	query  planner.SQLQuery
}

// compile resolves the entity, loads the query string under the caller's policy and
// renders SQL. Errors carry the HTTP status they map to.
func (h *Handler) compile(r *http.Request) (*request, error) {
	ctx, span := tracer.Start(r.Context(), "listquery.compile")
	defer span.End()

	entity := r.PathValue("entity")
	snapshot := h.snapshots.Current()
	if snapshot == nil || snapshot.Schema == nil {
		return nil, &statusError{status: http.StatusServiceUnavailable, message: "schema is not loaded"}
	}
	table, ok := snapshot.Schema.Lookup(entity)
	if !ok {
		return nil, &statusError{status: http.StatusNotFound, message: fmt.Sprintf("unknown entity %q", entity)}
	}

	role, _ := middleware.RoleFromContext(ctx)
	var policy *restrict.Policy
	if h.policies != nil {
		policy = h.policies(role, entity)
	}
	span.SetAttributes(
		attribute.String("listquery.entity", entity),
		attribute.String("listquery.role", role),
		attribute.Bool("listquery.restricted", policy != nil),
	)

	opts, err := apiquery.FromQueryString(r.URL.RawQuery, policy, apiquery.WithDefaultLimit(h.defaultLimit))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if limit := opts.Spec().Limit; h.maxLimit > 0 && limit > h.maxLimit {
		if err := opts.SetLimit(h.maxLimit); err != nil {
			return nil, err
		}
	}

	plan, err := opts.ToQueryBuilder(table)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	query, err := planner.Render(plan, snapshot.Schema, planner.RenderOptions{
		Dialect:  h.dialect,
		MaxLimit: h.maxLimit,
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("listquery.clauses", len(plan.Where)))

	return &request{
		entity: entity,
		schema: snapshot.Schema,
		table:  table,
		opts:   opts,
		plan:   plan,
		query:  query,
	}, nil
}

// listResponse is the body of a successful list request. Next is the query string of the
// following page, or nil when the page came back short.
type listResponse struct {
	Data   []map[string]any `json:"data"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Next   *string          `json:"next"`
}

func (h *Handler) serveList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.metrics.IncrementActiveRequests(r.Context())
	defer h.metrics.DecrementActiveRequests(r.Context())

	reqLogger := logging.FromContext(r.Context())
	entity := r.PathValue("entity")

	req, err := h.compile(r)
	if err != nil {
		h.fail(w, r, entity, start, err)
		return
	}
	h.metrics.RecordClauses(r.Context(), entity, len(req.plan.Where))

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	rowsData, err := h.execute(ctx, req)
	if err != nil {
		h.fail(w, r, entity, start, err)
		return
	}

	spec := req.opts.Spec()
	resp := listResponse{
		Data:   rowsData,
		Limit:  spec.Limit,
		Offset: spec.Offset,
	}
	if len(rowsData) == spec.Limit {
		next, err := nextPage(req.opts, spec)
		if err != nil {
			h.fail(w, r, entity, start, err)
			return
		}
		resp.Next = &next
	}

	h.metrics.RecordRows(r.Context(), entity, len(rowsData))
	h.metrics.RecordRequest(r.Context(), time.Since(start), entity, observability.OutcomeOK)
	reqLogger.Debug("list request served",
		slog.String("entity", entity),
		slog.Int("rows", len(rowsData)),
		slog.Int("limit", spec.Limit),
		slog.Int("offset", spec.Offset),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) execute(ctx context.Context, req *request) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "listquery.execute", trace.WithAttributes(
		attribute.String("listquery.entity", req.entity),
	))
	defer span.End()

	rows, err := h.executor.QueryContext(ctx, req.query.SQL, req.query.Args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to query %s: %w", req.entity, err)
	}
	data, err := dbexec.ScanMapsWith(rows, columnDecoder(req.schema, req.table))
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to read %s rows: %w", req.entity, err)
	}
	span.SetAttributes(attribute.Int("listquery.rows", len(data)))
	return data, nil
}

// nextPage advances opts past spec's page and returns the encoded query string.
func nextPage(opts *apiquery.Options, spec queryspec.Spec) (string, error) {
	if err := opts.SetOffset(spec.Offset + spec.Limit); err != nil {
		return "", err
	}
	return opts.QueryString()
}

// planResponse describes both compiled forms and the rendered statement.
type planResponse struct {
	Entity string              `json:"entity"`
	Query  string              `json:"query"`
	Find   *planner.FindOptions `json:"find,omitempty"`
	// FindError explains why no declarative form exists, as for filter groups.
	FindError string             `json:"findError,omitempty"`
	Builder   *planner.QueryPlan `json:"builder"`
	SQL       string             `json:"sql"`
	Args      []any              `json:"args"`
}

func (h *Handler) servePlan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entity := r.PathValue("entity")

	req, err := h.compile(r)
	if err != nil {
		h.fail(w, r, entity, start, err)
		return
	}
	encoded, err := req.opts.QueryString()
	if err != nil {
		h.fail(w, r, entity, start, err)
		return
	}

	resp := planResponse{
		Entity:  entity,
		Query:   encoded,
		Builder: req.plan,
		SQL:     req.query.SQL,
		Args:    req.query.Args,
	}
	find, err := req.opts.ToFindOptions(req.table)
	switch {
	case err == nil:
		resp.Find = find
	case queryspec.IsValidationError(err):
		resp.FindError = err.Error()
	default:
		h.fail(w, r, entity, start, err)
		return
	}

	h.metrics.RecordRequest(r.Context(), time.Since(start), entity, observability.OutcomeOK)
	writeJSON(w, http.StatusOK, resp)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
