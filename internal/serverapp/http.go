package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"listquery/internal/config"
	"listquery/internal/dbexec"
	"listquery/internal/introspection"
	"listquery/internal/listapi"
	"listquery/internal/logging"
	"listquery/internal/middleware"
	"listquery/internal/observability"
	"listquery/internal/schemarefresh"
	"listquery/internal/sqlutil"
	"listquery/internal/tlscert"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	healthPath       = "/health"
	metricsPath      = "/metrics"
	schemaReloadPath = "/admin/schema/reload"

	schemaReloadTimeout = 30 * time.Second
)

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, dialect sqlutil.Dialect, metrics *observability.SnapshotMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	var queryer introspection.Queryer
	if db != nil {
		queryer = db
	}
	manager, err := schemarefresh.NewManager(schemarefresh.Config{
		Build: schemarefresh.BuildConfig{
			Source:       schemarefresh.Source(cfg.Schema.Source),
			Queryer:      queryer,
			Dialect:      dialect,
			DatabaseName: cfg.Database.IntrospectionSchema(),
			Concurrency:  cfg.Schema.Concurrency,
			File:         cfg.Schema.File,
			Filters:      cfg.Schema.Filters,
			Naming:       cfg.Schema.Naming,
			Logger:       logger.Logger,
		},
		MinInterval: cfg.Schema.RefreshMinInterval,
		MaxInterval: cfg.Schema.RefreshMaxInterval,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := manager.Reload(ctx, schemarefresh.TriggerStartup); err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)
	return manager, schemaCancel, nil
}

func buildListHandler(cfg *config.Config, snapshots listapi.SnapshotSource, executor dbexec.QueryExecutor, dialect sqlutil.Dialect, metrics *observability.QueryMetrics) (*listapi.Handler, error) {
	return listapi.New(listapi.Config{
		Snapshots:    snapshots,
		Executor:     executor,
		Dialect:      dialect,
		Policies:     cfg.Restrictions.PolicyFor,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		Timeout:      cfg.Query.Timeout,
		Metrics:      metrics,
	})
}

// buildAPIHandler mounts the list routes behind bearer authentication when it is enabled.
// OIDC and shared-secret JWT are mutually exclusive; validation rejects enabling both.
func buildAPIHandler(cfg *config.Config, logger *logging.Logger, listHandler *listapi.Handler, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	mux := http.NewServeMux()
	listHandler.Register(mux)
	var handler http.Handler = mux

	auth := cfg.Server.Auth
	switch {
	case auth.OIDCEnabled:
		authMiddleware, err := middleware.OIDCAuthMiddleware(middleware.OIDCAuthConfig{
			Enabled:   true,
			IssuerURL: auth.OIDCIssuerURL,
			Audience:  auth.OIDCAudience,
			ClockSkew: auth.OIDCClockSkew,
			CAFile:    auth.OIDCCAFile,
			RoleClaim: auth.RoleClaim,
		}, logger, securityMetrics)
		if err != nil {
			return nil, err
		}
		handler = authMiddleware(handler)
		logger.Info("OIDC auth enabled", slog.String("issuer", auth.OIDCIssuerURL))
	case auth.JWTEnabled:
		authMiddleware, err := middleware.JWTAuthMiddleware(middleware.JWTAuthConfig{
			Enabled:   true,
			Secret:    auth.JWTSecret,
			Issuer:    auth.JWTIssuer,
			Audience:  auth.JWTAudience,
			ClockSkew: auth.JWTClockSkew,
			RoleClaim: auth.RoleClaim,
		}, logger, securityMetrics)
		if err != nil {
			return nil, err
		}
		handler = authMiddleware(handler)
		logger.Info("JWT auth enabled")
	default:
		logger.Warn("list endpoints are not authenticated; restriction policies fall back to defaults")
	}
	return handler, nil
}

// schemaReloader rebuilds the schema snapshot on demand.
type schemaReloader interface {
	Reload(ctx context.Context, trigger string) (*schemarefresh.Snapshot, bool, error)
}

// buildAdminHandler returns nil when schema reload is disabled.
func buildAdminHandler(cfg *config.Config, reloader schemaReloader, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.SchemaReloadEnabled {
		return nil, nil
	}
	tokenAuth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
		Token:     cfg.Server.Admin.AuthToken,
		Operation: "schema_reload",
	}, securityMetrics)
	if err != nil {
		return nil, err
	}
	return tokenAuth(schemaReloadHandler(reloader)), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, apiHandler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(listapi.RoutePrefix, apiHandler)
	mux.Handle(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))

	if adminHandler != nil {
		mux.Handle(schemaReloadPath, adminHandler)
		logger.Info("schema reload endpoint enabled", slog.String("path", schemaReloadPath))
	}
	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	return mux
}

// wrapHTTPHandler applies the request-wide layers. From the outside in: rate limiting,
// CORS, HTTP instrumentation and request logging.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler, securityMetrics *observability.SecurityMetrics) http.Handler {
	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	server := cfg.Server
	if server.CORS.Enabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          true,
			AllowedOrigins:   server.CORS.AllowedOrigins,
			AllowedMethods:   server.CORS.AllowedMethods,
			AllowedHeaders:   server.CORS.AllowedHeaders,
			ExposeHeaders:    server.CORS.ExposeHeaders,
			AllowCredentials: server.CORS.AllowCredentials,
			MaxAge:           server.CORS.MaxAge,
		})(handler)
	}

	if server.RateLimit.Enabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:   true,
			RPS:       server.RateLimit.RPS,
			Burst:     server.RateLimit.Burst,
			PerClient: server.RateLimit.PerClient,
		}, securityMetrics)(handler)
	}
	return handler
}

// httpRootSpanName keeps span names low-cardinality: list paths collapse to their route.
func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case healthPath, metricsPath, schemaReloadPath:
		return rawPath
	}
	if rest, ok := strings.CutPrefix(rawPath, listapi.RoutePrefix); ok && rest != "" {
		if strings.HasSuffix(rest, "/plan") {
			return listapi.RoutePrefix + "{entity}/plan"
		}
		return listapi.RoutePrefix + "{entity}"
	}
	return "/*"
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Manager, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if !tlscert.Enabled(cfg.Server.TLSMode) {
		return srv, nil, nil
	}

	tlsManager, err := tlscert.NewManager(tlscert.Config{
		Mode:        tlscert.Mode(cfg.Server.TLSMode),
		CertFile:    cfg.Server.TLSCertFile,
		KeyFile:     cfg.Server.TLSKeyFile,
		AutoCertDir: cfg.Server.TLSAutoCertDir,
	}, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	srv.TLSConfig, err = tlsManager.TLSConfig()
	if err != nil {
		return nil, nil, err
	}
	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", tlsManager.Description()))
	return srv, tlsManager, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	tlsEnabled := tlscert.Enabled(cfg.Server.TLSMode)
	go func() {
		protocol := "http"
		if tlsEnabled {
			protocol = "https"
		}
		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("list_endpoint", listapi.RoutePrefix+"{entity}"),
			slog.String("health_endpoint", healthPath),
			slog.Int("default_limit", cfg.Query.DefaultLimit),
			slog.Int("max_limit", cfg.Query.MaxLimit),
			slog.String("schema_source", cfg.Schema.Source),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		if cfg.Server.RateLimit.Enabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimit.RPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimit.Burst),
			)
		}
		logger.Info("server starting", logAttrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	return serverErrors
}

// healthHandler pings the database with a short timeout.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
	}
}

type reloadResponse struct {
	Status      string    `json:"status"`
	Changed     bool      `json:"changed"`
	Tables      int       `json:"tables"`
	Fingerprint string    `json:"fingerprint"`
	BuiltAt     time.Time `json:"builtAt"`
}

func schemaReloadHandler(reloader schemaReloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		ctx, cancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer cancel()

		snapshot, changed, err := reloader.Reload(ctx, schemarefresh.TriggerAdmin)
		if err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "schema reload failed"})
			return
		}

		resp := reloadResponse{Status: "ok", Changed: changed}
		if snapshot != nil {
			resp.Fingerprint = snapshot.Fingerprint
			resp.BuiltAt = snapshot.BuiltAt
			if snapshot.Schema != nil {
				resp.Tables = len(snapshot.Schema.Tables)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
