// Package serverapp assembles the list service from configuration and owns its lifecycle:
// telemetry providers, the database handle, the schema snapshot manager and the HTTP server.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"listquery/internal/config"
	"listquery/internal/dbexec"
	"listquery/internal/listapi"
	"listquery/internal/logging"
	"listquery/internal/observability"
	"listquery/internal/schemarefresh"
	"listquery/internal/sqlutil"
	"listquery/internal/tlscert"
)

// App owns runtime resources for the list service.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	dialect           sqlutil.Dialect
	effectiveDatabase string
	databaseSource    string
	dsnPresent        bool

	meterProvider   *observability.MeterProvider
	queryMetrics    *observability.QueryMetrics
	snapshotMetrics *observability.SnapshotMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	queryExecutor dbexec.QueryExecutor

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	listHandler *listapi.Handler
	mux         *http.ServeMux
	handler     http.Handler

	serverAddr string
	srv        *http.Server
	tlsManager tlscert.Manager

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dialect, err := sqlutil.DialectForDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	effectiveDatabase, databaseSource, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		dialect:           dialect,
		effectiveDatabase: effectiveDatabase,
		databaseSource:    databaseSource,
		dsnPresent:        strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
