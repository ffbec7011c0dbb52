package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/config"
	"listquery/internal/dbexec"
	"listquery/internal/introspection"
	"listquery/internal/restrict"
	"listquery/internal/schemarefresh"
	"listquery/internal/sqlutil"
)

const testSchemaYAML = `
tables:
  - name: users
    columns:
      - name: id
        type: int
        primary_key: true
      - name: email
        type: varchar
      - name: status
        type: varchar
`

type fakeReloader struct {
	snapshot *schemarefresh.Snapshot
	changed  bool
	err      error
	triggers []string
}

func (f *fakeReloader) Reload(_ context.Context, trigger string) (*schemarefresh.Snapshot, bool, error) {
	f.triggers = append(f.triggers, trigger)
	return f.snapshot, f.changed, f.err
}

func adminConfig(enabled bool) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HealthCheckTimeout: time.Second,
			Admin: config.AdminConfig{
				SchemaReloadEnabled: enabled,
				AuthToken:           "secret-token",
			},
		},
	}
}

func TestBuildAdminHandler_DisabledReturnsNil(t *testing.T) {
	handler, err := buildAdminHandler(adminConfig(false), &fakeReloader{}, nil)
	require.NoError(t, err)
	assert.Nil(t, handler)
}

func TestBuildAdminHandler_RequiresToken(t *testing.T) {
	cfg := adminConfig(true)
	cfg.Server.Admin.AuthToken = ""
	_, err := buildAdminHandler(cfg, &fakeReloader{}, nil)
	assert.Error(t, err)
}

func TestBuildRouter_AdminRoute(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	t.Run("disabled", func(t *testing.T) {
		mux := buildRouter(adminConfig(false), testLogger(), nil, api, nil, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, schemaReloadPath, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		reloader := &fakeReloader{
			snapshot: &schemarefresh.Snapshot{
				Schema:      &introspection.Schema{Tables: []introspection.Table{{Name: "users"}}},
				Fingerprint: "abc",
			},
			changed: true,
		}
		admin, err := buildAdminHandler(adminConfig(true), reloader, nil)
		require.NoError(t, err)
		mux := buildRouter(adminConfig(true), testLogger(), nil, api, admin, nil)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, schemaReloadPath, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, reloader.triggers)

		req := httptest.NewRequest(http.MethodGet, schemaReloadPath, nil)
		req.Header.Set("X-Admin-Token", "secret-token")
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

		req = httptest.NewRequest(http.MethodPost, schemaReloadPath, nil)
		req.Header.Set("X-Admin-Token", "secret-token")
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body reloadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Changed)
		assert.Equal(t, 1, body.Tables)
		assert.Equal(t, "abc", body.Fingerprint)
		assert.Equal(t, []string{schemarefresh.TriggerAdmin}, reloader.triggers)
	})

	t.Run("list prefix", func(t *testing.T) {
		mux := buildRouter(adminConfig(false), testLogger(), nil, api, nil, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}

func TestSchemaReloadHandler_Failure(t *testing.T) {
	handler := schemaReloadHandler(&fakeReloader{err: errors.New("introspection failed")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, schemaReloadPath, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"schema reload failed"}`, rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	healthHandler(db, time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	rec = httptest.NewRecorder()
	healthHandler(db, time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, healthPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTPRootSpanName(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/v1/users", "GET /v1/{entity}"},
		{http.MethodGet, "/v1/users/plan", "GET /v1/{entity}/plan"},
		{http.MethodGet, "/health", "GET /health"},
		{http.MethodPost, "/admin/schema/reload", "POST /admin/schema/reload"},
		{http.MethodGet, "/v1/", "GET /*"},
		{http.MethodGet, "/favicon.ico", "GET /*"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, httpRootSpanName(httptest.NewRequest(tt.method, tt.path, nil)))
		})
	}
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestWrapHTTPHandler_RateLimitAndCORS(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}, AllowedMethods: []string{"GET"}}
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := wrapHTTPHandler(cfg, testLogger(), inner, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestBuildServer_TLSOff(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{TLSMode: "off", ReadTimeout: time.Second}}
	srv, manager, err := buildServer(cfg, testLogger(), http.NewServeMux(), ":0")
	require.NoError(t, err)
	assert.Nil(t, manager)
	assert.Nil(t, srv.TLSConfig)
	assert.Equal(t, time.Second, srv.ReadTimeout)
}

func TestBuildServer_TLSAuto(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{TLSMode: "auto", TLSAutoCertDir: t.TempDir()}}
	srv, manager, err := buildServer(cfg, testLogger(), http.NewServeMux(), ":0")
	require.NoError(t, err)
	require.NotNil(t, manager)
	require.NotNil(t, srv.TLSConfig)
	assert.Len(t, srv.TLSConfig.Certificates, 1)
}

func TestListEndpointsEndToEnd(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchemaYAML), 0o600))

	cfg := &config.Config{
		Query: config.QueryConfig{DefaultLimit: 20, MaxLimit: 50, Timeout: time.Second},
		Schema: config.SchemaConfig{
			Source: string(schemarefresh.SourceFile),
			File:   schemaPath,
		},
		Restrictions: config.RestrictionsConfig{
			Default: map[string]restrict.Policy{
				"users": {Mode: restrict.Blacklist, WhereFields: []string{"email"}, Strict: true},
			},
		},
	}

	manager, cancel, err := startSchemaManager(t.Context(), cfg, testLogger(), nil, sqlutil.MySQL, nil)
	require.NoError(t, err)
	defer cancel()
	require.NotNil(t, manager.Current())

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	listHandler, err := buildListHandler(cfg, manager, dbexec.NewStandardExecutor(db), sqlutil.MySQL, nil)
	require.NoError(t, err)
	api, err := buildAPIHandler(cfg, testLogger(), listHandler, nil)
	require.NoError(t, err)
	handler := wrapHTTPHandler(cfg, testLogger(), buildRouter(cfg, testLogger(), db, api, nil, nil), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `users` WHERE `users`.`status` = ? LIMIT 20")).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status"}).AddRow(int64(1), "a@example.com", "active"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users?filters=status~active", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":[{"id":1,"email":"a@example.com","status":"active"}],"limit":20,"offset":0,"next":null}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users?filters=email~a@example.com", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}
