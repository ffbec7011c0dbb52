package serverapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"listquery/internal/config"
	"listquery/internal/dbexec"
	"listquery/internal/sqlutil"
)

func TestSQLDriverName(t *testing.T) {
	assert.Equal(t, "mysql", sqlDriverName(config.DriverMySQL))
	assert.Equal(t, "postgres", sqlDriverName(config.DriverPostgres))
	assert.Equal(t, "pgx", sqlDriverName(config.DriverPgx))
	assert.Equal(t, "mysql", sqlDriverName(""))
}

func TestDBSystemAttribute(t *testing.T) {
	assert.Equal(t, semconv.DBSystemMySQL, dbSystemAttribute(sqlutil.MySQL))
	assert.Equal(t, semconv.DBSystemPostgreSQL, dbSystemAttribute(sqlutil.Postgres))
}

func TestWaitForDatabase_RetriesUntilReady(t *testing.T) {
	calls := 0
	err := waitForDatabase(context.Background(), time.Second, time.Millisecond, testLogger(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForDatabase_ZeroTimeoutPingsOnce(t *testing.T) {
	calls := 0
	err := waitForDatabase(context.Background(), 0, time.Millisecond, testLogger(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWaitForDatabase_GivesUpAfterTimeout(t *testing.T) {
	err := waitForDatabase(context.Background(), 5*time.Millisecond, time.Millisecond, testLogger(), func(context.Context) error {
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not available")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitForDatabase_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := waitForDatabase(ctx, time.Minute, time.Hour, testLogger(), func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildQueryExecutor(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{}
	assert.IsType(t, &dbexec.StandardExecutor{}, buildQueryExecutor(cfg, db, sqlutil.MySQL))

	cfg.Server.Auth.DBRoleEnabled = true
	cfg.Server.Auth.DBRoles = []string{"reader"}
	assert.IsType(t, &dbexec.RoleExecutor{}, buildQueryExecutor(cfg, db, sqlutil.MySQL))
}
