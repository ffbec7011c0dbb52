package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"listquery/internal/sqlutil"
)

// RoleExecutor runs each query on a dedicated connection after switching to the caller's
// database role, so grants in the database back up the restriction policies.
type RoleExecutor struct {
	db           *sql.DB
	dialect      sqlutil.Dialect
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB          *sql.DB
	Dialect     sqlutil.Dialect
	RoleFromCtx func(context.Context) (string, bool)
	// AllowedRoles limits which roles may be assumed when ValidateRole is set.
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = sqlutil.MySQL
	}
	return &RoleExecutor{
		db:           cfg.DB,
		dialect:      dialect,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

func (e *RoleExecutor) resetSQL() string {
	if e.dialect == sqlutil.Postgres {
		return "RESET ROLE"
	}
	return "SET ROLE DEFAULT"
}

// checkRole returns the role to assume, or "" when the query runs as the connection user.
func (e *RoleExecutor) checkRole(ctx context.Context) (string, error) {
	if e.roleFromCtx == nil {
		return "", nil
	}
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return "", nil
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return "", fmt.Errorf("role not allowed: %s", role)
		}
	}
	return role, nil
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	role, err := e.checkRole(ctx)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return e.db.QueryContext(ctx, query, args...)
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	cleanup := func() {
		_, _ = conn.ExecContext(context.Background(), e.resetSQL())
		_ = conn.Close()
	}

	// SET ROLE takes no bind parameters; the role passed the allow list above.
	setRole := "SET ROLE " + e.dialect.QuoteIdentifier(role)
	if _, err := conn.ExecContext(ctx, setRole); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to set role %s: %w", role, err)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &roleAwareRows{Rows: rows, cleanup: cleanup}, nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
