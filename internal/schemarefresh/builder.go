// Package schemarefresh builds and swaps the schema snapshot list queries are
// validated and compiled against.
package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"listquery/internal/introspection"
	"listquery/internal/naming"
	"listquery/internal/schemafilter"
	"listquery/internal/sqlutil"
)

// Source selects where entity schemas come from.
type Source string

const (
	SourceDatabase Source = "database"
	SourceFile     Source = "file"
)

// Snapshot is an immutable, filtered schema. Requests hold on to the snapshot
// they started with even if a newer one is swapped in.
type Snapshot struct {
	Schema      *introspection.Schema
	BuiltAt     time.Time
	Fingerprint string
}

// BuildConfig describes one snapshot build.
type BuildConfig struct {
	Source Source
	// Queryer, Dialect and DatabaseName are used when Source is SourceDatabase.
	Queryer      introspection.Queryer
	Dialect      sqlutil.Dialect
	DatabaseName string
	Concurrency  int
	// File is the YAML schema path used when Source is SourceFile.
	File    string
	Filters schemafilter.Config
	Naming  naming.Config
	Logger  *slog.Logger
}

// BuildSnapshot loads the schema from the configured source, applies the
// table and column filters and fingerprints the result.
func BuildSnapshot(ctx context.Context, cfg BuildConfig) (*Snapshot, error) {
	// Relation names are registered per build, so each build gets a fresh namer.
	namer := naming.New(cfg.Naming, cfg.Logger)

	var (
		schema *introspection.Schema
		err    error
	)
	switch cfg.Source {
	case SourceDatabase, "":
		if cfg.Queryer == nil {
			return nil, errors.New("database schema source requires a connection")
		}
		schema, err = introspection.IntrospectDatabaseContext(ctx, cfg.Queryer, introspection.Options{
			Dialect:      cfg.Dialect,
			DatabaseName: cfg.DatabaseName,
			Concurrency:  cfg.Concurrency,
			Namer:        namer,
		})
	case SourceFile:
		if cfg.File == "" {
			return nil, errors.New("file schema source requires a path")
		}
		schema, err = introspection.LoadSchemaFile(ctx, cfg.File, namer)
	default:
		return nil, fmt.Errorf("unknown schema source %q", cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	if err := schemafilter.Apply(ctx, schema, cfg.Filters, namer); err != nil {
		return nil, fmt.Errorf("failed to apply schema filters: %w", err)
	}

	fingerprint, err := Fingerprint(schema)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Schema:      schema,
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
	}, nil
}

// Fingerprint hashes the visible shape of a schema: tables, columns and relations.
func Fingerprint(schema *introspection.Schema) (string, error) {
	if schema == nil {
		return "", nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema for fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
