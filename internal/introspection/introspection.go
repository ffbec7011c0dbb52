// Package introspection discovers entity schemas from a database's information_schema
// or from a YAML schema file. The result names every table's columns, flags JSON
// columns, and derives the relations list queries may join.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"listquery/internal/naming"
	"listquery/internal/sqlutil"
)

// DefaultConcurrency bounds the number of tables introspected at once.
const DefaultConcurrency = 4

// Column represents a database column
type Column struct {
	Name         string `yaml:"name" json:"name"`
	DataType     string `yaml:"type" json:"type"`
	IsNullable   bool   `yaml:"nullable" json:"nullable"`
	IsPrimaryKey bool   `yaml:"primary_key" json:"primaryKey"`
	// IsJSON marks columns whose nested keys can be addressed as "column.key".
	IsJSON bool `yaml:"json" json:"json"`
}

// ForeignKey represents one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string `yaml:"column"`
	ReferencedTable  string `yaml:"referenced_table"`
	ReferencedColumn string `yaml:"referenced_column"`
	ConstraintName   string `yaml:"constraint"`
	OrdinalPosition  int    `yaml:"position"`
}

// RelationKind is the cardinality of a relation seen from its owning table.
type RelationKind string

const (
	ManyToOne RelationKind = "many_to_one"
	OneToMany RelationKind = "one_to_many"
)

// Relationship is a joinable relation. LocalColumns[i] on the owning table
// matches RemoteColumns[i] on TargetTable.
type Relationship struct {
	Name          string       `yaml:"name" json:"name"`
	Kind          RelationKind `yaml:"kind" json:"kind"`
	TargetTable   string       `yaml:"target_table" json:"targetTable"`
	LocalColumns  []string     `yaml:"local_columns" json:"localColumns"`
	RemoteColumns []string     `yaml:"remote_columns" json:"remoteColumns"`
	// Declared marks relations listed in a schema file rather than derived from a foreign key.
	Declared bool `yaml:"-" json:"-"`
}

// Table represents a database table or view.
type Table struct {
	Name          string         `yaml:"name" json:"name"`
	IsView        bool           `yaml:"view" json:"view"`
	Columns       []Column       `yaml:"columns" json:"columns"`
	ForeignKeys   []ForeignKey   `yaml:"foreign_keys" json:"-"`
	Relationships []Relationship `yaml:"relations" json:"relations"`
}

// Column returns the column named name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Relationship returns the relation named name.
func (t *Table) Relationship(name string) (*Relationship, bool) {
	for i := range t.Relationships {
		if t.Relationships[i].Name == name {
			return &t.Relationships[i], true
		}
	}
	return nil, false
}

// Schema represents the introspected database schema
type Schema struct {
	Tables []Table `yaml:"tables" json:"tables"`
}

// Lookup returns the table named name.
func (s *Schema) Lookup(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options controls a database introspection run.
type Options struct {
	Dialect sqlutil.Dialect
	// DatabaseName is the MySQL database or the PostgreSQL schema to read.
	DatabaseName string
	Concurrency  int
	Namer        *naming.Namer
}

// IntrospectDatabaseContext reads tables, columns, primary keys and foreign keys from
// information_schema and derives relations from the foreign keys. Per-table reads
// run concurrently, bounded by Options.Concurrency.
func IntrospectDatabaseContext(ctx context.Context, db Queryer, opts Options) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", opts.DatabaseName),
		attribute.String("db.system", string(opts.Dialect)),
	)
	defer span.End()

	queries, err := catalogFor(opts.Dialect)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	tables, err := getTables(ctx, db, queries, opts.DatabaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range tables {
		table := &tables[i]
		g.Go(func() error {
			return loadTable(gctx, db, queries, opts.DatabaseName, table)
		})
	}
	if err := g.Wait(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	schema := &Schema{Tables: tables}
	namer := opts.Namer
	if namer == nil {
		namer = naming.Default()
	}
	if err := buildRelationships(ctx, schema, namer); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to build relationships: %w", err)
	}
	return schema, nil
}

func loadTable(ctx context.Context, db Queryer, queries catalogQueries, databaseName string, table *Table) error {
	columns, err := getColumns(ctx, db, queries, databaseName, table.Name)
	if err != nil {
		return fmt.Errorf("failed to get columns for %s: %w", table.Name, err)
	}
	if table.IsView {
		table.Columns = columns
		return nil
	}

	primaryKeys, err := getPrimaryKeys(ctx, db, queries, databaseName, table.Name)
	if err != nil {
		return fmt.Errorf("failed to get primary keys for table %s: %w", table.Name, err)
	}
	for i := range columns {
		for _, pk := range primaryKeys {
			if columns[i].Name == pk {
				columns[i].IsPrimaryKey = true
				break
			}
		}
	}

	foreignKeys, err := getForeignKeys(ctx, db, queries, databaseName, table.Name)
	if err != nil {
		return fmt.Errorf("failed to get foreign keys for table %s: %w", table.Name, err)
	}

	table.Columns = columns
	table.ForeignKeys = foreignKeys
	return nil
}

// RebuildRelationships clears and rebuilds relation metadata, keeping relations
// that were declared explicitly and have no foreign key behind them.
func RebuildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) error {
	if schema == nil {
		return nil
	}
	if namer == nil {
		namer = naming.Default()
	}
	namer.Reset()
	return buildRelationships(ctx, schema, namer)
}

// IsJSONType reports whether a reported data type holds JSON documents.
func IsJSONType(dataType string) bool {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "json", "jsonb":
		return true
	default:
		return false
	}
}

func getTables(ctx context.Context, db Queryer, queries catalogQueries, databaseName string) ([]Table, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, queries.tables, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []Table
	for rows.Next() {
		var tableName, tableType string
		if err := rows.Scan(&tableName, &tableType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, Table{
			Name:   tableName,
			IsView: strings.EqualFold(tableType, "VIEW"),
		})
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, queries catalogQueries, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, queries.columns, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.IsJSON = IsJSONType(col.DataType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, queries catalogQueries, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, queries.primaryKeys, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var primaryKeys []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		primaryKeys = append(primaryKeys, columnName)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return primaryKeys, nil
}

func getForeignKeys(ctx context.Context, db Queryer, queries catalogQueries, databaseName, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, queries.foreignKeys, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var foreignKeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable,
			&fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		foreignKeys = append(foreignKeys, fk)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return foreignKeys, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("listquery/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
