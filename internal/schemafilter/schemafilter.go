// Package schemafilter narrows a schema snapshot to the tables and columns the list
// service exposes. Hidden tables and columns cannot be filtered, ordered or joined.
package schemafilter

import (
	"context"
	"path"
	"slices"
	"strings"

	"listquery/internal/introspection"
	"listquery/internal/naming"
)

// Config controls allow/deny filters for tables and columns. Patterns are
// case-insensitive path.Match globs; column maps are keyed by table glob "*" or a table name.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
}

// Apply filters tables, columns and foreign keys in place, then rebuilds relations
// so none point at hidden tables or columns. Missing allow lists allow everything;
// deny rules always win.
func Apply(ctx context.Context, schema *introspection.Schema, cfg Config, namer *naming.Namer) error {
	if schema == nil {
		return nil
	}

	visible := make(map[string]map[string]bool)
	tables := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.IsView && !cfg.ScanViewsEnabled {
			continue
		}
		if !TableAllowed(table.Name, cfg) {
			continue
		}

		columns := make([]introspection.Column, 0, len(table.Columns))
		names := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			if !ColumnAllowed(table.Name, col.Name, cfg) {
				continue
			}
			columns = append(columns, col)
			names[col.Name] = true
		}
		if len(columns) == 0 {
			continue
		}
		table.Columns = columns
		visible[table.Name] = names
		tables = append(tables, table)
	}

	for i := range tables {
		table := &tables[i]
		table.ForeignKeys = slices.DeleteFunc(slices.Clone(table.ForeignKeys), func(fk introspection.ForeignKey) bool {
			return !visible[table.Name][fk.ColumnName] || !visible[fk.ReferencedTable][fk.ReferencedColumn]
		})
		table.Relationships = slices.DeleteFunc(slices.Clone(table.Relationships), func(rel introspection.Relationship) bool {
			return !rel.Declared ||
				!allVisible(visible[table.Name], rel.LocalColumns) ||
				!allVisible(visible[rel.TargetTable], rel.RemoteColumns)
		})
	}

	schema.Tables = tables
	return introspection.RebuildRelationships(ctx, schema, namer)
}

func allVisible(columns map[string]bool, names []string) bool {
	if columns == nil {
		return false
	}
	for _, name := range names {
		if !columns[name] {
			return false
		}
	}
	return true
}

// TableAllowed reports whether a table passes the table filters.
func TableAllowed(table string, cfg Config) bool {
	if matchesAny(table, cfg.DenyTables) {
		return false
	}
	return len(cfg.AllowTables) == 0 || matchesAny(table, cfg.AllowTables)
}

// ColumnAllowed reports whether a column of table passes the column filters.
func ColumnAllowed(table, column string, cfg Config) bool {
	if matchesAny(column, patternsFor(cfg.DenyColumns, table)) {
		return false
	}
	allow := patternsFor(cfg.AllowColumns, table)
	return len(allow) == 0 || matchesAny(column, allow)
}

func patternsFor(patterns map[string][]string, table string) []string {
	if len(patterns) == 0 {
		return nil
	}
	var out []string
	for key, list := range patterns {
		if key == "*" || strings.EqualFold(key, table) || matches(key, table) {
			out = append(out, list...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func matchesAny(value string, patterns []string) bool {
	for _, pattern := range patterns {
		if matches(pattern, value) {
			return true
		}
	}
	return false
}

func matches(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(value))
	return err == nil && ok
}
