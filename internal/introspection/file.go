package introspection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"listquery/internal/naming"
)

// LoadSchemaFile reads a YAML schema description from path.
func LoadSchemaFile(ctx context.Context, path string, namer *naming.Namer) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	schema, err := ParseSchema(ctx, bytes.NewReader(data), namer)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return schema, nil
}

// ParseSchema decodes a YAML schema description. Relations listed under a table are
// kept as declared; relations for foreign keys are derived the same way as for an
// introspected database. Unknown keys are rejected.
func ParseSchema(ctx context.Context, r io.Reader, namer *naming.Namer) (*Schema, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var schema Schema
	if err := decoder.Decode(&schema); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if IsJSONType(col.DataType) {
				col.IsJSON = true
			}
		}
		for ri := range table.Relationships {
			table.Relationships[ri].Declared = true
		}
	}

	if err := validateSchema(&schema); err != nil {
		return nil, err
	}
	if namer == nil {
		namer = naming.Default()
	}
	if err := buildRelationships(ctx, &schema, namer); err != nil {
		return nil, fmt.Errorf("failed to build relationships: %w", err)
	}
	return &schema, nil
}

func validateSchema(schema *Schema) error {
	seen := make(map[string]struct{}, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.Name == "" {
			return errors.New("table name is required")
		}
		if _, dup := seen[table.Name]; dup {
			return fmt.Errorf("table %s is declared more than once", table.Name)
		}
		seen[table.Name] = struct{}{}
		if len(table.Columns) == 0 {
			return fmt.Errorf("table %s declares no columns", table.Name)
		}
		for _, col := range table.Columns {
			if col.Name == "" {
				return fmt.Errorf("table %s has a column without a name", table.Name)
			}
		}
	}

	for _, table := range schema.Tables {
		for _, rel := range table.Relationships {
			if rel.Name == "" {
				return fmt.Errorf("table %s has a relation without a name", table.Name)
			}
			if rel.Kind != ManyToOne && rel.Kind != OneToMany {
				return fmt.Errorf("relation %s.%s has invalid kind %q (expected %q or %q)", table.Name, rel.Name, rel.Kind, ManyToOne, OneToMany)
			}
			if _, ok := seen[rel.TargetTable]; !ok {
				return fmt.Errorf("relation %s.%s targets unknown table %q", table.Name, rel.Name, rel.TargetTable)
			}
			if len(rel.LocalColumns) == 0 || len(rel.LocalColumns) != len(rel.RemoteColumns) {
				return fmt.Errorf("relation %s.%s needs matching local_columns and remote_columns", table.Name, rel.Name)
			}
		}
		for _, fk := range table.ForeignKeys {
			if _, ok := seen[fk.ReferencedTable]; !ok {
				return fmt.Errorf("foreign key %s.%s references unknown table %q", table.Name, fk.ColumnName, fk.ReferencedTable)
			}
		}
	}
	return nil
}
