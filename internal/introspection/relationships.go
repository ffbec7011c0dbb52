package introspection

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"listquery/internal/naming"
)

// buildRelationships derives both directions of every foreign key. Declared
// relations are kept as-is and take their names before derived ones.
func buildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) error {
	_, span := startSpan(ctx, "introspection.build_relationships")
	defer span.End()

	// Columns always win name clashes, then declared relations.
	for i := range schema.Tables {
		table := &schema.Tables[i]
		for _, col := range table.Columns {
			namer.RegisterColumn(table.Name, col.Name)
		}

		declared := table.Relationships[:0]
		for _, rel := range table.Relationships {
			if !rel.Declared {
				continue
			}
			rel.Name = namer.RegisterRelation(table.Name, rel.Name, "declared:"+rel.TargetTable, rel.Kind == ManyToOne)
			declared = append(declared, rel)
		}
		table.Relationships = declared
	}

	// Several constraints from one table to the same target need the key column in
	// the reverse relation name to stay distinct.
	fkCount := make(map[string]map[string]int) // source → target → count
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}

		for _, fk := range ForeignKeyConstraints(*table) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				slog.Default().Warn("skipping foreign key with mismatched column mapping",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.String("local_columns", strings.Join(fk.ColumnNames, ",")),
					slog.String("remote_columns", strings.Join(fk.ReferencedColumns, ",")),
				)
				continue
			}
			if !hasRelationTo(table.Relationships, fk.ReferencedTable, fk.ColumnNames) {
				name := namer.RegisterRelation(table.Name, namer.ManyToOneRelationName(fk.ColumnNames[0]), fk.ConstraintName, true)
				table.Relationships = append(table.Relationships, Relationship{
					Name:          name,
					Kind:          ManyToOne,
					TargetTable:   fk.ReferencedTable,
					LocalColumns:  append([]string(nil), fk.ColumnNames...),
					RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
				})
			}

			target, ok := schema.Lookup(fk.ReferencedTable)
			if !ok || target.IsView {
				continue
			}
			if hasRelationTo(target.Relationships, table.Name, fk.ReferencedColumns) {
				continue
			}
			isOnlyFK := fkCount[table.Name][fk.ReferencedTable] == 1
			reverse := namer.OneToManyRelationName(table.Name, fk.ColumnNames[0], isOnlyFK)
			target.Relationships = append(target.Relationships, Relationship{
				Name:          namer.RegisterRelation(target.Name, reverse, fk.ConstraintName, false),
				Kind:          OneToMany,
				TargetTable:   table.Name,
				LocalColumns:  append([]string(nil), fk.ReferencedColumns...),
				RemoteColumns: append([]string(nil), fk.ColumnNames...),
			})
		}
	}

	return nil
}

func hasRelationTo(relations []Relationship, target string, localColumns []string) bool {
	for _, rel := range relations {
		if rel.Declared && rel.TargetTable == target && slices.Equal(rel.LocalColumns, localColumns) {
			return true
		}
	}
	return false
}
