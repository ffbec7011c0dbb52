package listapi

import (
	"strings"

	"listquery/internal/dbexec"
	"listquery/internal/introspection"
	"listquery/internal/sqltype"
)

// columnDecoder types result values by the schema's column types. Labels are either a
// column of table or "relation.column" for selected relation columns.
func columnDecoder(schema *introspection.Schema, table *introspection.Table) dbexec.ColumnDecoder {
	categories := make(map[string]sqltype.Category)
	return func(label string, value any) any {
		category, ok := categories[label]
		if !ok {
			category = categoryFor(schema, table, label)
			categories[label] = category
		}
		return sqltype.Decode(category, value)
	}
}

func categoryFor(schema *introspection.Schema, table *introspection.Table, label string) sqltype.Category {
	owner, name := table, label
	if relName, column, nested := strings.Cut(label, "."); nested {
		rel, ok := table.Relationship(relName)
		if !ok {
			return sqltype.String
		}
		target, ok := schema.Lookup(rel.TargetTable)
		if !ok {
			return sqltype.String
		}
		owner, name = target, column
	}
	col, ok := owner.Column(name)
	if !ok {
		return sqltype.String
	}
	return sqltype.Categorize(col.DataType)
}
