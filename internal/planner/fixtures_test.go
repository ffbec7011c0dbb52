package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"listquery/internal/introspection"
)

func testSchema() *introspection.Schema {
	return &introspection.Schema{Tables: []introspection.Table{
		{
			Name: "organizations",
			Columns: []introspection.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "name", DataType: "varchar"},
			},
			Relationships: []introspection.Relationship{
				{Name: "users", Kind: introspection.OneToMany, TargetTable: "users", LocalColumns: []string{"id"}, RemoteColumns: []string{"organization_id"}},
			},
		},
		{
			Name: "users",
			Columns: []introspection.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "email", DataType: "varchar"},
				{Name: "age", DataType: "int"},
				{Name: "status", DataType: "varchar"},
				{Name: "address", DataType: "jsonb", IsJSON: true},
				{Name: "organization_id", DataType: "int"},
			},
			Relationships: []introspection.Relationship{
				{Name: "organization", Kind: introspection.ManyToOne, TargetTable: "organizations", LocalColumns: []string{"organization_id"}, RemoteColumns: []string{"id"}},
			},
		},
	}}
}

func usersTable(t *testing.T, schema *introspection.Schema) *introspection.Table {
	t.Helper()
	table, ok := schema.Lookup("users")
	require.True(t, ok)
	return table
}
