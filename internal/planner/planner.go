// Package planner compiles a validated list-query specification against an entity's
// schema. It produces either declarative find options (nested filter maps) or a
// parameterized query plan, and renders plans into dialect-specific SQL with bound args.
package planner

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
}
