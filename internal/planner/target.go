package planner

import (
	"listquery/internal/introspection"
	"listquery/internal/queryspec"
)

type targetKind int

const (
	targetColumn targetKind = iota
	targetRelation
	targetJSON
)

// target is a filter or order key resolved against the entity's table.
type target struct {
	path     queryspec.Path
	kind     targetKind
	relation *introspection.Relationship
}

// resolveTarget checks that key addresses a column, a relation field, or a key inside a
// JSON column. Relations take precedence over columns with the same name. Fields on the
// far side of a relation are checked at render time, when the whole schema is known.
func resolveTarget(table *introspection.Table, key string) (target, error) {
	path, err := queryspec.ParsePath(key)
	if err != nil {
		return target{}, err
	}

	if rel, ok := table.Relationship(path.Root); ok {
		if !path.Nested() {
			return target{}, queryspec.FieldErrorf(key, "Relation field %s must specify a target field (e.g., \"relation.field\")", key)
		}
		return target{path: path, kind: targetRelation, relation: rel}, nil
	}

	if col, ok := table.Column(path.Root); ok {
		if !path.Nested() {
			return target{path: path, kind: targetColumn}, nil
		}
		if !col.IsJSON {
			return target{}, queryspec.FieldErrorf(key, "Field %s is not a valid relation or JSONB field", key)
		}
		return target{path: path, kind: targetJSON}, nil
	}

	return target{}, queryspec.FieldErrorf(key, "Field %s does not exist on entity %s", path.Root, table.Name)
}

// expression is the canonical, unquoted comparison target used in plan fragments.
func (t target) expression(table string) string {
	switch t.kind {
	case targetRelation:
		return t.path.Root + "." + t.path.Leaf
	case targetJSON:
		return table + "." + t.path.Root + "->>'" + t.path.Leaf + "'"
	default:
		return table + "." + t.path.Root
	}
}
