package planner

import (
	"fmt"

	"listquery/internal/introspection"
	"listquery/internal/queryspec"
)

// Find operator types.
const (
	FindNot             = "not"
	FindLike            = "like"
	FindILike           = "ilike"
	FindBetween         = "between"
	FindIn              = "in"
	FindAny             = "any"
	FindLessThan        = "lessThan"
	FindLessThanOrEqual = "lessThanOrEqual"
	FindMoreThan        = "moreThan"
	FindMoreThanOrEqual = "moreThanOrEqual"
)

// ErrGroupsNeedBuilder is the message returned when declarative options are requested
// for a specification with filter groups.
const ErrGroupsNeedBuilder = "OR/AND groups are only supported in parameterized mode; use ToQueryBuilder"

// FindOperator is a non-equality comparison in declarative find options. Value is a
// string, a []string for list operators, or a nested FindOperator for negations.
type FindOperator struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// FindOptions is the declarative form of a specification.
type FindOptions struct {
	// Where maps a column to its value or FindOperator. Relation and JSON keys nest one
	// level: {"organization": {"name": value}}.
	Where     map[string]any                 `json:"where,omitempty"`
	Relations map[string]bool                `json:"relations,omitempty"`
	Order     map[string]queryspec.Direction `json:"order,omitempty"`
	Take      int                            `json:"take,omitempty"`
	Skip      int                            `json:"skip,omitempty"`
}

// ToFindOptions converts spec into declarative find options for table. Specifications
// with filter groups are rejected because nested maps cannot express OR.
func ToFindOptions(spec queryspec.Spec, table *introspection.Table) (*FindOptions, error) {
	if spec.HasGroups() {
		return nil, queryspec.Errorf(ErrGroupsNeedBuilder)
	}
	if table == nil {
		return nil, fmt.Errorf("planner: nil table")
	}

	opts := &FindOptions{}
	for _, filter := range spec.Where {
		t, err := resolveTarget(table, filter.Key)
		if err != nil {
			return nil, err
		}
		value, err := findValue(filter)
		if err != nil {
			return nil, err
		}

		if opts.Where == nil {
			opts.Where = make(map[string]any)
		}
		if t.kind == targetColumn {
			opts.Where[t.path.Root] = value
			continue
		}
		nested, ok := opts.Where[t.path.Root].(map[string]any)
		if !ok {
			nested = make(map[string]any)
			opts.Where[t.path.Root] = nested
		}
		nested[t.path.Leaf] = value
	}

	for _, rel := range spec.Relations {
		if opts.Relations == nil {
			opts.Relations = make(map[string]bool)
		}
		opts.Relations[rel.Name] = true
	}

	for _, entry := range spec.OrderBy {
		if opts.Order == nil {
			opts.Order = make(map[string]queryspec.Direction)
		}
		opts.Order[entry.Key] = entry.Direction
	}

	opts.Take = spec.Limit
	opts.Skip = spec.Offset
	return opts, nil
}

func findValue(filter queryspec.Filter) (any, error) {
	op := filter.Operator
	if op == "" {
		op = queryspec.OpEqual
	}
	if err := queryspec.ValidateOperatorValue(op, filter.Value); err != nil {
		return nil, err
	}

	switch op {
	case queryspec.OpEqual:
		return filter.Value, nil
	case queryspec.OpNot:
		return FindOperator{Type: FindNot, Value: filter.Value}, nil
	case queryspec.OpLike:
		return FindOperator{Type: FindLike, Value: "%" + filter.Value + "%"}, nil
	case queryspec.OpILike:
		return FindOperator{Type: FindILike, Value: "%" + filter.Value + "%"}, nil
	case queryspec.OpBetween:
		return FindOperator{Type: FindBetween, Value: queryspec.SplitList(filter.Value)}, nil
	case queryspec.OpIn:
		return FindOperator{Type: FindIn, Value: queryspec.SplitList(filter.Value)}, nil
	case queryspec.OpNotIn:
		return FindOperator{Type: FindNot, Value: FindOperator{Type: FindIn, Value: queryspec.SplitList(filter.Value)}}, nil
	case queryspec.OpAny:
		return FindOperator{Type: FindAny, Value: queryspec.SplitList(filter.Value)}, nil
	case queryspec.OpLessThan:
		return FindOperator{Type: FindLessThan, Value: filter.Value}, nil
	case queryspec.OpLessThanOrEqual:
		return FindOperator{Type: FindLessThanOrEqual, Value: filter.Value}, nil
	case queryspec.OpMoreThan:
		return FindOperator{Type: FindMoreThan, Value: filter.Value}, nil
	case queryspec.OpMoreThanOrEqual:
		return FindOperator{Type: FindMoreThanOrEqual, Value: filter.Value}, nil
	default:
		panic(fmt.Sprintf("planner: unhandled operator %q", op))
	}
}
