package planner

import (
	"fmt"
	"strings"

	"listquery/internal/introspection"
	"listquery/internal/queryspec"
)

// groupStride separates parameter suffixes of different filter groups.
const groupStride = 1000

// ToQueryBuilder compiles spec into a parameterized plan for table. Every placeholder
// name in the plan is unique, even when a field is filtered more than once.
func ToQueryBuilder(spec queryspec.Spec, table *introspection.Table) (*QueryPlan, error) {
	if table == nil {
		return nil, fmt.Errorf("planner: nil table")
	}

	plan := &QueryPlan{
		Table:  table.Name,
		Limit:  spec.Limit,
		Offset: spec.Offset,
	}
	used := make(map[string]struct{})

	for i, filter := range spec.Where {
		cond, err := buildCondition(table, filter, i, used)
		if err != nil {
			return nil, err
		}
		plan.Where = append(plan.Where, cond)
	}

	for gi, group := range spec.WhereGroups {
		logic, ok := queryspec.ParseLogic(string(group.Logic))
		if !ok {
			return nil, queryspec.Errorf("Invalid logic operator %q in filter group at position %d. Valid logic operators: AND, OR", group.Logic, gi)
		}
		g := &Group{Logic: logic}
		for ci, filter := range group.Conditions {
			cond, err := buildCondition(table, filter, gi*groupStride+ci, used)
			if err != nil {
				return nil, err
			}
			g.Conditions = append(g.Conditions, cond)
		}
		if len(g.Conditions) > 0 {
			plan.Where = append(plan.Where, g)
		}
	}

	for _, rel := range spec.Relations {
		if _, ok := table.Relationship(rel.Name); !ok {
			return nil, queryspec.FieldErrorf(rel.Name, "Relation %s does not exist on entity %s", rel.Name, table.Name)
		}
		kind := rel.EffectiveJoin()
		if !kind.Valid() {
			kind = queryspec.DefaultJoin
		}
		plan.Joins = append(plan.Joins, Join{
			Kind:     kind,
			Property: table.Name + "." + rel.Name,
			Alias:    rel.Name,
			Select:   kind.Selects(),
		})
	}

	for _, entry := range spec.OrderBy {
		t, err := resolveTarget(table, entry.Key)
		if err != nil {
			return nil, err
		}
		direction := entry.Direction
		if direction == "" {
			direction = queryspec.Asc
		}
		plan.Order = append(plan.Order, OrderTerm{
			Target:    t.expression(table.Name),
			Direction: direction,
			target:    t,
		})
	}

	return plan, nil
}

func buildCondition(table *introspection.Table, filter queryspec.Filter, index int, used map[string]struct{}) (*Condition, error) {
	t, err := resolveTarget(table, filter.Key)
	if err != nil {
		return nil, err
	}
	op := filter.Operator
	if op == "" {
		op = queryspec.OpEqual
	}
	if err := queryspec.ValidateOperatorValue(op, filter.Value); err != nil {
		return nil, err
	}

	var names []string
	for {
		base, err := queryspec.SafeParameterName(filter.Key, index)
		if err != nil {
			return nil, err
		}
		names = parameterNames(op, base)
		if !anyUsed(used, names) {
			break
		}
		index += groupStride
	}
	for _, name := range names {
		used[name] = struct{}{}
	}

	expr := t.expression(table.Name)
	if op == queryspec.OpILike {
		expr = "LOWER(" + expr + ")"
	}

	cond := &Condition{
		Target:   expr,
		Operator: op,
		target:   t,
		names:    names,
	}

	switch op {
	case queryspec.OpEqual, queryspec.OpNot, queryspec.OpLessThan, queryspec.OpLessThanOrEqual,
		queryspec.OpMoreThan, queryspec.OpMoreThanOrEqual:
		cond.SQL = fmt.Sprintf("%s %s :%s", expr, comparison(op), names[0])
		cond.Params = map[string]any{names[0]: filter.Value}
	case queryspec.OpLike:
		cond.SQL = fmt.Sprintf("%s LIKE :%s", expr, names[0])
		cond.Params = map[string]any{names[0]: "%" + filter.Value + "%"}
	case queryspec.OpILike:
		cond.SQL = fmt.Sprintf("%s ILIKE :%s", expr, names[0])
		cond.Params = map[string]any{names[0]: "%" + strings.ToLower(filter.Value) + "%"}
	case queryspec.OpBetween:
		bounds := queryspec.SplitList(filter.Value)
		cond.SQL = fmt.Sprintf("%s BETWEEN :%s AND :%s", expr, names[0], names[1])
		cond.Params = map[string]any{names[0]: bounds[0], names[1]: bounds[1]}
	case queryspec.OpIn:
		cond.SQL = fmt.Sprintf("%s IN (:...%s)", expr, names[0])
		cond.Params = map[string]any{names[0]: queryspec.SplitList(filter.Value)}
	case queryspec.OpNotIn:
		cond.SQL = fmt.Sprintf("%s NOT IN (:...%s)", expr, names[0])
		cond.Params = map[string]any{names[0]: queryspec.SplitList(filter.Value)}
	case queryspec.OpAny:
		cond.SQL = fmt.Sprintf("%s = ANY(:%s)", expr, names[0])
		cond.Params = map[string]any{names[0]: queryspec.SplitList(filter.Value)}
	default:
		panic(fmt.Sprintf("planner: unhandled operator %q", op))
	}
	return cond, nil
}

// parameterNames derives the placeholder names an operator binds from base ("age_0").
func parameterNames(op queryspec.Operator, base string) []string {
	switch {
	case op == queryspec.OpBetween:
		return []string{"FROM" + base, "TO" + base}
	case op.TakesList():
		return []string{base + "Ids"}
	default:
		return []string{base}
	}
}

func anyUsed(used map[string]struct{}, names []string) bool {
	for _, name := range names {
		if _, ok := used[name]; ok {
			return true
		}
	}
	return false
}

func comparison(op queryspec.Operator) string {
	switch op {
	case queryspec.OpEqual:
		return "="
	case queryspec.OpNot:
		return "!="
	case queryspec.OpLessThan:
		return "<"
	case queryspec.OpLessThanOrEqual:
		return "<="
	case queryspec.OpMoreThan:
		return ">"
	case queryspec.OpMoreThanOrEqual:
		return ">="
	default:
		panic(fmt.Sprintf("planner: %q is not a comparison operator", op))
	}
}
