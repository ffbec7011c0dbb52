package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"listquery/internal/introspection"
	"listquery/internal/queryspec"
	"listquery/internal/sqlutil"
)

// RenderOptions controls SQL rendering.
type RenderOptions struct {
	Dialect sqlutil.Dialect
	// MaxLimit caps the plan's limit when positive. A plan without a limit gets MaxLimit.
	MaxLimit int
}

// renderer carries per-call rendering state.
type renderer struct {
	dialect sqlutil.Dialect
	schema  *introspection.Schema
	table   *introspection.Table
	joined  map[string]struct{}
}

// Render turns a plan into a SELECT statement for the dialect. Relation fields used in
// filters or ordering that were not joined explicitly get a LEFT JOIN without selection.
func Render(plan *QueryPlan, schema *introspection.Schema, opts RenderOptions) (SQLQuery, error) {
	if plan == nil {
		return SQLQuery{}, fmt.Errorf("planner: nil plan")
	}
	table, ok := schema.Lookup(plan.Table)
	if !ok {
		return SQLQuery{}, fmt.Errorf("planner: unknown table %q", plan.Table)
	}

	var format sq.PlaceholderFormat
	switch opts.Dialect {
	case sqlutil.MySQL:
		format = sq.Question
	case sqlutil.Postgres:
		format = sq.Dollar
	default:
		return SQLQuery{}, fmt.Errorf("planner: unsupported dialect %q", opts.Dialect)
	}

	r := &renderer{
		dialect: opts.Dialect,
		schema:  schema,
		table:   table,
		joined:  make(map[string]struct{}),
	}

	columns := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		columns = append(columns, r.column(table.Name, col.Name))
	}
	builder := sq.Select().From(r.dialect.QuoteIdentifier(table.Name))

	for _, join := range plan.Joins {
		rel, ok := table.Relationship(join.Alias)
		if !ok {
			return SQLQuery{}, queryspec.FieldErrorf(join.Alias, "Relation %s does not exist on entity %s", join.Alias, table.Name)
		}
		target, clause, err := r.joinClause(rel, join.Alias)
		if err != nil {
			return SQLQuery{}, err
		}
		if join.Kind.Inner() {
			builder = builder.InnerJoin(clause)
		} else {
			builder = builder.LeftJoin(clause)
		}
		r.joined[join.Alias] = struct{}{}
		if join.Select {
			for _, col := range target.Columns {
				columns = append(columns, r.column(join.Alias, col.Name)+" AS "+r.dialect.QuoteIdentifier(join.Alias+"."+col.Name))
			}
		}
	}

	// Relation targets referenced without an explicit join.
	var targets []target
	for _, clause := range plan.Where {
		switch c := clause.(type) {
		case *Condition:
			targets = append(targets, c.target)
		case *Group:
			for _, cond := range c.Conditions {
				targets = append(targets, cond.target)
			}
		}
	}
	for _, term := range plan.Order {
		targets = append(targets, term.target)
	}
	for _, t := range targets {
		if err := r.checkRelationField(t); err != nil {
			return SQLQuery{}, err
		}
		if t.kind != targetRelation {
			continue
		}
		if _, ok := r.joined[t.path.Root]; ok {
			continue
		}
		_, clause, err := r.joinClause(t.relation, t.path.Root)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.LeftJoin(clause)
		r.joined[t.path.Root] = struct{}{}
	}

	builder = builder.Columns(columns...)

	for _, clause := range plan.Where {
		pred, err := r.predicate(clause)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(pred)
	}

	for _, term := range plan.Order {
		builder = builder.OrderBy(r.expression(term.target) + " " + string(term.Direction))
	}

	limit := plan.Limit
	if opts.MaxLimit > 0 && (limit <= 0 || limit > opts.MaxLimit) {
		limit = opts.MaxLimit
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if plan.Offset > 0 {
		builder = builder.Offset(uint64(plan.Offset))
	}

	query, args, err := builder.PlaceholderFormat(format).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func (r *renderer) column(alias, name string) string {
	return r.dialect.QuoteIdentifier(alias) + "." + r.dialect.QuoteIdentifier(name)
}

// joinClause renders "target AS alias ON alias.remote = table.local [AND ...]".
func (r *renderer) joinClause(rel *introspection.Relationship, alias string) (*introspection.Table, string, error) {
	target, ok := r.schema.Lookup(rel.TargetTable)
	if !ok {
		return nil, "", fmt.Errorf("planner: relation %s targets unknown table %q", rel.Name, rel.TargetTable)
	}
	if len(rel.LocalColumns) == 0 || len(rel.LocalColumns) != len(rel.RemoteColumns) {
		return nil, "", fmt.Errorf("planner: relation %s has mismatched join columns", rel.Name)
	}
	on := make([]string, len(rel.LocalColumns))
	for i := range rel.LocalColumns {
		on[i] = r.column(alias, rel.RemoteColumns[i]) + " = " + r.column(r.table.Name, rel.LocalColumns[i])
	}
	clause := fmt.Sprintf("%s AS %s ON %s",
		r.dialect.QuoteIdentifier(target.Name),
		r.dialect.QuoteIdentifier(alias),
		strings.Join(on, " AND "),
	)
	return target, clause, nil
}

func (r *renderer) checkRelationField(t target) error {
	if t.kind != targetRelation {
		return nil
	}
	related, ok := r.schema.Lookup(t.relation.TargetTable)
	if !ok {
		return fmt.Errorf("planner: relation %s targets unknown table %q", t.relation.Name, t.relation.TargetTable)
	}
	if _, ok := related.Column(t.path.Leaf); !ok {
		return queryspec.FieldErrorf(t.path.String(), "Field %s does not exist on entity %s", t.path.Leaf, related.Name)
	}
	return nil
}

func (r *renderer) expression(t target) string {
	switch t.kind {
	case targetRelation:
		return r.column(t.path.Root, t.path.Leaf)
	case targetJSON:
		return r.dialect.JSONFieldText(r.column(r.table.Name, t.path.Root), t.path.Leaf)
	default:
		return r.column(r.table.Name, t.path.Root)
	}
}

func (r *renderer) predicate(clause Clause) (sq.Sqlizer, error) {
	switch c := clause.(type) {
	case *Condition:
		return r.condition(c), nil
	case *Group:
		parts := make([]sq.Sqlizer, len(c.Conditions))
		for i, cond := range c.Conditions {
			parts[i] = r.condition(cond)
		}
		if c.Logic == queryspec.LogicOr {
			return sq.Or(parts), nil
		}
		return sq.And(parts), nil
	default:
		return nil, fmt.Errorf("planner: unsupported clause %T", clause)
	}
}

func (r *renderer) condition(c *Condition) sq.Sqlizer {
	expr := r.expression(c.target)
	value := c.Params[c.names[0]]

	switch c.Operator {
	case queryspec.OpEqual:
		return sq.Eq{expr: value}
	case queryspec.OpNot:
		return sq.NotEq{expr: value}
	case queryspec.OpLike:
		return sq.Like{expr: value}
	case queryspec.OpILike:
		expr = "LOWER(" + expr + ")"
		if r.dialect == sqlutil.Postgres {
			return sq.ILike{expr: value}
		}
		return sq.Like{expr: value}
	case queryspec.OpBetween:
		return sq.Expr(expr+" BETWEEN ? AND ?", value, c.Params[c.names[1]])
	case queryspec.OpIn:
		return sq.Eq{expr: value}
	case queryspec.OpNotIn:
		return sq.NotEq{expr: value}
	case queryspec.OpAny:
		if r.dialect == sqlutil.Postgres {
			values, _ := value.([]string)
			return sq.Expr(expr+" = ANY(?)", pq.Array(values))
		}
		return sq.Eq{expr: value}
	case queryspec.OpLessThan:
		return sq.Lt{expr: value}
	case queryspec.OpLessThanOrEqual:
		return sq.LtOrEq{expr: value}
	case queryspec.OpMoreThan:
		return sq.Gt{expr: value}
	case queryspec.OpMoreThanOrEqual:
		return sq.GtOrEq{expr: value}
	default:
		panic(fmt.Sprintf("planner: unhandled operator %q", c.Operator))
	}
}
