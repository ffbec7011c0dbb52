package planner

import (
	"maps"
	"strings"

	"listquery/internal/queryspec"
)

// Clause is one top-level predicate of a QueryPlan: a *Condition or a *Group.
type Clause interface {
	// Fragment returns the clause as a named-parameter SQL fragment.
	Fragment() string
	// Parameters returns the values bound by the fragment's placeholders.
	Parameters() map[string]any
	isClause()
}

// Condition is a single comparison. SQL uses named placeholders (":name", ":...name"
// for list expansion); Params holds a string or []string per name.
type Condition struct {
	Target   string             `json:"target"`
	Operator queryspec.Operator `json:"operator"`
	SQL      string             `json:"sql"`
	Params   map[string]any     `json:"params"`

	target target
	// names lists Params keys in placeholder order.
	names []string
}

func (c *Condition) Fragment() string { return c.SQL }

func (c *Condition) Parameters() map[string]any { return c.Params }

func (*Condition) isClause() {}

// Group is a bracketed set of conditions joined by one connective.
type Group struct {
	Logic      queryspec.Logic `json:"logic"`
	Conditions []*Condition    `json:"conditions"`
}

// SQL renders the group as "(a OR b)".
func (g *Group) SQL() string {
	parts := make([]string, len(g.Conditions))
	for i, c := range g.Conditions {
		parts[i] = c.SQL
	}
	return "(" + strings.Join(parts, " "+string(g.Logic)+" ") + ")"
}

func (g *Group) Fragment() string { return g.SQL() }

func (g *Group) Parameters() map[string]any {
	out := make(map[string]any)
	for _, c := range g.Conditions {
		maps.Copy(out, c.Params)
	}
	return out
}

func (*Group) isClause() {}

// Join is a relation joined into the query. Property is "table.relation" and Alias is
// the relation name that relation filters refer to.
type Join struct {
	Kind     queryspec.JoinKind `json:"kind"`
	Property string             `json:"property"`
	Alias    string             `json:"alias"`
	Select   bool               `json:"select"`
}

// OrderTerm orders by a resolved target.
type OrderTerm struct {
	Target    string              `json:"target"`
	Direction queryspec.Direction `json:"direction"`

	target target
}

// QueryPlan is the parameterized form of a specification. Where clauses are ANDed in
// order: top-level filters first, then one clause per filter group.
type QueryPlan struct {
	Table  string      `json:"table"`
	Where  []Clause    `json:"where"`
	Joins  []Join      `json:"joins"`
	Order  []OrderTerm `json:"order"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// WhereSQL joins every where clause with AND.
func (p *QueryPlan) WhereSQL() string {
	parts := make([]string, len(p.Where))
	for i, clause := range p.Where {
		parts[i] = clause.Fragment()
	}
	return strings.Join(parts, " AND ")
}

// Params merges the parameters of every where clause.
func (p *QueryPlan) Params() map[string]any {
	out := make(map[string]any)
	for _, clause := range p.Where {
		maps.Copy(out, clause.Parameters())
	}
	return out
}
