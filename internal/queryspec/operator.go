package queryspec

import "strings"

// Operator is a comparison applied by a filter.
type Operator string

const (
	OpEqual           Operator = "EQUAL"
	OpNot             Operator = "NOT"
	OpLike            Operator = "LIKE"
	OpILike           Operator = "ILIKE"
	OpBetween         Operator = "BETWEEN"
	OpIn              Operator = "IN"
	OpNotIn           Operator = "NOT_IN"
	OpAny             Operator = "ANY"
	OpLessThan        Operator = "LESS_THAN"
	OpLessThanOrEqual Operator = "LESS_THAN_OR_EQUAL"
	OpMoreThan        Operator = "MORE_THAN"
	OpMoreThanOrEqual Operator = "MORE_THAN_OR_EQUAL"
)

// Operators lists every operator in wire-vocabulary order.
var Operators = []Operator{
	OpEqual,
	OpNot,
	OpLike,
	OpILike,
	OpBetween,
	OpIn,
	OpNotIn,
	OpAny,
	OpLessThan,
	OpLessThanOrEqual,
	OpMoreThan,
	OpMoreThanOrEqual,
}

// ParseOperator maps a wire token to an Operator. Tokens are case-sensitive.
func ParseOperator(token string) (Operator, bool) {
	op := Operator(token)
	return op, op.Valid()
}

// Valid reports whether o is part of the operator vocabulary.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNot, OpLike, OpILike, OpBetween, OpIn, OpNotIn, OpAny,
		OpLessThan, OpLessThanOrEqual, OpMoreThan, OpMoreThanOrEqual:
		return true
	default:
		return false
	}
}

// TakesList reports whether the operator's value is a comma-separated list.
func (o Operator) TakesList() bool {
	return o == OpIn || o == OpNotIn || o == OpAny
}

// OperatorNames joins the operator vocabulary for error messages.
func OperatorNames() string {
	names := make([]string, len(Operators))
	for i, op := range Operators {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}

// JoinKind selects how a relation is joined into the compiled query.
type JoinKind string

const (
	JoinLeft        JoinKind = "LEFT"
	JoinLeftSelect  JoinKind = "LEFT_SELECT"
	JoinInner       JoinKind = "INNER"
	JoinInnerSelect JoinKind = "INNER_SELECT"

	// LegacyJoinAlias is accepted on the wire and maps to JoinLeftSelect.
	LegacyJoinAlias = "JOIN"
)

// DefaultJoin is used when a relation does not name a join kind.
const DefaultJoin = JoinLeftSelect

// JoinKinds lists every join kind in wire-vocabulary order.
var JoinKinds = []JoinKind{JoinLeft, JoinLeftSelect, JoinInner, JoinInnerSelect}

// ParseJoinKind maps a wire token to a JoinKind, honoring the legacy alias.
func ParseJoinKind(token string) (JoinKind, bool) {
	if token == LegacyJoinAlias {
		return JoinLeftSelect, true
	}
	kind := JoinKind(token)
	return kind, kind.Valid()
}

// Valid reports whether j is a known join kind.
func (j JoinKind) Valid() bool {
	switch j {
	case JoinLeft, JoinLeftSelect, JoinInner, JoinInnerSelect:
		return true
	default:
		return false
	}
}

// Inner reports whether the join drops rows without a match.
func (j JoinKind) Inner() bool {
	return j == JoinInner || j == JoinInnerSelect
}

// Selects reports whether the joined relation is projected into the result.
func (j JoinKind) Selects() bool {
	return j == JoinLeftSelect || j == JoinInnerSelect
}

// JoinKindNames joins the join vocabulary for error messages.
func JoinKindNames() string {
	names := make([]string, len(JoinKinds))
	for i, kind := range JoinKinds {
		names[i] = string(kind)
	}
	return strings.Join(names, ", ")
}

// Logic is the boolean connective shared by all conditions of a filter group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic maps a token to a Logic, ignoring case.
func ParseLogic(token string) (Logic, bool) {
	switch Logic(strings.ToUpper(strings.TrimSpace(token))) {
	case LogicAnd:
		return LogicAnd, true
	case LogicOr:
		return LogicOr, true
	default:
		return "", false
	}
}

// Direction is an ordering direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection maps a token to a Direction, ignoring case.
func ParseDirection(token string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(token))) {
	case Asc:
		return Asc, true
	case Desc:
		return Desc, true
	default:
		return "", false
	}
}
