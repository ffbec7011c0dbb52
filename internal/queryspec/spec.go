// Package queryspec defines the list-query specification: filters, filter groups,
// relations, ordering and pagination, plus the schema-independent grammar checks
// applied to each of them.
package queryspec

import "strings"

// DefaultLimit is the page size used when a specification does not set one.
const DefaultLimit = 10

// Filter compares one field path against a value.
type Filter struct {
	Key      string   `json:"key"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	// Require marks a filter that survives a merge that replaces filters.
	Require bool `json:"require,omitempty"`
}

// Normalized returns f with surrounding whitespace trimmed from its key and value
// and the operator defaulted to EQUAL, the form the parser produces.
func (f Filter) Normalized() Filter {
	f.Key = strings.TrimSpace(f.Key)
	f.Value = strings.TrimSpace(f.Value)
	if f.Operator == "" {
		f.Operator = OpEqual
	}
	return f
}

// FilterGroup is a bracketed set of filters joined by a single connective.
type FilterGroup struct {
	Logic      Logic    `json:"logic"`
	Conditions []Filter `json:"conditions"`
}

// Relation names a relation to join into the compiled query.
type Relation struct {
	Name string   `json:"name"`
	Join JoinKind `json:"join,omitempty"`
}

// EffectiveJoin returns the relation's join kind, defaulting to LEFT_SELECT.
func (r Relation) EffectiveJoin() JoinKind {
	if r.Join == "" {
		return DefaultJoin
	}
	return r.Join
}

// OrderEntry orders results by one field path.
type OrderEntry struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Spec is a complete list-query specification.
type Spec struct {
	Where       []Filter      `json:"where,omitempty"`
	WhereGroups []FilterGroup `json:"whereGroups,omitempty"`
	Relations   []Relation    `json:"relations,omitempty"`
	OrderBy     []OrderEntry  `json:"orderBy,omitempty"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}

// New returns an empty specification with default pagination.
func New() Spec {
	return Spec{Limit: DefaultLimit}
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	out := Spec{
		Where:     cloneFilters(s.Where),
		Relations: append([]Relation(nil), s.Relations...),
		OrderBy:   append([]OrderEntry(nil), s.OrderBy...),
		Limit:     s.Limit,
		Offset:    s.Offset,
	}
	if s.WhereGroups != nil {
		out.WhereGroups = make([]FilterGroup, len(s.WhereGroups))
		for i, group := range s.WhereGroups {
			out.WhereGroups[i] = FilterGroup{
				Logic:      group.Logic,
				Conditions: cloneFilters(group.Conditions),
			}
		}
	}
	return out
}

// HasGroups reports whether the specification contains filter groups.
func (s Spec) HasGroups() bool {
	return len(s.WhereGroups) > 0
}

func cloneFilters(filters []Filter) []Filter {
	if filters == nil {
		return nil
	}
	return append([]Filter(nil), filters...)
}
