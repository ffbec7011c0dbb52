// Package restrict gates list-query specifications against a whitelist or
// blacklist of filterable fields and joinable relations.
package restrict

import (
	"fmt"

	"listquery/internal/queryspec"
)

// Mode selects how a policy's lists are interpreted.
type Mode string

const (
	Whitelist Mode = "whitelist"
	Blacklist Mode = "blacklist"
)

// Axis names the part of a specification a list applies to.
type Axis string

const (
	AxisWhereField Axis = "whereField"
	AxisRelation   Axis = "relation"
)

// Policy restricts filter keys and relation names. A nil list leaves that axis
// unrestricted. Under Whitelist an empty, non-nil list allows nothing.
type Policy struct {
	Mode        Mode     `mapstructure:"mode" json:"mode" yaml:"mode"`
	WhereFields []string `mapstructure:"where_fields" json:"whereFields,omitempty" yaml:"where_fields"`
	Relations   []string `mapstructure:"relations" json:"relations,omitempty" yaml:"relations"`
	Strict      bool     `mapstructure:"strict" json:"strict" yaml:"strict"`
}

// Validate checks the policy mode.
func (p Policy) Validate() error {
	switch p.Mode {
	case Whitelist, Blacklist:
		return nil
	default:
		return fmt.Errorf("invalid restriction mode %q (expected %q or %q)", p.Mode, Whitelist, Blacklist)
	}
}

func (p Policy) list(axis Axis) []string {
	switch axis {
	case AxisWhereField:
		return p.WhereFields
	case AxisRelation:
		return p.Relations
	default:
		panic(fmt.Sprintf("restrict: unknown axis %q", axis))
	}
}

// IsAllowed reports whether name passes the policy on axis. Names must match a
// list entry exactly, so nested keys such as "organization.name" are listed in full.
func IsAllowed(name string, policy *Policy, axis Axis) bool {
	if policy == nil {
		return true
	}
	list := policy.list(axis)
	if list == nil {
		return true
	}
	listed := contains(list, name)
	if policy.Mode == Blacklist {
		return !listed
	}
	return listed
}

// ApplyWhere returns the filters allowed by the policy.
func ApplyWhere(filters []queryspec.Filter, policy *Policy) []queryspec.Filter {
	if filters == nil {
		return nil
	}
	out := make([]queryspec.Filter, 0, len(filters))
	for _, f := range filters {
		if IsAllowed(f.Key, policy, AxisWhereField) {
			out = append(out, f)
		}
	}
	return out
}

// ApplyGroups filters each group's conditions and drops groups left empty.
func ApplyGroups(groups []queryspec.FilterGroup, policy *Policy) []queryspec.FilterGroup {
	if groups == nil {
		return nil
	}
	out := make([]queryspec.FilterGroup, 0, len(groups))
	for _, g := range groups {
		conditions := ApplyWhere(g.Conditions, policy)
		if len(conditions) == 0 {
			continue
		}
		out = append(out, queryspec.FilterGroup{Logic: g.Logic, Conditions: conditions})
	}
	return out
}

// ApplyRelations returns the relations allowed by the policy.
func ApplyRelations(relations []queryspec.Relation, policy *Policy) []queryspec.Relation {
	if relations == nil {
		return nil
	}
	out := make([]queryspec.Relation, 0, len(relations))
	for _, r := range relations {
		if IsAllowed(r.Name, policy, AxisRelation) {
			out = append(out, r)
		}
	}
	return out
}

// Apply returns a copy of spec with every disallowed filter, group condition and
// relation removed. Ordering and pagination pass through.
func Apply(spec queryspec.Spec, policy *Policy) queryspec.Spec {
	out := spec.Clone()
	out.Where = ApplyWhere(spec.Where, policy)
	out.WhereGroups = ApplyGroups(spec.WhereGroups, policy)
	out.Relations = ApplyRelations(spec.Relations, policy)
	return out
}

// Enforce applies the policy. Strict policies fail with a *RestrictionError when
// anything would be removed; otherwise the filtered copy is returned.
func Enforce(spec queryspec.Spec, policy *Policy) (queryspec.Spec, error) {
	if policy == nil {
		return spec.Clone(), nil
	}
	if policy.Strict {
		if violations := Violations(spec, policy); len(violations) > 0 {
			return queryspec.Spec{}, NewRestrictionError(violations)
		}
		return spec.Clone(), nil
	}
	return Apply(spec, policy), nil
}

func contains(list []string, name string) bool {
	for _, entry := range list {
		if entry == name {
			return true
		}
	}
	return false
}
