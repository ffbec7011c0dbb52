package restrict

import (
	"errors"
	"fmt"
	"strings"

	"listquery/internal/queryspec"
)

// Violation codes.
const (
	CodeBlacklisted    = "blacklisted"
	CodeNotWhitelisted = "not_whitelisted"
	// CodeMixed classifies an error holding both blacklisted and not-whitelisted violations.
	CodeMixed = "mixed_restrictions"
)

// Violation is one disallowed field or relation.
type Violation struct {
	Field   string `json:"field"`
	Axis    Axis   `json:"axis"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RestrictionError aggregates every violation found in a strict check.
type RestrictionError struct {
	Code   string      `json:"code"`
	Errors []Violation `json:"errors"`
}

// NewRestrictionError builds the aggregate error for violations.
func NewRestrictionError(violations []Violation) *RestrictionError {
	var blacklisted, notWhitelisted bool
	for _, v := range violations {
		switch v.Code {
		case CodeBlacklisted:
			blacklisted = true
		case CodeNotWhitelisted:
			notWhitelisted = true
		}
	}
	code := CodeNotWhitelisted
	switch {
	case blacklisted && notWhitelisted:
		code = CodeMixed
	case blacklisted:
		code = CodeBlacklisted
	}
	return &RestrictionError{Code: code, Errors: violations}
}

func (e *RestrictionError) Error() string {
	var blacklisted, notWhitelisted []string
	for _, v := range e.Errors {
		switch v.Code {
		case CodeBlacklisted:
			blacklisted = append(blacklisted, v.Field)
		case CodeNotWhitelisted:
			notWhitelisted = append(notWhitelisted, v.Field)
		}
	}

	switch {
	case len(blacklisted) > 0 && len(notWhitelisted) > 0:
		return fmt.Sprintf("Restriction violations: blacklisted fields (%s), not whitelisted fields (%s)",
			strings.Join(blacklisted, ", "), strings.Join(notWhitelisted, ", "))
	case len(blacklisted) > 0:
		return "The following fields are blacklisted: " + strings.Join(blacklisted, ", ")
	case len(notWhitelisted) > 0:
		return "The following fields are not whitelisted: " + strings.Join(notWhitelisted, ", ")
	default:
		return "Restriction violations"
	}
}

// IsRestrictionError reports whether err wraps a RestrictionError.
func IsRestrictionError(err error) bool {
	var target *RestrictionError
	return errors.As(err, &target)
}

// Violations lists every disallowed name in spec: where filters first, then group
// conditions, then relations. Each (axis, name) pair appears once.
func Violations(spec queryspec.Spec, policy *Policy) []Violation {
	if policy == nil {
		return nil
	}

	var out []Violation
	seen := make(map[string]struct{})
	add := func(name string, axis Axis) {
		if IsAllowed(name, policy, axis) {
			return
		}
		key := string(axis) + "\x00" + name
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, newViolation(name, axis, policy.Mode))
	}

	for _, f := range spec.Where {
		add(f.Key, AxisWhereField)
	}
	for _, g := range spec.WhereGroups {
		for _, f := range g.Conditions {
			add(f.Key, AxisWhereField)
		}
	}
	for _, r := range spec.Relations {
		add(r.Name, AxisRelation)
	}
	return out
}

func newViolation(name string, axis Axis, mode Mode) Violation {
	subject := "Field"
	if axis == AxisRelation {
		subject = "Relation"
	}
	if mode == Blacklist {
		return Violation{
			Field:   name,
			Axis:    axis,
			Code:    CodeBlacklisted,
			Message: fmt.Sprintf("%s '%s' is blacklisted", subject, name),
		}
	}
	return Violation{
		Field:   name,
		Axis:    axis,
		Code:    CodeNotWhitelisted,
		Message: fmt.Sprintf("%s '%s' is not whitelisted", subject, name),
	}
}
