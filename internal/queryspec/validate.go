package queryspec

import (
	"fmt"
	"strings"
)

// ValidateFilter checks a filter's key, operator and value shape.
func ValidateFilter(f Filter) error {
	if strings.TrimSpace(f.Key) == "" {
		return Errorf("Filter key cannot be empty")
	}
	if delim, ok := ReservedDelimiter(f.Key); ok {
		return FieldErrorf(f.Key, "Filter key %s cannot contain %q", f.Key, delim)
	}
	if !f.Operator.Valid() {
		return FieldErrorf(f.Key, "Invalid operator %q. Valid operators: %s", f.Operator, OperatorNames())
	}
	if err := ValidateOperatorValue(f.Operator, f.Value); err != nil {
		if verr, ok := err.(*ValidationError); ok && verr.Field == "" {
			verr.Field = f.Key
		}
		return err
	}
	return nil
}

// ValidateOperatorValue checks that value has the shape op expects.
func ValidateOperatorValue(op Operator, value string) error {
	if value == "" {
		return Errorf("Value cannot be empty for operator %s", op)
	}

	switch op {
	case OpBetween:
		if !strings.Contains(value, ",") {
			return Errorf("BETWEEN operator requires a comma-separated string value (e.g., \"1,10\")")
		}
		parts := SplitList(value)
		if len(parts) != 2 {
			return Errorf("BETWEEN operator requires exactly 2 comma-separated values")
		}
		if parts[0] == "" || parts[1] == "" {
			return Errorf("BETWEEN operator values cannot be empty")
		}
	case OpIn, OpNotIn, OpAny:
		for _, part := range SplitList(value) {
			if part == "" {
				return Errorf("%s operator requires a comma-separated list of non-empty values", op)
			}
		}
	case OpEqual, OpNot, OpLike, OpILike, OpLessThan, OpLessThanOrEqual, OpMoreThan, OpMoreThanOrEqual:
	default:
		return Errorf("Invalid operator %q. Valid operators: %s", op, OperatorNames())
	}
	return nil
}

// ReservedDelimiter returns the first wire delimiter found in name. Keys and
// relation names may not contain the item, field or group separators.
func ReservedDelimiter(name string) (string, bool) {
	for _, delim := range []string{",", "~", "|"} {
		if strings.Contains(name, delim) {
			return delim, true
		}
	}
	return "", false
}

// SplitList splits a list-valued filter value on commas and trims each part.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ValidateFilterGroup checks the group's connective and every condition.
func ValidateFilterGroup(g FilterGroup) error {
	if g.Logic != LogicAnd && g.Logic != LogicOr {
		return Errorf("Invalid logic %q in filter group. Valid logic operators: AND, OR", g.Logic)
	}
	if len(g.Conditions) == 0 {
		return Errorf("Filter group must contain at least one condition")
	}
	for _, condition := range g.Conditions {
		if err := ValidateFilter(condition); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRelation checks a relation's name and join kind. An empty join kind is
// allowed and means LEFT_SELECT.
func ValidateRelation(r Relation) error {
	if strings.TrimSpace(r.Name) == "" {
		return Errorf("Relation name cannot be empty")
	}
	if delim, ok := ReservedDelimiter(r.Name); ok {
		return FieldErrorf(r.Name, "Relation name %s cannot contain %q", r.Name, delim)
	}
	if r.Join != "" && !r.Join.Valid() {
		return FieldErrorf(r.Name, "Invalid join type %q. Valid join types: %s", r.Join, JoinKindNames())
	}
	return nil
}

// ValidateOrderEntry checks an order entry's key and direction.
func ValidateOrderEntry(o OrderEntry) error {
	if strings.TrimSpace(o.Key) == "" {
		return Errorf("Order field cannot be empty")
	}
	if delim, ok := ReservedDelimiter(o.Key); ok {
		return FieldErrorf(o.Key, "Order field %s cannot contain %q", o.Key, delim)
	}
	if o.Direction != Asc && o.Direction != Desc {
		return FieldErrorf(o.Key, "Invalid direction %q. Valid directions: ASC, DESC", o.Direction)
	}
	return nil
}

// ValidateLimit requires a positive page size.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return FieldErrorf("limit", "Invalid limit value: %d. Must be a positive integer.", limit)
	}
	return nil
}

// ValidateOffset requires a non-negative offset.
func ValidateOffset(offset int) error {
	if offset < 0 {
		return FieldErrorf("offset", "Invalid offset value: %d. Must be a non-negative integer.", offset)
	}
	return nil
}

// Validate runs every grammar check over a full specification.
func Validate(s Spec) error {
	for _, f := range s.Where {
		if err := ValidateFilter(f); err != nil {
			return err
		}
	}
	for _, g := range s.WhereGroups {
		if err := ValidateFilterGroup(g); err != nil {
			return err
		}
	}
	for _, r := range s.Relations {
		if err := ValidateRelation(r); err != nil {
			return err
		}
	}
	for _, o := range s.OrderBy {
		if err := ValidateOrderEntry(o); err != nil {
			return err
		}
	}
	if err := ValidateLimit(s.Limit); err != nil {
		return err
	}
	return ValidateOffset(s.Offset)
}

// SanitizeParameterName accepts only letters, digits, underscore and dot. Anything
// else is rejected rather than stripped.
func SanitizeParameterName(name string) (string, error) {
	if name == "" {
		return "", Errorf("Invalid parameter name: %s. Only alphanumeric characters, underscore, and dot are allowed.", name)
	}
	for _, r := range name {
		if !isParameterRune(r) {
			return "", FieldErrorf(name, "Invalid parameter name: %s. Only alphanumeric characters, underscore, and dot are allowed.", name)
		}
	}
	return name, nil
}

// SafeParameterName turns a sanitized key into a placeholder name with a numeric suffix.
func SafeParameterName(key string, index int) (string, error) {
	name, err := SanitizeParameterName(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(name, ".", "_"), index), nil
}

func isParameterRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.':
		return true
	default:
		return false
	}
}
