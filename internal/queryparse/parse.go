// Package queryparse decodes the delimiter-based list-query wire format into
// specification fragments and encodes specifications back into it.
//
// Every parser is all-or-nothing: the first malformed item aborts the call and no
// partial result is returned.
package queryparse

import (
	"strconv"
	"strings"

	"listquery/internal/queryspec"
)

const (
	itemSeparator  = ","
	fieldSeparator = "~"
	groupSeparator = "|"
)

// ParseFilters decodes "key~value" and "key~OPERATOR~value" items separated by
// commas. For BETWEEN, IN, NOT_IN and ANY a following segment without "~" continues
// the item's value, which keeps list values such as "age~BETWEEN~20,22" intact.
// Any other segment is an item of its own.
func ParseFilters(input string) ([]queryspec.Filter, error) {
	if strings.TrimSpace(input) == "" {
		return nil, queryspec.Errorf("Filter input must be a non-empty string")
	}

	items := splitFilterItems(input)
	filters := make([]queryspec.Filter, 0, len(items))
	for index, item := range items {
		filter, err := parseFilterItem(item, index)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

func splitFilterItems(input string) []string {
	var items []string
	for _, segment := range strings.Split(input, itemSeparator) {
		if len(items) > 0 && continuesList(items[len(items)-1], segment) {
			items[len(items)-1] += itemSeparator + segment
			continue
		}
		items = append(items, segment)
	}
	return items
}

// continuesList reports whether segment is another element of item's list value.
func continuesList(item, segment string) bool {
	if strings.TrimSpace(segment) == "" || strings.Contains(segment, fieldSeparator) {
		return false
	}
	parts := strings.Split(item, fieldSeparator)
	if len(parts) != 3 {
		return false
	}
	op, ok := queryspec.ParseOperator(strings.TrimSpace(parts[1]))
	return ok && takesCommaValue(op)
}

func takesCommaValue(op queryspec.Operator) bool {
	return op == queryspec.OpBetween || op.TakesList()
}

func parseFilterItem(item string, index int) (queryspec.Filter, error) {
	parts := strings.Split(strings.TrimSpace(item), fieldSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 2:
		key, value := parts[0], parts[1]
		if key == "" || value == "" {
			return queryspec.Filter{}, queryspec.Errorf("Empty key or value in filter at position %d: %q", index, item)
		}
		return queryspec.Filter{Key: key, Operator: queryspec.OpEqual, Value: value}, nil
	case 3:
		key, token, value := parts[0], parts[1], parts[2]
		if key == "" || token == "" || value == "" {
			return queryspec.Filter{}, queryspec.Errorf("Empty key, operator, or value in filter at position %d: %q", index, item)
		}
		op, ok := queryspec.ParseOperator(token)
		if !ok {
			return queryspec.Filter{}, queryspec.FieldErrorf(key, "Invalid operator %q in filter at position %d. Valid operators: %s", token, index, queryspec.OperatorNames())
		}
		filter := queryspec.Filter{Key: key, Operator: op, Value: value}
		if err := queryspec.ValidateOperatorValue(op, value); err != nil {
			return queryspec.Filter{}, queryspec.FieldErrorf(key, "Invalid value in filter at position %d: %s", index, err.Error())
		}
		return filter, nil
	default:
		return queryspec.Filter{}, queryspec.Errorf("Invalid filter format at position %d: %q. Expected format: \"key~value\" or \"key~operator~value\"", index, item)
	}
}

// ParseFilterGroups decodes "LOGIC~<filters>" groups separated by "|". Only the
// logic token before the first "~" is consumed; the rest is parsed as filters.
func ParseFilterGroups(input string) ([]queryspec.FilterGroup, error) {
	if strings.TrimSpace(input) == "" {
		return nil, queryspec.Errorf("Filter groups input must be a non-empty string")
	}

	rawGroups := strings.Split(input, groupSeparator)
	groups := make([]queryspec.FilterGroup, 0, len(rawGroups))
	for index, raw := range rawGroups {
		trimmed := strings.TrimSpace(raw)
		cut := strings.Index(trimmed, fieldSeparator)
		if cut < 0 {
			return nil, queryspec.Errorf("Invalid filter group format at position %d: %q. Expected format: \"LOGIC~key~operator~value,...\"", index, raw)
		}

		token := trimmed[:cut]
		logic, ok := queryspec.ParseLogic(token)
		if !ok {
			return nil, queryspec.Errorf("Invalid logic operator %q in filter group at position %d. Valid logic operators: AND, OR", strings.TrimSpace(token), index)
		}

		conditions, err := ParseFilters(trimmed[cut+1:])
		if err != nil {
			return nil, queryspec.Errorf("Invalid filter group at position %d: %s", index, err.Error())
		}
		groups = append(groups, queryspec.FilterGroup{Logic: logic, Conditions: conditions})
	}
	return groups, nil
}

// ParseRelations decodes "name" and "name~JOINKIND" items separated by commas.
func ParseRelations(input string) ([]queryspec.Relation, error) {
	if strings.TrimSpace(input) == "" {
		return nil, queryspec.Errorf("Relations input must be a non-empty string")
	}

	items := strings.Split(input, itemSeparator)
	relations := make([]queryspec.Relation, 0, len(items))
	for index, item := range items {
		parts := strings.Split(strings.TrimSpace(item), fieldSeparator)
		if len(parts) > 2 {
			return nil, queryspec.Errorf("Invalid relation format at position %d: %q. Expected format: \"relationName\" or \"relationName~joinType\"", index, item)
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, queryspec.Errorf("Empty relation name at position %d: %q", index, item)
		}

		relation := queryspec.Relation{Name: name, Join: queryspec.DefaultJoin}
		if len(parts) == 2 {
			token := strings.TrimSpace(parts[1])
			kind, ok := queryspec.ParseJoinKind(token)
			if !ok {
				return nil, queryspec.FieldErrorf(name, "Invalid join type %q in relation at position %d. Valid join types: %s, %s (legacy alias for %s)",
					token, index, queryspec.JoinKindNames(), queryspec.LegacyJoinAlias, queryspec.JoinLeftSelect)
			}
			relation.Join = kind
		}
		relations = append(relations, relation)
	}
	return relations, nil
}

// ParseOrderBy decodes "key~direction" items separated by commas. Directions are
// case-insensitive.
func ParseOrderBy(input string) ([]queryspec.OrderEntry, error) {
	if strings.TrimSpace(input) == "" {
		return nil, queryspec.Errorf("OrderBy input must be a non-empty string")
	}

	items := strings.Split(input, itemSeparator)
	entries := make([]queryspec.OrderEntry, 0, len(items))
	for index, item := range items {
		parts := strings.Split(strings.TrimSpace(item), fieldSeparator)
		if len(parts) != 2 {
			return nil, queryspec.Errorf("Invalid orderBy format at position %d: %q. Expected format: \"field~direction\"", index, item)
		}

		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, queryspec.Errorf("Empty field name in orderBy at position %d: %q", index, item)
		}
		direction, ok := queryspec.ParseDirection(parts[1])
		if !ok {
			return nil, queryspec.FieldErrorf(key, "Invalid direction %q in orderBy at position %d. Valid directions: ASC, DESC", strings.TrimSpace(parts[1]), index)
		}
		entries = append(entries, queryspec.OrderEntry{Key: key, Direction: direction})
	}
	return entries, nil
}

// ParseLimit decodes a positive page size.
func ParseLimit(raw string) (int, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		return 0, queryspec.FieldErrorf("limit", "Invalid limit value: %s. Must be a positive integer.", raw)
	}
	return limit, nil
}

// ParseOffset decodes a non-negative row offset.
func ParseOffset(raw string) (int, error) {
	offset, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || offset < 0 {
		return 0, queryspec.FieldErrorf("offset", "Invalid offset value: %s. Must be a non-negative integer.", raw)
	}
	return offset, nil
}
