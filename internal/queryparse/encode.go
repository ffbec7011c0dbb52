package queryparse

import (
	"net/url"
	"strconv"
	"strings"

	"listquery/internal/queryspec"
)

// Encode serializes a specification into the wire format. Keys are emitted in a
// fixed order and limit is always present. Keys, relation names and values that
// contain a delimiter the format cannot escape are rejected, as are commas in values
// of operators that do not take a list. The parser trims whitespace around every
// key and value, so filters should be normalized (see queryspec.Filter.Normalized)
// before encoding if the result must parse back unchanged.
func Encode(spec queryspec.Spec) (string, error) {
	var parts []string

	if len(spec.Where) > 0 {
		encoded, err := EncodeFilters(spec.Where)
		if err != nil {
			return "", err
		}
		parts = append(parts, KeyFilters+"="+url.QueryEscape(encoded))
	}
	if len(spec.WhereGroups) > 0 {
		encoded, err := EncodeFilterGroups(spec.WhereGroups)
		if err != nil {
			return "", err
		}
		parts = append(parts, KeyFilterGroups+"="+url.QueryEscape(encoded))
	}
	if len(spec.Relations) > 0 {
		encoded, err := EncodeRelations(spec.Relations)
		if err != nil {
			return "", err
		}
		parts = append(parts, KeyRelations+"="+url.QueryEscape(encoded))
	}
	if len(spec.OrderBy) > 0 {
		encoded, err := EncodeOrderBy(spec.OrderBy)
		if err != nil {
			return "", err
		}
		parts = append(parts, KeyOrderBy+"="+url.QueryEscape(encoded))
	}
	parts = append(parts, KeyLimit+"="+strconv.Itoa(spec.Limit))
	if spec.Offset > 0 {
		parts = append(parts, KeyOffset+"="+strconv.Itoa(spec.Offset))
	}
	return strings.Join(parts, "&"), nil
}

// EncodeFilters renders filters as "key~OPERATOR~value" items.
func EncodeFilters(filters []queryspec.Filter) (string, error) {
	items := make([]string, 0, len(filters))
	for _, f := range filters {
		if delim, ok := queryspec.ReservedDelimiter(f.Key); ok {
			return "", queryspec.FieldErrorf(f.Key, "Filter %s cannot be encoded: %q is reserved", f.Key, delim)
		}
		if strings.Contains(f.Value, fieldSeparator) {
			return "", queryspec.FieldErrorf(f.Key, "Filter %s cannot be encoded: %q is reserved", f.Key, fieldSeparator)
		}
		op := f.Operator
		if op == "" {
			op = queryspec.OpEqual
		}
		if !takesCommaValue(op) && strings.Contains(f.Value, itemSeparator) {
			return "", queryspec.FieldErrorf(f.Key, "Filter %s cannot be encoded: %q is reserved for %s values", f.Key, itemSeparator, op)
		}
		items = append(items, f.Key+fieldSeparator+string(op)+fieldSeparator+f.Value)
	}
	return strings.Join(items, itemSeparator), nil
}

// EncodeFilterGroups renders groups as "LOGIC~filters" joined by "|".
func EncodeFilterGroups(groups []queryspec.FilterGroup) (string, error) {
	encoded := make([]string, 0, len(groups))
	for _, g := range groups {
		for _, f := range g.Conditions {
			if strings.Contains(f.Key, groupSeparator) || strings.Contains(f.Value, groupSeparator) {
				return "", queryspec.FieldErrorf(f.Key, "Filter %s cannot be encoded: %q is reserved", f.Key, groupSeparator)
			}
		}
		filters, err := EncodeFilters(g.Conditions)
		if err != nil {
			return "", err
		}
		encoded = append(encoded, string(g.Logic)+fieldSeparator+filters)
	}
	return strings.Join(encoded, groupSeparator), nil
}

// EncodeRelations renders relations as "name~JOINKIND" items.
func EncodeRelations(relations []queryspec.Relation) (string, error) {
	items := make([]string, 0, len(relations))
	for _, r := range relations {
		if delim, ok := queryspec.ReservedDelimiter(r.Name); ok {
			return "", queryspec.FieldErrorf(r.Name, "Relation %s cannot be encoded: %q is reserved", r.Name, delim)
		}
		items = append(items, r.Name+fieldSeparator+string(r.EffectiveJoin()))
	}
	return strings.Join(items, itemSeparator), nil
}

// EncodeOrderBy renders order entries as "key~DIRECTION" items.
func EncodeOrderBy(entries []queryspec.OrderEntry) (string, error) {
	items := make([]string, 0, len(entries))
	for _, o := range entries {
		if delim, ok := queryspec.ReservedDelimiter(o.Key); ok {
			return "", queryspec.FieldErrorf(o.Key, "Order field %s cannot be encoded: %q is reserved", o.Key, delim)
		}
		items = append(items, o.Key+fieldSeparator+string(o.Direction))
	}
	return strings.Join(items, itemSeparator), nil
}
