package queryparse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"

	"listquery/internal/queryspec"
)

// Wire keys recognized in query strings and records.
const (
	KeyFilters      = "filters"
	KeyFilterGroups = "filterGroups"
	KeyRelations    = "relations"
	KeyOrderBy      = "orderBy"
	KeyLimit        = "limit"
	KeyOffset       = "offset"
)

// Record is the raw, still-encoded form of a list query, as bound from a request
// or decoded from a generic map. Empty fields are treated as absent.
type Record struct {
	Filters      string `mapstructure:"filters" json:"filters,omitempty"`
	FilterGroups string `mapstructure:"filterGroups" json:"filterGroups,omitempty"`
	Relations    string `mapstructure:"relations" json:"relations,omitempty"`
	OrderBy      string `mapstructure:"orderBy" json:"orderBy,omitempty"`
	Limit        string `mapstructure:"limit" json:"limit,omitempty"`
	Offset       string `mapstructure:"offset" json:"offset,omitempty"`
}

// Fragment holds only the parts of a specification present in the input. Nil
// slices and pointers mean the key was absent.
type Fragment struct {
	Where       []queryspec.Filter
	WhereGroups []queryspec.FilterGroup
	Relations   []queryspec.Relation
	OrderBy     []queryspec.OrderEntry
	Limit       *int
	Offset      *int
}

// Empty reports whether no key was present.
func (f Fragment) Empty() bool {
	return f.Where == nil && f.WhereGroups == nil && f.Relations == nil &&
		f.OrderBy == nil && f.Limit == nil && f.Offset == nil
}

// Spec applies the fragment over a default specification.
func (f Fragment) Spec() queryspec.Spec {
	return f.ApplyTo(queryspec.New())
}

// ApplyTo returns base with every present part of the fragment replacing the
// corresponding part of base.
func (f Fragment) ApplyTo(base queryspec.Spec) queryspec.Spec {
	out := base.Clone()
	if f.Where != nil {
		out.Where = f.Where
	}
	if f.WhereGroups != nil {
		out.WhereGroups = f.WhereGroups
	}
	if f.Relations != nil {
		out.Relations = f.Relations
	}
	if f.OrderBy != nil {
		out.OrderBy = f.OrderBy
	}
	if f.Limit != nil {
		out.Limit = *f.Limit
	}
	if f.Offset != nil {
		out.Offset = *f.Offset
	}
	return out
}

// ParseRecord parses every non-empty field of r.
func ParseRecord(r Record) (Fragment, error) {
	var frag Fragment
	var err error

	if r.Filters != "" {
		if frag.Where, err = ParseFilters(r.Filters); err != nil {
			return Fragment{}, err
		}
	}
	if r.FilterGroups != "" {
		if frag.WhereGroups, err = ParseFilterGroups(r.FilterGroups); err != nil {
			return Fragment{}, err
		}
	}
	if r.Relations != "" {
		if frag.Relations, err = ParseRelations(r.Relations); err != nil {
			return Fragment{}, err
		}
	}
	if r.OrderBy != "" {
		if frag.OrderBy, err = ParseOrderBy(r.OrderBy); err != nil {
			return Fragment{}, err
		}
	}
	if r.Limit != "" {
		limit, err := ParseLimit(r.Limit)
		if err != nil {
			return Fragment{}, err
		}
		frag.Limit = &limit
	}
	if r.Offset != "" {
		offset, err := ParseOffset(r.Offset)
		if err != nil {
			return Fragment{}, err
		}
		frag.Offset = &offset
	}
	return frag, nil
}

// DecodeRecord converts a generic map, such as a decoded JSON body, into a Record.
// Numbers are accepted for limit and offset.
func DecodeRecord(input map[string]any) (Record, error) {
	var record Record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &record,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to create record decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return Record{}, queryspec.Errorf("Invalid query record: %s", err.Error())
	}
	return record, nil
}

// ParseValues parses recognized keys from already-decoded URL values. A list key
// that is present with an empty value is rejected by its parser.
func ParseValues(values url.Values) (Fragment, error) {
	var frag Fragment
	var err error

	if raw, ok := lookup(values, KeyFilters); ok {
		if frag.Where, err = ParseFilters(raw); err != nil {
			return Fragment{}, err
		}
	}
	if raw, ok := lookup(values, KeyFilterGroups); ok {
		if frag.WhereGroups, err = ParseFilterGroups(raw); err != nil {
			return Fragment{}, err
		}
	}
	if raw, ok := lookup(values, KeyRelations); ok {
		if frag.Relations, err = ParseRelations(raw); err != nil {
			return Fragment{}, err
		}
	}
	if raw, ok := lookup(values, KeyOrderBy); ok {
		if frag.OrderBy, err = ParseOrderBy(raw); err != nil {
			return Fragment{}, err
		}
	}
	if raw, ok := lookup(values, KeyLimit); ok {
		limit, err := ParseLimit(raw)
		if err != nil {
			return Fragment{}, err
		}
		frag.Limit = &limit
	}
	if raw, ok := lookup(values, KeyOffset); ok {
		offset, err := ParseOffset(raw)
		if err != nil {
			return Fragment{}, err
		}
		frag.Offset = &offset
	}
	return frag, nil
}

// ParseQuery parses a raw URL query string. A leading "?" is ignored.
func ParseQuery(raw string) (Fragment, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return Fragment{}, queryspec.Errorf("Invalid query string: %s", err.Error())
	}
	return ParseValues(values)
}

func lookup(values url.Values, key string) (string, bool) {
	all, ok := values[key]
	if !ok || len(all) == 0 {
		return "", false
	}
	return all[0], true
}
