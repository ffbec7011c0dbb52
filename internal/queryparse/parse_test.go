package queryparse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/queryspec"
)

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []queryspec.Filter
		wantErr string
	}{
		{
			name:  "implicit equal",
			input: "firstName~Amias",
			want:  []queryspec.Filter{{Key: "firstName", Operator: queryspec.OpEqual, Value: "Amias"}},
		},
		{
			name:  "explicit operator with whitespace",
			input: " age ~ MORE_THAN ~ 18 , lastName~LIKE~mit",
			want: []queryspec.Filter{
				{Key: "age", Operator: queryspec.OpMoreThan, Value: "18"},
				{Key: "lastName", Operator: queryspec.OpLike, Value: "mit"},
			},
		},
		{
			name:  "between keeps its comma",
			input: "age~BETWEEN~20,22",
			want:  []queryspec.Filter{{Key: "age", Operator: queryspec.OpBetween, Value: "20,22"}},
		},
		{
			name:  "in list followed by another filter",
			input: "status~IN~active,pending,firstName~Amias",
			want: []queryspec.Filter{
				{Key: "status", Operator: queryspec.OpIn, Value: "active,pending"},
				{Key: "firstName", Operator: queryspec.OpEqual, Value: "Amias"},
			},
		},
		{
			name:  "nested key",
			input: "organization.name~ILIKE~acme",
			want:  []queryspec.Filter{{Key: "organization.name", Operator: queryspec.OpILike, Value: "acme"}},
		},
		{name: "empty input", input: "  ", wantErr: "Filter input must be a non-empty string"},
		{name: "no separator", input: "firstName", wantErr: `Invalid filter format at position 0: "firstName". Expected format: "key~value" or "key~operator~value"`},
		{name: "too many fields", input: "a~EQUAL~b~c", wantErr: `Invalid filter format at position 0: "a~EQUAL~b~c"`},
		{name: "empty value", input: "firstName~", wantErr: `Empty key or value in filter at position 0: "firstName~"`},
		{name: "empty operator", input: "a~b,age~~1", wantErr: `Empty key, operator, or value in filter at position 1: "age~~1"`},
		{name: "unknown operator", input: "age~GT~1", wantErr: `Invalid operator "GT" in filter at position 0. Valid operators: EQUAL, NOT, LIKE`},
		{name: "lower case operator", input: "age~equal~1", wantErr: `Invalid operator "equal"`},
		{name: "empty segment", input: "a~1,,b~2", wantErr: `Invalid filter format at position 1: ""`},
		{name: "trailing comma", input: "firstName~Amias,", wantErr: `Invalid filter format at position 1: ""`},
		{name: "stray token after single value", input: "firstName~Amias,lastName", wantErr: `Invalid filter format at position 1: "lastName"`},
		{name: "trailing comma after list", input: "status~IN~a,b,", wantErr: `Invalid filter format at position 1: ""`},
		{name: "between single value", input: "age~BETWEEN~20", wantErr: "BETWEEN operator requires a comma-separated string value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilters(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, queryspec.IsValidationError(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilterGroups(t *testing.T) {
	groups, err := ParseFilterGroups("OR~age~EQUAL~20,age~EQUAL~22|and~status~IN~a,b")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, queryspec.LogicOr, groups[0].Logic)
	assert.Equal(t, []queryspec.Filter{
		{Key: "age", Operator: queryspec.OpEqual, Value: "20"},
		{Key: "age", Operator: queryspec.OpEqual, Value: "22"},
	}, groups[0].Conditions)
	assert.Equal(t, queryspec.LogicAnd, groups[1].Logic)
	assert.Equal(t, "a,b", groups[1].Conditions[0].Value)

	_, err = ParseFilterGroups("XOR~age~EQUAL~20")
	assert.EqualError(t, err, `Invalid logic operator "XOR" in filter group at position 0. Valid logic operators: AND, OR`)

	_, err = ParseFilterGroups("OR~age~EQUAL~20|OR")
	assert.EqualError(t, err, `Invalid filter group format at position 1: "OR". Expected format: "LOGIC~key~operator~value,..."`)

	_, err = ParseFilterGroups("OR~age~GT~20")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid filter group at position 0: Invalid operator \"GT\"")

	_, err = ParseFilterGroups("OR~a~1,,b~2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Invalid filter group at position 0: Invalid filter format at position 1: ""`)

	_, err = ParseFilterGroups("")
	assert.Error(t, err)
}

func TestParseRelations(t *testing.T) {
	relations, err := ParseRelations("organization, posts~INNER,tags~JOIN,owner~LEFT")
	require.NoError(t, err)
	assert.Equal(t, []queryspec.Relation{
		{Name: "organization", Join: queryspec.JoinLeftSelect},
		{Name: "posts", Join: queryspec.JoinInner},
		{Name: "tags", Join: queryspec.JoinLeftSelect},
		{Name: "owner", Join: queryspec.JoinLeft},
	}, relations)

	_, err = ParseRelations("organization~inner")
	assert.EqualError(t, err, `Invalid join type "inner" in relation at position 0. Valid join types: LEFT, LEFT_SELECT, INNER, INNER_SELECT, JOIN (legacy alias for LEFT_SELECT)`)

	_, err = ParseRelations("a~LEFT~x")
	assert.EqualError(t, err, `Invalid relation format at position 0: "a~LEFT~x". Expected format: "relationName" or "relationName~joinType"`)

	_, err = ParseRelations("a,~LEFT")
	assert.EqualError(t, err, `Empty relation name at position 1: "~LEFT"`)

	_, err = ParseRelations("")
	assert.EqualError(t, err, "Relations input must be a non-empty string")
}

func TestParseOrderBy(t *testing.T) {
	entries, err := ParseOrderBy("age~desc,lastName~ASC")
	require.NoError(t, err)
	assert.Equal(t, []queryspec.OrderEntry{
		{Key: "age", Direction: queryspec.Desc},
		{Key: "lastName", Direction: queryspec.Asc},
	}, entries)

	_, err = ParseOrderBy("age")
	assert.EqualError(t, err, `Invalid orderBy format at position 0: "age". Expected format: "field~direction"`)

	_, err = ParseOrderBy("age~UP")
	assert.EqualError(t, err, `Invalid direction "UP" in orderBy at position 0. Valid directions: ASC, DESC`)

	_, err = ParseOrderBy("~ASC")
	assert.EqualError(t, err, `Empty field name in orderBy at position 0: "~ASC"`)
}

func TestParseLimitAndOffset(t *testing.T) {
	limit, err := ParseLimit("25")
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	for _, bad := range []string{"0", "-1", "abc", "1.5"} {
		_, err := ParseLimit(bad)
		assert.EqualError(t, err, "Invalid limit value: "+bad+". Must be a positive integer.")
	}

	offset, err := ParseOffset("0")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	_, err = ParseOffset("-5")
	assert.EqualError(t, err, "Invalid offset value: -5. Must be a non-negative integer.")
}

func TestParseQuery(t *testing.T) {
	frag, err := ParseQuery("?filters=firstName~Amias&relations=organization&limit=5&ignored=x")
	require.NoError(t, err)

	assert.Len(t, frag.Where, 1)
	assert.Len(t, frag.Relations, 1)
	require.NotNil(t, frag.Limit)
	assert.Equal(t, 5, *frag.Limit)
	assert.Nil(t, frag.Offset)
	assert.Nil(t, frag.OrderBy)

	spec := frag.Spec()
	assert.Equal(t, 5, spec.Limit)
	assert.Equal(t, 0, spec.Offset)

	_, err = ParseQuery("filters=")
	assert.EqualError(t, err, "Filter input must be a non-empty string")

	_, err = ParseQuery("orderBy=age~DESC&limit=0")
	assert.EqualError(t, err, "Invalid limit value: 0. Must be a positive integer.")
}

func TestParseQueryDecodesValues(t *testing.T) {
	raw := "filters=" + url.QueryEscape("email~ILIKE~a@b.com,age~BETWEEN~20,22")
	frag, err := ParseQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, []queryspec.Filter{
		{Key: "email", Operator: queryspec.OpILike, Value: "a@b.com"},
		{Key: "age", Operator: queryspec.OpBetween, Value: "20,22"},
	}, frag.Where)
}

func TestParseRecord(t *testing.T) {
	frag, err := ParseRecord(Record{OrderBy: "age~DESC", Offset: "20"})
	require.NoError(t, err)
	assert.Nil(t, frag.Where)
	assert.Equal(t, []queryspec.OrderEntry{{Key: "age", Direction: queryspec.Desc}}, frag.OrderBy)
	require.NotNil(t, frag.Offset)
	assert.Equal(t, 20, *frag.Offset)
	assert.False(t, frag.Empty())

	empty, err := ParseRecord(Record{})
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, queryspec.New(), empty.Spec())

	_, err = ParseRecord(Record{Filters: "age~GT~1"})
	assert.Error(t, err)
}

func TestDecodeRecord(t *testing.T) {
	record, err := DecodeRecord(map[string]any{
		"filters": "firstName~Amias",
		"limit":   15,
		"offset":  "5",
		"unused":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, Record{Filters: "firstName~Amias", Limit: "15", Offset: "5"}, record)

	frag, err := ParseRecord(record)
	require.NoError(t, err)
	assert.Equal(t, 15, *frag.Limit)
}

func TestFragmentApplyTo(t *testing.T) {
	base := queryspec.New()
	base.OrderBy = []queryspec.OrderEntry{{Key: "id", Direction: queryspec.Asc}}
	base.Limit = 50

	limit := 5
	frag := Fragment{Limit: &limit, Where: []queryspec.Filter{{Key: "a", Operator: queryspec.OpEqual, Value: "1"}}}
	got := frag.ApplyTo(base)

	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, base.OrderBy, got.OrderBy)
	assert.Len(t, got.Where, 1)
	assert.Empty(t, base.Where)
}
