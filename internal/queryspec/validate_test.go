package queryspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOperatorValue(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		value   string
		wantErr string
	}{
		{name: "equal accepts scalar", op: OpEqual, value: "Amias"},
		{name: "empty value rejected", op: OpEqual, value: "", wantErr: "Value cannot be empty for operator EQUAL"},
		{name: "between two parts", op: OpBetween, value: "20,22"},
		{name: "between without comma", op: OpBetween, value: "20", wantErr: "BETWEEN operator requires a comma-separated string value"},
		{name: "between three parts", op: OpBetween, value: "1,2,3", wantErr: "BETWEEN operator requires exactly 2 comma-separated values"},
		{name: "between empty part", op: OpBetween, value: "1,", wantErr: "BETWEEN operator values cannot be empty"},
		{name: "in single value", op: OpIn, value: "a"},
		{name: "in list", op: OpIn, value: "a, b ,c"},
		{name: "not in empty part", op: OpNotIn, value: "a,,b", wantErr: "NOT_IN operator requires a comma-separated list of non-empty values"},
		{name: "any list", op: OpAny, value: "1,2"},
		{name: "unknown operator", op: Operator("CONTAINS"), value: "x", wantErr: `Invalid operator "CONTAINS"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOperatorValue(tt.op, tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(Filter{Key: "firstName", Operator: OpEqual, Value: "Amias"}))

	err := ValidateFilter(Filter{Key: " ", Operator: OpEqual, Value: "x"})
	require.Error(t, err)
	assert.Equal(t, "Filter key cannot be empty", err.Error())

	err = ValidateFilter(Filter{Key: "age", Operator: "BETWEEN", Value: "1"})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "age", verr.Field)

	err = ValidateFilter(Filter{Key: "age", Operator: "GT", Value: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Valid operators: EQUAL, NOT, LIKE, ILIKE, BETWEEN, IN, NOT_IN, ANY")

	err = ValidateFilter(Filter{Key: "a|b", Operator: OpEqual, Value: "1"})
	require.Error(t, err)
	assert.Equal(t, `Filter key a|b cannot contain "|"`, err.Error())
}

func TestFilterNormalized(t *testing.T) {
	f := Filter{Key: " name ", Value: " padded "}.Normalized()
	assert.Equal(t, Filter{Key: "name", Operator: OpEqual, Value: "padded"}, f)
}

func TestValidateFilterGroup(t *testing.T) {
	group := FilterGroup{
		Logic: LogicOr,
		Conditions: []Filter{
			{Key: "age", Operator: OpEqual, Value: "20"},
			{Key: "age", Operator: OpEqual, Value: "22"},
		},
	}
	assert.NoError(t, ValidateFilterGroup(group))

	assert.Error(t, ValidateFilterGroup(FilterGroup{Logic: "XOR", Conditions: group.Conditions}))
	assert.Error(t, ValidateFilterGroup(FilterGroup{Logic: LogicAnd}))
}

func TestValidateRelation(t *testing.T) {
	assert.NoError(t, ValidateRelation(Relation{Name: "organization"}))
	assert.NoError(t, ValidateRelation(Relation{Name: "organization", Join: JoinInner}))

	err := ValidateRelation(Relation{Name: ""})
	require.Error(t, err)
	assert.Equal(t, "Relation name cannot be empty", err.Error())

	err = ValidateRelation(Relation{Name: "organization", Join: "OUTER"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Valid join types: LEFT, LEFT_SELECT, INNER, INNER_SELECT")

	err = ValidateRelation(Relation{Name: "a,b"})
	require.Error(t, err)
	assert.Equal(t, `Relation name a,b cannot contain ","`, err.Error())
}

func TestValidateOrderEntry(t *testing.T) {
	assert.NoError(t, ValidateOrderEntry(OrderEntry{Key: "age", Direction: Desc}))
	assert.Error(t, ValidateOrderEntry(OrderEntry{Key: "", Direction: Asc}))
	assert.Error(t, ValidateOrderEntry(OrderEntry{Key: "age", Direction: "UP"}))
	assert.EqualError(t, ValidateOrderEntry(OrderEntry{Key: "age~x", Direction: Asc}), `Order field age~x cannot contain "~"`)
}

func TestValidateLimitAndOffset(t *testing.T) {
	assert.NoError(t, ValidateLimit(1))
	assert.EqualError(t, ValidateLimit(0), "Invalid limit value: 0. Must be a positive integer.")
	assert.NoError(t, ValidateOffset(0))
	assert.EqualError(t, ValidateOffset(-1), "Invalid offset value: -1. Must be a non-negative integer.")
}

func TestValidateSpec(t *testing.T) {
	spec := New()
	spec.Where = []Filter{{Key: "age", Operator: OpMoreThan, Value: "18"}}
	spec.Relations = []Relation{{Name: "organization"}}
	spec.OrderBy = []OrderEntry{{Key: "age", Direction: Asc}}
	assert.NoError(t, Validate(spec))

	spec.Limit = 0
	assert.Error(t, Validate(spec))
}

func TestSanitizeParameterName(t *testing.T) {
	name, err := SanitizeParameterName("organization.name_2")
	require.NoError(t, err)
	assert.Equal(t, "organization.name_2", name)

	for _, bad := range []string{"", "name;drop", "a b", "x'y", "na:me", "ümlaut"} {
		_, err := SanitizeParameterName(bad)
		assert.Error(t, err, bad)
	}

	safe, err := SafeParameterName("organization.name", 3)
	require.NoError(t, err)
	assert.Equal(t, "organization_name_3", safe)
}

func TestParsePath(t *testing.T) {
	path, err := ParsePath("firstName")
	require.NoError(t, err)
	assert.Equal(t, Path{Root: "firstName"}, path)
	assert.False(t, path.Nested())

	path, err = ParsePath("organization.name")
	require.NoError(t, err)
	assert.Equal(t, "organization", path.Root)
	assert.Equal(t, "name", path.Leaf)
	assert.Equal(t, "organization.name", path.String())

	for _, bad := range []string{"", "a.b.c", ".name", "name."} {
		_, err := ParsePath(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecClone(t *testing.T) {
	spec := New()
	spec.Where = []Filter{{Key: "age", Operator: OpEqual, Value: "20"}}
	spec.WhereGroups = []FilterGroup{{Logic: LogicOr, Conditions: []Filter{{Key: "a", Operator: OpEqual, Value: "1"}}}}

	clone := spec.Clone()
	clone.Where[0].Value = "30"
	clone.WhereGroups[0].Conditions[0].Value = "2"

	assert.Equal(t, "20", spec.Where[0].Value)
	assert.Equal(t, "1", spec.WhereGroups[0].Conditions[0].Value)
	assert.True(t, spec.HasGroups())
}

func TestParseTokens(t *testing.T) {
	kind, ok := ParseJoinKind("JOIN")
	assert.True(t, ok)
	assert.Equal(t, JoinLeftSelect, kind)

	_, ok = ParseJoinKind("left")
	assert.False(t, ok)

	dir, ok := ParseDirection(" desc ")
	assert.True(t, ok)
	assert.Equal(t, Desc, dir)

	logic, ok := ParseLogic("or")
	assert.True(t, ok)
	assert.Equal(t, LogicOr, logic)

	assert.Equal(t, JoinLeftSelect, Relation{Name: "x"}.EffectiveJoin())
	assert.True(t, JoinInnerSelect.Inner())
	assert.True(t, JoinInnerSelect.Selects())
	assert.False(t, JoinLeft.Selects())
	assert.True(t, OpNotIn.TakesList())
}
