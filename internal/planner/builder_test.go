package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/queryspec"
)

func TestToQueryBuilderFragments(t *testing.T) {
	users := usersTable(t, testSchema())

	tests := []struct {
		name       string
		filter     queryspec.Filter
		wantSQL    string
		wantParams map[string]any
	}{
		{
			name:       "between",
			filter:     queryspec.Filter{Key: "age", Operator: queryspec.OpBetween, Value: "20,22"},
			wantSQL:    "users.age BETWEEN :FROMage_0 AND :TOage_0",
			wantParams: map[string]any{"FROMage_0": "20", "TOage_0": "22"},
		},
		{
			name:       "ilike lowers target and value",
			filter:     queryspec.Filter{Key: "email", Operator: queryspec.OpILike, Value: "Foo"},
			wantSQL:    "LOWER(users.email) ILIKE :email_0",
			wantParams: map[string]any{"email_0": "%foo%"},
		},
		{
			name:       "like",
			filter:     queryspec.Filter{Key: "email", Operator: queryspec.OpLike, Value: "Foo"},
			wantSQL:    "users.email LIKE :email_0",
			wantParams: map[string]any{"email_0": "%Foo%"},
		},
		{
			name:       "in",
			filter:     queryspec.Filter{Key: "status", Operator: queryspec.OpIn, Value: "a,b"},
			wantSQL:    "users.status IN (:...status_0Ids)",
			wantParams: map[string]any{"status_0Ids": []string{"a", "b"}},
		},
		{
			name:       "not in",
			filter:     queryspec.Filter{Key: "status", Operator: queryspec.OpNotIn, Value: "a"},
			wantSQL:    "users.status NOT IN (:...status_0Ids)",
			wantParams: map[string]any{"status_0Ids": []string{"a"}},
		},
		{
			name:       "any",
			filter:     queryspec.Filter{Key: "status", Operator: queryspec.OpAny, Value: "a,b"},
			wantSQL:    "users.status = ANY(:status_0Ids)",
			wantParams: map[string]any{"status_0Ids": []string{"a", "b"}},
		},
		{
			name:       "relation field",
			filter:     queryspec.Filter{Key: "organization.name", Operator: queryspec.OpEqual, Value: "Acme"},
			wantSQL:    "organization.name = :organization_name_0",
			wantParams: map[string]any{"organization_name_0": "Acme"},
		},
		{
			name:       "json key",
			filter:     queryspec.Filter{Key: "address.city", Operator: queryspec.OpEqual, Value: "Paris"},
			wantSQL:    "users.address->>'city' = :address_city_0",
			wantParams: map[string]any{"address_city_0": "Paris"},
		},
		{
			name:       "not",
			filter:     queryspec.Filter{Key: "status", Operator: queryspec.OpNot, Value: "x"},
			wantSQL:    "users.status != :status_0",
			wantParams: map[string]any{"status_0": "x"},
		},
		{
			name:       "comparisons",
			filter:     queryspec.Filter{Key: "age", Operator: queryspec.OpMoreThanOrEqual, Value: "18"},
			wantSQL:    "users.age >= :age_0",
			wantParams: map[string]any{"age_0": "18"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := queryspec.New()
			spec.Where = []queryspec.Filter{tt.filter}

			plan, err := ToQueryBuilder(spec, users)
			require.NoError(t, err)
			require.Len(t, plan.Where, 1)
			cond, ok := plan.Where[0].(*Condition)
			require.True(t, ok)
			assert.Equal(t, tt.wantSQL, cond.SQL)
			assert.Equal(t, tt.wantParams, cond.Params)
		})
	}
}

func TestToQueryBuilderGroups(t *testing.T) {
	users := usersTable(t, testSchema())

	spec := queryspec.New()
	spec.WhereGroups = []queryspec.FilterGroup{{
		Logic: queryspec.LogicOr,
		Conditions: []queryspec.Filter{
			{Key: "age", Operator: queryspec.OpEqual, Value: "20"},
			{Key: "age", Operator: queryspec.OpEqual, Value: "22"},
		},
	}}

	plan, err := ToQueryBuilder(spec, users)
	require.NoError(t, err)
	require.Len(t, plan.Where, 1)
	group, ok := plan.Where[0].(*Group)
	require.True(t, ok)
	assert.Equal(t, "(users.age = :age_0 OR users.age = :age_1)", group.SQL())
	assert.Equal(t, map[string]any{"age_0": "20", "age_1": "22"}, plan.Params())
}

func TestToQueryBuilderWhereThenGroups(t *testing.T) {
	users := usersTable(t, testSchema())

	spec := queryspec.New()
	spec.Where = []queryspec.Filter{
		{Key: "status", Operator: queryspec.OpEqual, Value: "active"},
		{Key: "age", Operator: queryspec.OpMoreThan, Value: "18"},
	}
	spec.WhereGroups = []queryspec.FilterGroup{
		{Logic: queryspec.LogicOr, Conditions: []queryspec.Filter{
			{Key: "email", Operator: queryspec.OpLike, Value: "a"},
			{Key: "email", Operator: queryspec.OpLike, Value: "b"},
		}},
		{Logic: queryspec.LogicAnd, Conditions: []queryspec.Filter{
			{Key: "age", Operator: queryspec.OpLessThan, Value: "65"},
		}},
	}

	plan, err := ToQueryBuilder(spec, users)
	require.NoError(t, err)
	assert.Equal(t,
		"users.status = :status_0 AND users.age > :age_1 AND (users.email LIKE :email_0 OR users.email LIKE :email_1) AND (users.age < :age_1000)",
		plan.WhereSQL())
}

func TestToQueryBuilderParameterNamesAreUnique(t *testing.T) {
	users := usersTable(t, testSchema())

	spec := queryspec.New()
	spec.Where = []queryspec.Filter{
		{Key: "age", Operator: queryspec.OpMoreThan, Value: "1"},
		{Key: "age", Operator: queryspec.OpLessThan, Value: "9"},
	}
	spec.WhereGroups = []queryspec.FilterGroup{
		{Logic: queryspec.LogicOr, Conditions: []queryspec.Filter{
			{Key: "age", Operator: queryspec.OpEqual, Value: "3"},
			{Key: "age", Operator: queryspec.OpEqual, Value: "4"},
		}},
	}

	plan, err := ToQueryBuilder(spec, users)
	require.NoError(t, err)

	group := plan.Where[2].(*Group)
	assert.Equal(t, "(users.age = :age_1000 OR users.age = :age_1001)", group.SQL(),
		"group names colliding with top-level names are bumped")
	assert.Len(t, plan.Params(), 4)
}

func TestToQueryBuilderRejectsUnsafeKeys(t *testing.T) {
	users := usersTable(t, testSchema())
	users.Columns = append(users.Columns, users.Columns[0])
	users.Columns[len(users.Columns)-1].Name = "bad-name"

	spec := queryspec.New()
	spec.Where = []queryspec.Filter{{Key: "bad-name", Operator: queryspec.OpEqual, Value: "x"}}

	_, err := ToQueryBuilder(spec, users)
	require.Error(t, err)
	assert.True(t, queryspec.IsValidationError(err))
	assert.Contains(t, err.Error(), "Invalid parameter name: bad-name")
}

func TestToQueryBuilderJoins(t *testing.T) {
	users := usersTable(t, testSchema())

	tests := []struct {
		join queryspec.JoinKind
		want Join
	}{
		{queryspec.JoinLeft, Join{Kind: queryspec.JoinLeft, Property: "users.organization", Alias: "organization"}},
		{queryspec.JoinLeftSelect, Join{Kind: queryspec.JoinLeftSelect, Property: "users.organization", Alias: "organization", Select: true}},
		{queryspec.JoinInner, Join{Kind: queryspec.JoinInner, Property: "users.organization", Alias: "organization"}},
		{queryspec.JoinInnerSelect, Join{Kind: queryspec.JoinInnerSelect, Property: "users.organization", Alias: "organization", Select: true}},
		{"", Join{Kind: queryspec.JoinLeftSelect, Property: "users.organization", Alias: "organization", Select: true}},
		{"CROSS", Join{Kind: queryspec.JoinLeftSelect, Property: "users.organization", Alias: "organization", Select: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.join), func(t *testing.T) {
			spec := queryspec.New()
			spec.Relations = []queryspec.Relation{{Name: "organization", Join: tt.join}}
			plan, err := ToQueryBuilder(spec, users)
			require.NoError(t, err)
			assert.Equal(t, []Join{tt.want}, plan.Joins)
		})
	}

	spec := queryspec.New()
	spec.Relations = []queryspec.Relation{{Name: "employer"}}
	_, err := ToQueryBuilder(spec, users)
	assert.True(t, queryspec.IsValidationError(err))
}

func TestToQueryBuilderOrder(t *testing.T) {
	users := usersTable(t, testSchema())

	spec := queryspec.New()
	spec.OrderBy = []queryspec.OrderEntry{
		{Key: "age", Direction: queryspec.Desc},
		{Key: "organization.name", Direction: queryspec.Asc},
	}
	spec.Limit = 5
	spec.Offset = 10

	plan, err := ToQueryBuilder(spec, users)
	require.NoError(t, err)
	require.Len(t, plan.Order, 2)
	assert.Equal(t, "users.age", plan.Order[0].Target)
	assert.Equal(t, queryspec.Desc, plan.Order[0].Direction)
	assert.Equal(t, "organization.name", plan.Order[1].Target)
	assert.Equal(t, 5, plan.Limit)
	assert.Equal(t, 10, plan.Offset)

	spec.OrderBy = []queryspec.OrderEntry{{Key: "missing", Direction: queryspec.Asc}}
	_, err = ToQueryBuilder(spec, users)
	assert.Error(t, err)
}
