package planner

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/queryspec"
	"listquery/internal/sqlutil"
)

func goldenQuery(q SQLQuery) []byte {
	var buf bytes.Buffer
	buf.WriteString(q.SQL)
	buf.WriteString("\n")
	for i, arg := range q.Args {
		fmt.Fprintf(&buf, "$%d %#v\n", i+1, arg)
	}
	return buf.Bytes()
}

func renderSpec(t *testing.T, spec queryspec.Spec, opts RenderOptions) SQLQuery {
	t.Helper()
	schema := testSchema()
	plan, err := ToQueryBuilder(spec, usersTable(t, schema))
	require.NoError(t, err)
	query, err := Render(plan, schema, opts)
	require.NoError(t, err)
	return query
}

func TestRenderGolden(t *testing.T) {
	listSpec := queryspec.New()
	listSpec.Where = []queryspec.Filter{{Key: "age", Operator: queryspec.OpBetween, Value: "20,22"}}
	listSpec.WhereGroups = []queryspec.FilterGroup{{
		Logic: queryspec.LogicOr,
		Conditions: []queryspec.Filter{
			{Key: "status", Operator: queryspec.OpEqual, Value: "active"},
			{Key: "email", Operator: queryspec.OpILike, Value: "Foo"},
		},
	}}
	listSpec.Relations = []queryspec.Relation{{Name: "organization", Join: queryspec.JoinLeftSelect}}
	listSpec.OrderBy = []queryspec.OrderEntry{{Key: "age", Direction: queryspec.Desc}}
	listSpec.Offset = 20

	nestedSpec := queryspec.New()
	nestedSpec.Where = []queryspec.Filter{
		{Key: "organization.name", Operator: queryspec.OpEqual, Value: "Acme"},
		{Key: "address.city", Operator: queryspec.OpEqual, Value: "Paris"},
		{Key: "status", Operator: queryspec.OpIn, Value: "a,b"},
		{Key: "id", Operator: queryspec.OpNotIn, Value: "1,2"},
	}
	nestedSpec.Limit = 5

	tests := []struct {
		name string
		spec queryspec.Spec
		opts RenderOptions
	}{
		{"list_mysql", listSpec, RenderOptions{Dialect: sqlutil.MySQL}},
		{"list_postgres", listSpec, RenderOptions{Dialect: sqlutil.Postgres}},
		{"nested_mysql", nestedSpec, RenderOptions{Dialect: sqlutil.MySQL, MaxLimit: 3}},
		{"nested_postgres", nestedSpec, RenderOptions{Dialect: sqlutil.Postgres, MaxLimit: 3}},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, goldenQuery(renderSpec(t, tt.spec, tt.opts)))
		})
	}
}

func TestRenderAny(t *testing.T) {
	spec := queryspec.New()
	spec.Where = []queryspec.Filter{{Key: "status", Operator: queryspec.OpAny, Value: "a,b"}}

	pg := renderSpec(t, spec, RenderOptions{Dialect: sqlutil.Postgres})
	assert.Contains(t, pg.SQL, `WHERE "users"."status" = ANY($1)`)
	require.Len(t, pg.Args, 1)
	assert.Equal(t, pq.Array([]string{"a", "b"}), pg.Args[0])

	my := renderSpec(t, spec, RenderOptions{Dialect: sqlutil.MySQL})
	assert.Contains(t, my.SQL, "WHERE `users`.`status` IN (?,?)")
	assert.Equal(t, []any{"a", "b"}, my.Args)
}

func TestRenderInnerJoinWithoutSelect(t *testing.T) {
	spec := queryspec.New()
	spec.Relations = []queryspec.Relation{{Name: "organization", Join: queryspec.JoinInner}}

	q := renderSpec(t, spec, RenderOptions{Dialect: sqlutil.MySQL})
	assert.Contains(t, q.SQL, "INNER JOIN `organizations` AS `organization` ON `organization`.`id` = `users`.`organization_id`")
	assert.NotContains(t, q.SQL, "AS `organization.name`")
	assert.Contains(t, q.SQL, "LIMIT 10")
}

func TestRenderLimitClamp(t *testing.T) {
	spec := queryspec.New()
	spec.Limit = 500

	q := renderSpec(t, spec, RenderOptions{Dialect: sqlutil.MySQL, MaxLimit: 100})
	assert.Contains(t, q.SQL, "LIMIT 100")

	spec.Limit = 0
	q = renderSpec(t, spec, RenderOptions{Dialect: sqlutil.MySQL})
	assert.NotContains(t, q.SQL, "LIMIT")
}

func TestRenderUnknownRelationField(t *testing.T) {
	spec := queryspec.New()
	spec.Where = []queryspec.Filter{{Key: "organization.secret", Operator: queryspec.OpEqual, Value: "x"}}

	schema := testSchema()
	plan, err := ToQueryBuilder(spec, usersTable(t, schema))
	require.NoError(t, err)

	_, err = Render(plan, schema, RenderOptions{Dialect: sqlutil.MySQL})
	require.Error(t, err)
	assert.True(t, queryspec.IsValidationError(err))
	assert.Equal(t, "Field secret does not exist on entity organizations", err.Error())
}

func TestRenderErrors(t *testing.T) {
	schema := testSchema()

	_, err := Render(&QueryPlan{Table: "missing"}, schema, RenderOptions{Dialect: sqlutil.MySQL})
	assert.Error(t, err)

	_, err = Render(&QueryPlan{Table: "users"}, schema, RenderOptions{Dialect: "oracle"})
	assert.Error(t, err)
}
