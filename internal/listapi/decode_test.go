package listapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"listquery/internal/sqltype"
)

func TestCategoryFor(t *testing.T) {
	schema := testSchema()
	users, _ := schema.Lookup("users")

	assert.Equal(t, sqltype.Int, categoryFor(schema, users, "id"))
	assert.Equal(t, sqltype.String, categoryFor(schema, users, "email"))
	assert.Equal(t, sqltype.Int, categoryFor(schema, users, "organization.id"))
	assert.Equal(t, sqltype.String, categoryFor(schema, users, "organization.missing"))
	assert.Equal(t, sqltype.String, categoryFor(schema, users, "team.id"))
	assert.Equal(t, sqltype.String, categoryFor(schema, users, "unknown"))
}
