package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"orderItem", "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"statuses", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestOverrides(t *testing.T) {
	namer := New(Config{
		PluralOverrides:   map[string]string{"staff": "staff"},
		SingularOverrides: map[string]string{"data": "datum"},
	}, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user"))
	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "staff", namer.Pluralize("Staff"))
}

func TestManyToOneRelationName(t *testing.T) {
	namer := Default()

	tests := []struct {
		fkColumn string
		expected string
	}{
		{"author_id", "author"},
		{"organization_id", "organization"},
		{"created_by_user_id", "createdByUser"},
		{"owner_fk", "owner"},
		{"OwnerID", "OwnerID"},
		{"simple", "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.fkColumn, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ManyToOneRelationName(tt.fkColumn))
		})
	}
}

func TestOneToManyRelationName(t *testing.T) {
	namer := Default()

	tests := []struct {
		sourceTable string
		fkColumn    string
		isOnlyFK    bool
		expected    string
	}{
		{"comments", "user_id", true, "comments"},
		{"posts", "author_id", false, "authorPosts"},
		{"posts", "editor_id", false, "editorPosts"},
		{"order_items", "order_id", true, "orderItems"},
		{"user", "organization_id", true, "users"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceTable+"_"+tt.fkColumn, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.OneToManyRelationName(tt.sourceTable, tt.fkColumn, tt.isOnlyFK))
		})
	}
}

func TestRegisterRelationCollidesWithColumn(t *testing.T) {
	namer := Default()
	namer.RegisterColumn("orders", "author")

	assert.Equal(t, "authorRef", namer.RegisterRelation("orders", "author", "users", true))
	assert.Equal(t, "itemsRel", func() string {
		namer.RegisterColumn("orders", "items")
		return namer.RegisterRelation("orders", "items", "order_items", false)
	}())
}

func TestRegisterRelationNumericSuffix(t *testing.T) {
	var buf bytes.Buffer
	namer := New(DefaultConfig(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, "author", namer.RegisterRelation("posts", "author", "fk_a", true))
	assert.Equal(t, "authorRef", namer.RegisterRelation("posts", "author", "fk_b", true))
	assert.Equal(t, "authorRef2", namer.RegisterRelation("posts", "author", "fk_c", true))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestReset(t *testing.T) {
	namer := Default()
	namer.RegisterColumn("users", "id")
	namer.Reset()

	assert.Equal(t, "id", namer.RegisterRelation("users", "id", "x", true))
}
