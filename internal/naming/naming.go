package naming

import (
	"log/slog"
	"strings"
)

// Namer derives relation names from foreign key columns and table names.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// ManyToOneRelationName names the relation that follows a foreign key column,
// with common key suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneRelationName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return toCamelCase(name)
}

// OneToManyRelationName names the reverse side of a foreign key. With a single
// foreign key from sourceTable the pluralized table name is used; otherwise the
// key column prefixes it.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "posts" -> "authorPosts"
func (n *Namer) OneToManyRelationName(sourceTable, fkColumn string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(toCamelCase(sourceTable))
	if isOnlyFK {
		return tablePlural
	}

	prefix := n.ManyToOneRelationName(fkColumn)
	if len(tablePlural) > 0 {
		return prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:]
	}
	return prefix
}

// RegisterColumn reserves a column name on a table. Columns always win over
// relations of the same name.
func (n *Namer) RegisterColumn(tableName, columnName string) string {
	return n.resolver.Register(tableName, columnName, "column:"+columnName)
}

// RegisterRelation reserves a relation name on a table and returns the name to
// use. A clash with a column gets a "Ref" (many-to-one) or "Rel" suffix; any
// further clash gets a numeric suffix.
func (n *Namer) RegisterRelation(tableName, relationName, source string, isManyToOne bool) string {
	if n.resolver.Exists(tableName, relationName) {
		if isManyToOne {
			relationName += "Ref"
		} else {
			relationName += "Rel"
		}
	}
	return n.resolver.Register(tableName, relationName, "relation:"+source)
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
