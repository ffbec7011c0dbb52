package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks the names registered on each table and resolves
// duplicates with numeric suffixes.
type CollisionResolver struct {
	seen   map[string]map[string]string // table → name → source
	logger *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seen:   make(map[string]map[string]string),
		logger: logger,
	}
}

// Exists reports whether name is already registered on table.
func (c *CollisionResolver) Exists(table, name string) bool {
	_, ok := c.seen[table][name]
	return ok
}

// Register records name on table and returns it, or the first free suffixed
// variant when the name is taken.
func (c *CollisionResolver) Register(table, name, source string) string {
	names := c.seen[table]
	if names == nil {
		names = make(map[string]string)
		c.seen[table] = names
	}
	if _, exists := names[name]; !exists {
		names[name] = source
		return name
	}

	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("table", table),
		slog.String("name", name),
		slog.String("existing_source", names[name]),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := names[suffixed]; !exists {
			names[suffixed] = source
			return suffixed
		}
	}
}
