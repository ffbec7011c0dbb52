package queryspec

import "strings"

// Path is a parsed field key: a column, or a relation or JSON column followed by
// one nested field. It stays schema-agnostic until the compiler resolves it.
type Path struct {
	Root string
	Leaf string
}

// ParsePath splits a dot-separated key of one or two non-empty segments.
func ParsePath(key string) (Path, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Path{}, FieldErrorf(key, "Field name cannot be empty")
	}
	segments := strings.Split(key, ".")
	if len(segments) > 2 {
		return Path{}, FieldErrorf(key, "Field %s has too many segments. Only \"field\" or \"relation.field\" are supported", key)
	}
	for _, segment := range segments {
		if segment == "" {
			return Path{}, FieldErrorf(key, "Field %s contains an empty path segment", key)
		}
	}
	path := Path{Root: segments[0]}
	if len(segments) == 2 {
		path.Leaf = segments[1]
	}
	return path, nil
}

// Nested reports whether the path has a second segment.
func (p Path) Nested() bool {
	return p.Leaf != ""
}

func (p Path) String() string {
	if p.Leaf == "" {
		return p.Root
	}
	return p.Root + "." + p.Leaf
}
