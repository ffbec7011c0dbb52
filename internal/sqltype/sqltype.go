// Package sqltype groups SQL column types into the categories list results are decoded
// into, so text-protocol values come back as JSON numbers, booleans and documents.
package sqltype

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Category is the JSON shape a column's values decode to.
type Category int

const (
	// String is the default for text, temporal and unknown types.
	String Category = iota
	Int
	Float
	Boolean
	JSON
	// UUID covers native uuid columns and binary columns holding 16-byte UUIDs.
	UUID
)

func (c Category) String() string {
	switch c {
	case Int:
		return "int"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case JSON:
		return "json"
	case UUID:
		return "uuid"
	default:
		return "string"
	}
}

// Categorize maps a data type as reported by information_schema to its category. Matching
// is case-insensitive and ignores size specifiers and trailing modifiers such as unsigned.
func Categorize(dataType string) Category {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if idx := strings.Index(t, "("); idx != -1 {
		t = strings.TrimSpace(t[:idx])
	}
	switch t {
	case "double precision", "real":
		return Float
	case "character varying", "timestamp with time zone", "timestamp without time zone":
		return String
	}
	if idx := strings.Index(t, " "); idx != -1 {
		t = t[:idx]
	}

	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "serial", "bigserial", "smallserial", "int2", "int4", "int8":
		return Int
	case "float", "double", "decimal", "numeric", "float4", "float8":
		return Float
	case "bool", "boolean":
		return Boolean
	case "json", "jsonb":
		return JSON
	case "uuid", "binary", "varbinary":
		return UUID
	default:
		return String
	}
}

// Decode converts a scanned driver value to the category's JSON form. Values that do not
// parse are returned as text rather than failing the row.
func Decode(c Category, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if c == UUID && len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return decodeText(c, string(v))
	case string:
		return decodeText(c, v)
	default:
		return value
	}
}

func decodeText(c Category, s string) any {
	switch c {
	case Int:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case Float:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case Boolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case JSON:
		if json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	case UUID:
		if id, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
			return id.String()
		}
	}
	return s
}
