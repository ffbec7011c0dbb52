package dbexec

import (
	"fmt"
)

// ColumnDecoder converts the raw value scanned for a column label.
type ColumnDecoder func(column string, value any) any

// ScanMaps reads every remaining row into a map keyed by column label and closes rows.
// Byte slices are returned as strings so results encode cleanly to JSON.
func ScanMaps(rows Rows) ([]map[string]any, error) {
	return ScanMapsWith(rows, nil)
}

// ScanMapsWith is ScanMaps with decode applied to every value first. Byte slices the
// decoder leaves in place still become strings.
func ScanMapsWith(rows Rows, decode ColumnDecoder) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	out := make([]map[string]any, 0)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			value := values[i]
			if decode != nil {
				value = decode(col, value)
			}
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[col] = value
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
