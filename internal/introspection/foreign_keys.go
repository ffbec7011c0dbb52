package introspection

import (
	"cmp"
	"fmt"
	"slices"
)

// ForeignKeyConstraint is a foreign key with its columns in ordinal order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups a table's per-column foreign key rows by constraint
// name, sorted by name. Rows without a constraint name each form their own constraint.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type keyedRow struct {
		key string
		fk  ForeignKey
	}
	rows := make([]keyedRow, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			key = fmt.Sprintf("\x00unnamed_%04d", i)
		}
		rows[i] = keyedRow{key: key, fk: fk}
	}

	slices.SortStableFunc(rows, func(a, b keyedRow) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		// Rows without a position sort after positioned ones.
		ap, bp := a.fk.OrdinalPosition, b.fk.OrdinalPosition
		switch {
		case ap == bp:
			return 0
		case ap == 0:
			return 1
		case bp == 0:
			return -1
		default:
			return cmp.Compare(ap, bp)
		}
	})

	var out []ForeignKeyConstraint
	prevKey := ""
	for i, row := range rows {
		if i == 0 || row.key != prevKey {
			prevKey = row.key
			out = append(out, ForeignKeyConstraint{
				ConstraintName:  row.fk.ConstraintName,
				ReferencedTable: row.fk.ReferencedTable,
			})
		}
		last := &out[len(out)-1]
		last.ColumnNames = append(last.ColumnNames, row.fk.ColumnName)
		last.ReferencedColumns = append(last.ReferencedColumns, row.fk.ReferencedColumn)
	}
	return out
}
