package introspection

import (
	"fmt"

	"listquery/internal/sqlutil"
)

// catalogQueries holds the information_schema statements for one dialect. Every
// statement takes the schema name first and, where relevant, the table name second,
// and returns the same column shape across dialects.
type catalogQueries struct {
	tables      string
	columns     string
	primaryKeys string
	foreignKeys string
}

var mysqlCatalog = catalogQueries{
	tables: `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`,
	columns: `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`,
	primaryKeys: `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`,
	foreignKeys: `
		SELECT
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME,
			CONSTRAINT_NAME,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`,
}

var postgresCatalog = catalogQueries{
	tables: `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`,
	columns: `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`,
	primaryKeys: `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
		WHERE tc.table_schema = $1
			AND tc.table_name = $2
			AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position
	`,
	foreignKeys: `
		SELECT
			kcu.column_name,
			ref.table_name,
			ref.column_name,
			kcu.constraint_name,
			kcu.ordinal_position
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = rc.constraint_schema
			AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage ref
			ON ref.constraint_schema = rc.unique_constraint_schema
			AND ref.constraint_name = rc.unique_constraint_name
			AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema = $1
			AND kcu.table_name = $2
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`,
}

func catalogFor(dialect sqlutil.Dialect) (catalogQueries, error) {
	switch dialect {
	case sqlutil.MySQL:
		return mysqlCatalog, nil
	case sqlutil.Postgres:
		return postgresCatalog, nil
	default:
		return catalogQueries{}, fmt.Errorf("introspection: unsupported dialect %q", dialect)
	}
}
