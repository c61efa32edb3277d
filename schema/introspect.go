package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/seal-go/query/sqlgen"
)

var (
	ErrTableNotFound       = errors.New("table not found")
	ErrUnsupportedProvider = errors.New("unsupported database provider")
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Introspector reads the column list of one table.
type Introspector interface {
	Columns(ctx context.Context, q Querier, database, table string) ([]Column, error)
}

// NewIntrospector returns the introspector for a dialect.
func NewIntrospector(dialect string) (Introspector, error) {
	switch sqlgen.NormalizeDialect(dialect) {
	case sqlgen.MySQL:
		return MySQLIntrospector{}, nil
	case sqlgen.SQLite:
		return SQLiteIntrospector{}, nil
	case sqlgen.Postgres:
		return PostgresIntrospector{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, dialect)
	}
}

// MySQLIntrospector implements introspection with SHOW COLUMNS.
type MySQLIntrospector struct{}

func (MySQLIntrospector) Columns(ctx context.Context, q Querier, database, table string) ([]Column, error) {
	g := sqlgen.MySQLGenerator{}
	query := "SHOW COLUMNS FROM " + g.Quote(table)
	if database != "" {
		query += " FROM " + g.Quote(database)
	}

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var field, colType, null, key, extra sql.NullString
		var dflt sql.NullString
		if err := rows.Scan(&field, &colType, &null, &key, &dflt, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := Column{
			Name:          field.String,
			Type:          colType.String,
			Kind:          KindOf(colType.String),
			Nullable:      strings.EqualFold(null.String, "YES"),
			PrimaryKey:    key.String == "PRI",
			AutoIncrement: strings.Contains(strings.ToLower(extra.String), "auto_increment"),
		}
		if dflt.Valid {
			d := dflt.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

// SQLiteIntrospector implements introspection with PRAGMA table_info.
type SQLiteIntrospector struct{}

func (SQLiteIntrospector) Columns(ctx context.Context, q Querier, database, table string) ([]Column, error) {
	g := sqlgen.SQLiteGenerator{}
	query := fmt.Sprintf("PRAGMA table_info(%s)", g.Quote(table))
	if database != "" && database != "main" {
		query = fmt.Sprintf("PRAGMA %s.table_info(%s)", g.Quote(database), g.Quote(table))
	}

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := Column{
			Name:       name,
			Type:       colType,
			Kind:       KindOf(colType),
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		}
		// Only INTEGER PRIMARY KEY aliases the rowid
		if pk > 0 && strings.EqualFold(colType, "INTEGER") {
			col.AutoIncrement = true
		}
		if dflt.Valid {
			d := dflt.String
			col.Default = &d
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

// PostgresIntrospector implements introspection with information_schema.
type PostgresIntrospector struct{}

const postgresColumnsQuery = `
	SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage k
				ON tc.constraint_name = k.constraint_name
				AND tc.table_schema = k.table_schema
				AND tc.table_name = k.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = c.table_schema
				AND tc.table_name = c.table_name
				AND k.column_name = c.column_name
		) AS is_pk
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

func (PostgresIntrospector) Columns(ctx context.Context, q Querier, database, table string) ([]Column, error) {
	schemaName := database
	if schemaName == "" {
		schemaName = "public"
	}

	rows, err := q.QueryContext(ctx, postgresColumnsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var name, dataType, nullable string
		var dflt sql.NullString
		var isPK bool
		if err := rows.Scan(&name, &dataType, &nullable, &dflt, &isPK); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := Column{
			Name:       name,
			Type:       dataType,
			Kind:       postgresKind(dataType),
			Nullable:   nullable == "YES",
			PrimaryKey: isPK,
		}
		if dflt.Valid {
			d := dflt.String
			col.Default = &d
			col.AutoIncrement = strings.HasPrefix(d, "nextval(")
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

// postgresKind handles the multi-word names information_schema reports.
// Bit strings arrive as text such as "0101" and stay strings.
func postgresKind(dataType string) Kind {
	t := strings.ToLower(dataType)
	switch {
	case strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "time "), t == "date":
		return KindTime
	case t == "double precision":
		return KindFloat
	case strings.HasPrefix(t, "character"), strings.HasPrefix(t, "bit"):
		return KindString
	default:
		return KindOf(t)
	}
}
