// Package sqlgen generates SQL for different database providers.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Query represents a SQL query with arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// InsertQuery is a single INSERT statement executed once per row of Rows.
type InsertQuery struct {
	SQL  string
	Rows [][]interface{}
	// Returning is set when the statement yields the generated key as a row.
	Returning bool
}

// Select describes a SELECT statement.
type Select struct {
	Table   string
	Columns []string
	Where   *ConditionTree
	// OrderBy entries are rendered verbatim, e.g. "id" or "id DESC".
	OrderBy []string
	Limit   *int
	Offset  *int
}

// Assignment is one "column = ?" pair of an UPDATE statement.
type Assignment struct {
	Column string
	Value  interface{}
}

// InsertMode selects how duplicate keys are treated.
type InsertMode int

const (
	InsertPlain InsertMode = iota
	// InsertIgnore skips rows that collide with an existing key.
	InsertIgnore
	// InsertUpsert updates the inserted columns of a colliding row.
	InsertUpsert
)

// Insert describes an INSERT statement over one or more rows.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]interface{}
	Mode    InsertMode
	// ConflictKeys is the conflict target for dialects that need one.
	ConflictKeys []string
	// ReturningKey requests the generated key back where the dialect supports it.
	ReturningKey string
}

// Generator generates SQL for a specific provider
type Generator interface {
	Dialect() string
	GenerateSelect(s Select) *Query
	GenerateCount(table string, where *ConditionTree) *Query
	GenerateUpdate(table string, set []Assignment, where *ConditionTree) (*Query, error)
	GenerateDelete(table string, where *ConditionTree) (*Query, error)
	GenerateInsert(in Insert) (*InsertQuery, error)
	// Rebind translates "?" placeholders into the driver's syntax.
	Rebind(query string) string
	// Quote quotes an identifier.
	Quote(name string) string
}

// NewGenerator creates a new SQL generator for the given provider
func NewGenerator(provider string) (Generator, error) {
	switch NormalizeDialect(provider) {
	case MySQL:
		return &MySQLGenerator{}, nil
	case SQLite:
		return &SQLiteGenerator{}, nil
	case Postgres:
		return &PostgresGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, provider)
	}
}

// NormalizeDialect maps provider aliases onto a dialect name.
func NormalizeDialect(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	case "postgres", "postgresql", "pg":
		return Postgres
	default:
		return ""
	}
}

// base holds the statement shapes shared by every dialect.
type base struct{}

func (base) selectSQL(s Select, limitOffset func(limit, offset *int) string) *Query {
	var parts []string
	var args []interface{}

	if len(s.Columns) == 0 {
		parts = append(parts, "SELECT *")
	} else {
		parts = append(parts, "SELECT "+strings.Join(s.Columns, ", "))
	}
	parts = append(parts, "FROM "+s.Table)

	if exp, whereArgs := s.Where.Parse(); exp != "" {
		parts = append(parts, "WHERE "+exp)
		args = append(args, whereArgs...)
	}

	if len(s.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(s.OrderBy, ", "))
	}

	if clause := limitOffset(s.Limit, s.Offset); clause != "" {
		parts = append(parts, clause)
	}

	return &Query{SQL: strings.Join(parts, " "), Args: args}
}

func (base) countSQL(table string, where *ConditionTree) *Query {
	sql := "SELECT COUNT(1) FROM " + table
	exp, args := where.Parse()
	if exp != "" {
		sql += " WHERE " + exp
	}
	return &Query{SQL: sql, Args: args}
}

func (base) updateSQL(table string, set []Assignment, where *ConditionTree) (*Query, error) {
	if where.IsEmpty() {
		return nil, ErrUnsupportedFullTableMutation
	}
	if len(set) == 0 {
		return nil, ErrEmptyUpdate
	}

	setParts := make([]string, len(set))
	args := make([]interface{}, 0, len(set))
	for i, a := range set {
		setParts[i] = a.Column + " = ?"
		args = append(args, a.Value)
	}

	exp, whereArgs := where.Parse()
	args = append(args, whereArgs...)
	return &Query{
		SQL:  fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(setParts, ", "), exp),
		Args: args,
	}, nil
}

func (base) deleteSQL(table string, where *ConditionTree) (*Query, error) {
	if where.IsEmpty() {
		return nil, ErrUnsupportedFullTableMutation
	}
	exp, args := where.Parse()
	return &Query{SQL: fmt.Sprintf("DELETE FROM %s WHERE %s", table, exp), Args: args}, nil
}

// insertSQL renders "<verb> INTO t (cols) VALUES (?, ...)<suffix>". When
// duplicateArgs is set each row's values are repeated for the SET clause.
func (base) insertSQL(verb string, in Insert, suffix string, duplicateArgs bool) (*InsertQuery, error) {
	if len(in.Columns) == 0 {
		return nil, ErrEmptyInsert
	}
	if len(in.Rows) == 0 {
		return nil, ErrEmptyInsert
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(in.Columns)), ", ")
	sql := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, in.Table, strings.Join(in.Columns, ", "), placeholders)
	sql += suffix

	rows := make([][]interface{}, len(in.Rows))
	for i, row := range in.Rows {
		if len(row) != len(in.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrColumnMismatch, i, len(row), len(in.Columns))
		}
		args := make([]interface{}, 0, len(row)*2)
		args = append(args, row...)
		if duplicateArgs {
			args = append(args, row...)
		}
		rows[i] = args
	}

	return &InsertQuery{SQL: sql, Rows: rows}, nil
}

func assignmentList(columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " = ?"
	}
	return strings.Join(parts, ", ")
}

func limitOffsetClause(limit, offset *int, unbounded string) string {
	var parts []string
	if limit != nil {
		parts = append(parts, "LIMIT "+strconv.Itoa(*limit))
	} else if offset != nil && unbounded != "" {
		parts = append(parts, "LIMIT "+unbounded)
	}
	if offset != nil {
		parts = append(parts, "OFFSET "+strconv.Itoa(*offset))
	}
	return strings.Join(parts, " ")
}

// MySQLGenerator generates MySQL SQL
type MySQLGenerator struct{ base }

func (g *MySQLGenerator) Dialect() string { return MySQL }

func (g *MySQLGenerator) GenerateSelect(s Select) *Query {
	return g.selectSQL(s, func(limit, offset *int) string {
		return limitOffsetClause(limit, offset, "18446744073709551615")
	})
}

func (g *MySQLGenerator) GenerateCount(table string, where *ConditionTree) *Query {
	return g.countSQL(table, where)
}

func (g *MySQLGenerator) GenerateUpdate(table string, set []Assignment, where *ConditionTree) (*Query, error) {
	return g.updateSQL(table, set, where)
}

func (g *MySQLGenerator) GenerateDelete(table string, where *ConditionTree) (*Query, error) {
	return g.deleteSQL(table, where)
}

func (g *MySQLGenerator) GenerateInsert(in Insert) (*InsertQuery, error) {
	switch in.Mode {
	case InsertIgnore:
		return g.insertSQL("INSERT IGNORE", in, "", false)
	case InsertUpsert:
		return g.insertSQL("INSERT", in, " ON DUPLICATE KEY UPDATE "+assignmentList(in.Columns), true)
	default:
		return g.insertSQL("INSERT", in, "", false)
	}
}

func (g *MySQLGenerator) Rebind(query string) string { return query }

func (g *MySQLGenerator) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SQLiteGenerator generates SQLite SQL
type SQLiteGenerator struct{ base }

func (g *SQLiteGenerator) Dialect() string { return SQLite }

func (g *SQLiteGenerator) GenerateSelect(s Select) *Query {
	return g.selectSQL(s, func(limit, offset *int) string {
		return limitOffsetClause(limit, offset, "-1")
	})
}

func (g *SQLiteGenerator) GenerateCount(table string, where *ConditionTree) *Query {
	return g.countSQL(table, where)
}

func (g *SQLiteGenerator) GenerateUpdate(table string, set []Assignment, where *ConditionTree) (*Query, error) {
	return g.updateSQL(table, set, where)
}

func (g *SQLiteGenerator) GenerateDelete(table string, where *ConditionTree) (*Query, error) {
	return g.deleteSQL(table, where)
}

func (g *SQLiteGenerator) GenerateInsert(in Insert) (*InsertQuery, error) {
	switch in.Mode {
	case InsertIgnore:
		return g.insertSQL("INSERT OR IGNORE", in, "", false)
	case InsertUpsert:
		target := ""
		if len(in.ConflictKeys) > 0 {
			target = "(" + strings.Join(in.ConflictKeys, ", ") + ")"
		}
		return g.insertSQL("INSERT", in, " ON CONFLICT"+target+" DO UPDATE SET "+assignmentList(in.Columns), true)
	default:
		return g.insertSQL("INSERT", in, "", false)
	}
}

func (g *SQLiteGenerator) Rebind(query string) string { return query }

func (g *SQLiteGenerator) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PostgresGenerator generates PostgreSQL SQL
type PostgresGenerator struct{ base }

func (g *PostgresGenerator) Dialect() string { return Postgres }

func (g *PostgresGenerator) GenerateSelect(s Select) *Query {
	return g.selectSQL(s, func(limit, offset *int) string {
		return limitOffsetClause(limit, offset, "")
	})
}

func (g *PostgresGenerator) GenerateCount(table string, where *ConditionTree) *Query {
	return g.countSQL(table, where)
}

func (g *PostgresGenerator) GenerateUpdate(table string, set []Assignment, where *ConditionTree) (*Query, error) {
	return g.updateSQL(table, set, where)
}

func (g *PostgresGenerator) GenerateDelete(table string, where *ConditionTree) (*Query, error) {
	return g.deleteSQL(table, where)
}

func (g *PostgresGenerator) GenerateInsert(in Insert) (*InsertQuery, error) {
	var suffix string
	duplicate := false
	switch in.Mode {
	case InsertIgnore:
		suffix = " ON CONFLICT DO NOTHING"
	case InsertUpsert:
		if len(in.ConflictKeys) == 0 {
			return nil, ErrMissingConflictTarget
		}
		suffix = " ON CONFLICT (" + strings.Join(in.ConflictKeys, ", ") + ") DO UPDATE SET " + assignmentList(in.Columns)
		duplicate = true
	}

	returning := in.ReturningKey != "" && in.Mode != InsertIgnore
	if returning {
		suffix += " RETURNING " + in.ReturningKey
	}

	q, err := g.insertSQL("INSERT", in, suffix, duplicate)
	if err != nil {
		return nil, err
	}
	q.Returning = returning
	return q, nil
}

// Rebind rewrites "?" into "$1", "$2", ... leaving quoted text untouched.
func (g *PostgresGenerator) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (g *PostgresGenerator) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
