// Package schema introspects and caches table structures.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value class a column's values are materialized into.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindTime
	// KindDecimal holds exact DECIMAL/NUMERIC values as decimal.Decimal.
	KindDecimal
	// KindBit holds BIT(n) values wider than one bit as int64.
	KindBit
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindDecimal:
		return "decimal"
	case KindBit:
		return "bit"
	default:
		return "string"
	}
}

// KindOf infers a Kind from a declared column type such as "bigint(20)",
// "VARCHAR(64)" or "timestamp with time zone". Unknown types are strings.
func KindOf(columnType string) Kind {
	t := strings.ToLower(strings.TrimSpace(columnType))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}

	switch t {
	case "int", "integer", "tinyint", "smallint", "mediumint", "bigint", "int2", "int4", "int8",
		"serial", "bigserial", "smallserial", "year":
		return KindInt
	case "decimal", "numeric", "dec", "fixed":
		return KindDecimal
	case "float", "double", "real", "float4", "float8":
		return KindFloat
	case "bool", "boolean":
		return KindBool
	case "bit":
		if width(columnType) <= 1 {
			return KindBool
		}
		return KindBit
	case "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary", "bytea":
		return KindBytes
	case "datetime", "timestamp", "timestamptz", "date", "time", "timetz":
		return KindTime
	default:
		return KindString
	}
}

// width returns the first parenthesized size of a column type, or 0.
func width(columnType string) int {
	open := strings.IndexByte(columnType, '(')
	if open < 0 {
		return 0
	}
	rest := columnType[open+1:]
	end := strings.IndexAny(rest, ",)")
	if end < 0 {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(rest[:end]))
	return n
}

// Column is one introspected table column.
type Column struct {
	Name          string
	Type          string
	Kind          Kind
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Default       *string
}

// TableStructure is the cached column list and record shape of one table.
type TableStructure struct {
	DataSource string
	Database   string
	Table      string
	Columns    []Column
	Record     *RecordType
}

// NewTableStructure builds a structure and derives its record type.
func NewTableStructure(dataSource, database, table string, columns []Column) *TableStructure {
	return &TableStructure{
		DataSource: dataSource,
		Database:   database,
		Table:      table,
		Columns:    columns,
		Record:     NewRecordType(table, columns),
	}
}

// ColumnNames returns the column names in table order.
func (s *TableStructure) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table has the named column.
func (s *TableStructure) HasColumn(name string) bool {
	_, ok := s.Record.Index(name)
	return ok
}

// Column looks a column up by name.
func (s *TableStructure) Column(name string) (Column, bool) {
	i, ok := s.Record.Index(name)
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// PrimaryKey returns the primary key column names.
func (s *TableStructure) PrimaryKey() []string {
	var pk []string
	for _, c := range s.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

func (s *TableStructure) String() string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = fmt.Sprintf("%s %s", c.Name, c.Type)
	}
	return fmt.Sprintf("%s(%s)", s.Table, strings.Join(cols, ", "))
}
