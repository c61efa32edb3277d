package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownField is returned when a record is addressed by a name its type does not declare.
var ErrUnknownField = errors.New("unknown field")

// Field is one named, typed slot of a RecordType.
type Field struct {
	Name string
	Kind Kind
}

// RecordType is the schema-derived shape rows of a table are materialized
// into. Fields are addressed by index; the name index is built once.
type RecordType struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewRecordType derives a record type from introspected columns.
func NewRecordType(name string, columns []Column) *RecordType {
	rt := &RecordType{
		name:   name,
		fields: make([]Field, len(columns)),
		index:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		rt.fields[i] = Field{Name: c.Name, Kind: c.Kind}
		rt.index[c.Name] = i
	}
	return rt
}

// Name returns the table the type was derived from.
func (rt *RecordType) Name() string { return rt.name }

// Len returns the number of fields.
func (rt *RecordType) Len() int { return len(rt.fields) }

// Field returns the i-th field.
func (rt *RecordType) Field(i int) Field { return rt.fields[i] }

// Index returns the slot of the named field.
func (rt *RecordType) Index(name string) (int, bool) {
	i, ok := rt.index[name]
	return i, ok
}

// New returns an empty record of this type.
func (rt *RecordType) New() *Record {
	return &Record{typ: rt, values: make([]interface{}, len(rt.fields)), set: make([]bool, len(rt.fields))}
}

// Materialize builds a record from a row's column names and raw driver
// values. Columns the type does not declare are ignored.
func (rt *RecordType) Materialize(columns []string, raw []interface{}) (*Record, error) {
	if len(columns) != len(raw) {
		return nil, fmt.Errorf("materialize %s: %d columns, %d values", rt.name, len(columns), len(raw))
	}
	rec := rt.New()
	for i, col := range columns {
		idx, ok := rt.index[col]
		if !ok {
			continue
		}
		v, err := Coerce(rt.fields[idx].Kind, raw[i])
		if err != nil {
			return nil, fmt.Errorf("materialize %s.%s: %w", rt.name, col, err)
		}
		rec.values[idx] = v
		rec.set[idx] = true
	}
	return rec, nil
}

// Record is one materialized row.
type Record struct {
	typ    *RecordType
	values []interface{}
	set    []bool
}

// Type returns the record's type.
func (r *Record) Type() *RecordType { return r.typ }

// Value returns the i-th field's value.
func (r *Record) Value(i int) interface{} { return r.values[i] }

// Get returns the named field's value. ok is false for unknown or unselected fields.
func (r *Record) Get(name string) (interface{}, bool) {
	i, ok := r.typ.index[name]
	if !ok || !r.set[i] {
		return nil, false
	}
	return r.values[i], true
}

// Set assigns a field after coercing it to the field's kind.
func (r *Record) Set(name string, v interface{}) error {
	i, ok := r.typ.index[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.typ.name, name)
	}
	cv, err := Coerce(r.typ.fields[i].Kind, v)
	if err != nil {
		return err
	}
	r.values[i] = cv
	r.set[i] = true
	return nil
}

// Map returns the selected fields keyed by name.
func (r *Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.values))
	for i, f := range r.typ.fields {
		if r.set[i] {
			m[f.Name] = r.values[i]
		}
	}
	return m
}

// String returns the named field as a string.
func (r *Record) String(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 returns the named field as an int64.
func (r *Record) Int64(name string) (int64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Float64 returns the named field as a float64.
func (r *Record) Float64(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Decimal returns the named field as a decimal.Decimal.
func (r *Record) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := r.Get(name)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, ok := v.(decimal.Decimal)
	return d, ok
}

// Bool returns the named field as a bool.
func (r *Record) Bool(name string) (bool, bool) {
	v, ok := r.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Time returns the named field as a time.Time.
func (r *Record) Time(name string) (time.Time, bool) {
	v, ok := r.Get(name)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}
