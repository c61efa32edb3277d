package executor

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/satishbabariya/seal-go/schema"
)

// Result is at most one row plus the record type used to interpret it.
// Materialization happens on demand.
type Result struct {
	columns []string
	row     []interface{}
	typ     *schema.RecordType
}

// NewResult wraps a raw row. row may be nil for an empty result.
func NewResult(columns []string, row []interface{}, typ *schema.RecordType) *Result {
	return &Result{columns: columns, row: row, typ: typ}
}

// Present reports whether a row was found.
func (r *Result) Present() bool { return r != nil && r.row != nil }

// Columns returns the result column names.
func (r *Result) Columns() []string { return r.columns }

// Get materializes the row as a typed record. An empty result yields nil.
func (r *Result) Get() (*schema.Record, error) {
	if !r.Present() {
		return nil, nil
	}
	if r.typ == nil {
		return nil, ErrNoTypeSpecified
	}
	return r.typ.Materialize(r.columns, r.row)
}

// AsMap returns the row keyed by column name, or nil when empty.
func (r *Result) AsMap() map[string]interface{} {
	if !r.Present() {
		return nil
	}
	return rowMap(r.columns, r.row)
}

// Decode copies the row into dest, a pointer to a struct with `db` tags.
func (r *Result) Decode(dest interface{}) error {
	if !r.Present() {
		return nil
	}
	m, err := r.typedMap()
	if err != nil {
		return err
	}
	return decode(m, dest)
}

func (r *Result) typedMap() (map[string]interface{}, error) {
	if r.typ == nil {
		return r.AsMap(), nil
	}
	rec, err := r.typ.Materialize(r.columns, r.row)
	if err != nil {
		return nil, err
	}
	return rec.Map(), nil
}

// Results is a row set plus the record type used to interpret it.
type Results struct {
	columns []string
	rows    [][]interface{}
	typ     *schema.RecordType
}

// NewResults wraps raw rows.
func NewResults(columns []string, rows [][]interface{}, typ *schema.RecordType) *Results {
	return &Results{columns: columns, rows: rows, typ: typ}
}

// Present reports whether at least one row was found.
func (r *Results) Present() bool { return r != nil && len(r.rows) > 0 }

// Len returns the number of rows.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rows)
}

// Columns returns the result column names.
func (r *Results) Columns() []string { return r.columns }

// At returns the i-th row as a Result.
func (r *Results) At(i int) *Result {
	return &Result{columns: r.columns, row: r.rows[i], typ: r.typ}
}

// Get materializes every row. An empty set yields an empty slice.
func (r *Results) Get() ([]*schema.Record, error) {
	if !r.Present() {
		return []*schema.Record{}, nil
	}
	if r.typ == nil {
		return nil, ErrNoTypeSpecified
	}
	records := make([]*schema.Record, len(r.rows))
	for i, row := range r.rows {
		rec, err := r.typ.Materialize(r.columns, row)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

// AsMaps returns every row keyed by column name.
func (r *Results) AsMaps() []map[string]interface{} {
	out := make([]map[string]interface{}, r.Len())
	for i := range out {
		out[i] = rowMap(r.columns, r.rows[i])
	}
	return out
}

// Decode copies the rows into dest, a pointer to a slice of structs with `db` tags.
func (r *Results) Decode(dest interface{}) error {
	maps := make([]map[string]interface{}, r.Len())
	for i := range maps {
		m, err := r.At(i).typedMap()
		if err != nil {
			return err
		}
		maps[i] = m
	}
	return decode(maps, dest)
}

// Page is one page of a paged query plus the unpaged total.
type Page struct {
	Page     int
	PageSize int
	Total    int64
	Records  *Results
}

// Pages returns the number of pages Total spans.
func (p *Page) Pages() int64 {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + int64(p.PageSize) - 1) / int64(p.PageSize)
}

func rowMap(columns []string, row []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := row[i].([]byte); ok {
			m[col] = string(b)
			continue
		}
		m[col] = row[i]
	}
	return m
}

func decode(input, dest interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           dest,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
