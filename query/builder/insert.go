package builder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/schema"
)

// InsertWrapper builds one INSERT against a table.
type InsertWrapper struct {
	wrapper

	mode         sqlgen.InsertMode
	conflictKeys []string
}

// NewInsert creates an insert builder for table.
func NewInsert(exec *executor.Executor, table string, opts Options) *InsertWrapper {
	return &InsertWrapper{wrapper: wrapper{exec: exec, table: table, opts: opts}}
}

// IgnoreDuplicates skips rows that collide with an existing key.
func (w *InsertWrapper) IgnoreDuplicates() *InsertWrapper {
	w.mode = sqlgen.InsertIgnore
	return w
}

// Upsert updates colliding rows instead. keys is the conflict target for
// dialects that need one and defaults to the primary key.
func (w *InsertWrapper) Upsert(keys ...string) *InsertWrapper {
	w.mode = sqlgen.InsertUpsert
	w.conflictKeys = keys
	return w
}

// Insert inserts one record and returns its generated key.
func (w *InsertWrapper) Insert(ctx context.Context, record interface{}) (int64, error) {
	q, err := w.build(ctx, []interface{}{record}, true)
	if err != nil {
		return 0, err
	}
	return w.exec.Insert(ctx, q)
}

// InsertBulk inserts a slice of records with one statement executed per
// record inside one transaction, and returns the affected row count.
func (w *InsertWrapper) InsertBulk(ctx context.Context, records interface{}) (int64, error) {
	list, err := toSlice(records)
	if err != nil {
		return 0, err
	}
	q, err := w.build(ctx, list, false)
	if err != nil {
		return 0, err
	}
	return w.exec.InsertBulk(ctx, q)
}

// Build compiles the INSERT for records without executing it.
func (w *InsertWrapper) Build(ctx context.Context, records ...interface{}) (*sqlgen.InsertQuery, error) {
	return w.build(ctx, records, len(records) == 1)
}

func (w *InsertWrapper) build(ctx context.Context, records []interface{}, single bool) (*sqlgen.InsertQuery, error) {
	if len(records) == 0 {
		w.consumed = true
		return nil, ErrNilRecord
	}
	s, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, len(records))
	for i, r := range records {
		values, err := toValues(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if err := w.fill(ctx, s, values); err != nil {
			return nil, err
		}
		rows[i] = values
	}

	columns := insertColumns(s, rows[0])
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", sqlgen.ErrEmptyInsert, w.table)
	}

	in := sqlgen.Insert{
		Table:        w.table,
		Columns:      columns,
		Rows:         make([][]interface{}, len(rows)),
		Mode:         w.mode,
		ConflictKeys: w.conflictKeys,
	}
	for i, values := range rows {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			row[j] = values[c]
		}
		in.Rows[i] = row
	}

	pk := s.PrimaryKey()
	if len(in.ConflictKeys) == 0 {
		in.ConflictKeys = pk
	}
	if single && len(pk) == 1 {
		in.ReturningKey = pk[0]
	}
	return w.exec.Generator().GenerateInsert(in)
}

// fill adds the soft-delete, tenant and created audit fields the caller
// did not supply, for columns the table has. created_by is left to the
// column default when the context carries no operator.
func (w *InsertWrapper) fill(ctx context.Context, s *schema.TableStructure, values map[string]interface{}) error {
	absent := func(f string) bool {
		if f == "" || !s.HasColumn(f) {
			return false
		}
		_, ok := values[f]
		return !ok
	}

	if f := w.opts.LogicalDeletedField; absent(f) {
		if w.opts.LogicalDeletedFalse == nil {
			return fmt.Errorf("%w: %s.%s", ErrMissingLogicalDeleteConfig, w.table, f)
		}
		values[f] = w.opts.LogicalDeletedFalse
	}
	if f := w.opts.TenantField; absent(f) {
		v := w.opts.tenant(ctx)
		if v == nil {
			return fmt.Errorf("%w: %s.%s", ErrMissingTenantValue, w.table, f)
		}
		values[f] = v
	}
	if f := w.opts.CreatedByField; absent(f) {
		if op := OperatorFromContext(ctx); op != nil {
			values[f] = op
		}
	}
	if f := w.opts.CreatedAtField; absent(f) {
		values[f] = w.opts.now()
	}
	return nil
}

// insertColumns is the table's columns minus the primary key, intersected
// with the keys present in the record, in table order.
func insertColumns(s *schema.TableStructure, values map[string]interface{}) []string {
	var cols []string
	for _, c := range s.Columns {
		if c.PrimaryKey {
			continue
		}
		if _, ok := values[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

func toSlice(records interface{}) ([]interface{}, error) {
	if list, ok := records.([]interface{}); ok {
		return list, nil
	}
	v := reflect.ValueOf(records)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("insert bulk expects a slice, got %T", records)
	}
	list := make([]interface{}, v.Len())
	for i := range list {
		list[i] = v.Index(i).Interface()
	}
	return list, nil
}
