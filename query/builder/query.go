package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/schema"
)

// QueryWrapper builds one SELECT against a table.
type QueryWrapper struct {
	where[*QueryWrapper]
	wrapper

	fields  []string
	ignored []string
	orderBy []string
	limit   *int
	offset  *int
}

// NewQuery creates a query builder for table.
func NewQuery(exec *executor.Executor, table string, opts Options) *QueryWrapper {
	q := &QueryWrapper{wrapper: wrapper{exec: exec, table: table, opts: opts}}
	q.init(q)
	return q
}

// Select restricts the selected columns.
func (q *QueryWrapper) Select(fields ...string) *QueryWrapper {
	q.fields = append(q.fields, fields...)
	return q
}

// Ignore drops columns from the default column list.
func (q *QueryWrapper) Ignore(fields ...string) *QueryWrapper {
	q.ignored = append(q.ignored, fields...)
	return q
}

// Sort appends raw order terms such as "id" or "created_at DESC".
func (q *QueryWrapper) Sort(terms ...string) *QueryWrapper {
	q.orderBy = append(q.orderBy, terms...)
	return q
}

// Asc orders by fields ascending.
func (q *QueryWrapper) Asc(fields ...string) *QueryWrapper {
	for _, f := range fields {
		q.orderBy = append(q.orderBy, f+" ASC")
	}
	return q
}

// Desc orders by fields descending.
func (q *QueryWrapper) Desc(fields ...string) *QueryWrapper {
	for _, f := range fields {
		q.orderBy = append(q.orderBy, f+" DESC")
	}
	return q
}

// Limit caps the number of rows.
func (q *QueryWrapper) Limit(n int) *QueryWrapper {
	q.limit = &n
	return q
}

// Offset skips rows.
func (q *QueryWrapper) Offset(n int) *QueryWrapper {
	q.offset = &n
	return q
}

// prepare consumes the builder, injects public fields and validates names.
func (q *QueryWrapper) prepare(ctx context.Context, opts []CallOption) (*schema.TableStructure, error) {
	s, err := q.begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := q.handlePublicFields(ctx, s, q.tree, applyCallOptions(opts)); err != nil {
		return nil, err
	}
	if err := checkConditions(s, q.tree); err != nil {
		return nil, err
	}
	if err := checkColumns(s, q.fields...); err != nil {
		return nil, err
	}
	for _, term := range q.orderBy {
		field, dir, _ := strings.Cut(strings.TrimSpace(term), " ")
		if err := checkColumns(s, field); err != nil {
			return nil, err
		}
		if d := strings.ToUpper(strings.TrimSpace(dir)); d != "" && d != "ASC" && d != "DESC" {
			return nil, fmt.Errorf("invalid sort direction %q", dir)
		}
	}
	return s, nil
}

// columns resolves the select list: explicit fields, else every column minus ignored ones.
func (q *QueryWrapper) columns(s *schema.TableStructure) []string {
	if len(q.fields) > 0 {
		return q.fields
	}
	skip := make(map[string]bool, len(q.ignored))
	for _, f := range q.ignored {
		skip[f] = true
	}
	var cols []string
	for _, c := range s.ColumnNames() {
		if !skip[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func (q *QueryWrapper) selectQuery(s *schema.TableStructure) *sqlgen.Query {
	return q.exec.Generator().GenerateSelect(sqlgen.Select{
		Table:   q.table,
		Columns: q.columns(s),
		Where:   q.tree,
		OrderBy: q.orderBy,
		Limit:   q.limit,
		Offset:  q.offset,
	})
}

// Build compiles the SELECT without executing it.
func (q *QueryWrapper) Build(ctx context.Context, opts ...CallOption) (*sqlgen.Query, error) {
	s, err := q.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	return q.selectQuery(s), nil
}

// One returns the first matching row, or an empty Result.
func (q *QueryWrapper) One(ctx context.Context, opts ...CallOption) (*executor.Result, error) {
	s, err := q.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	if q.limit == nil {
		q.Limit(1)
	}
	return q.exec.Find(ctx, q.selectQuery(s), s.Record)
}

// List returns every matching row.
func (q *QueryWrapper) List(ctx context.Context, opts ...CallOption) (*executor.Results, error) {
	s, err := q.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	return q.exec.FindList(ctx, q.selectQuery(s), s.Record)
}

// Page returns page n (1-based) of size rows and the unpaged total.
func (q *QueryWrapper) Page(ctx context.Context, n, size int, opts ...CallOption) (*executor.Page, error) {
	if n < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page %d size %d", ErrInvalidPage, n, size)
	}
	s, err := q.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	q.Limit(size).Offset((n - 1) * size)

	count := q.exec.Generator().GenerateCount(q.table, q.tree)
	return q.exec.FindPage(ctx, q.selectQuery(s), count, s.Record, n, size)
}

// Count returns the number of matching rows.
func (q *QueryWrapper) Count(ctx context.Context, opts ...CallOption) (int64, error) {
	if _, err := q.prepare(ctx, opts); err != nil {
		return 0, err
	}
	return q.exec.Count(ctx, q.exec.Generator().GenerateCount(q.table, q.tree))
}
