package builder

import (
	"context"
	"fmt"

	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/schema"
)

// UpdateWrapper builds one UPDATE or DELETE against a table.
type UpdateWrapper struct {
	where[*UpdateWrapper]
	wrapper

	sets    []sqlgen.Assignment
	records []map[string]interface{}
}

// NewUpdate creates an update builder for table.
func NewUpdate(exec *executor.Executor, table string, opts Options) *UpdateWrapper {
	u := &UpdateWrapper{wrapper: wrapper{exec: exec, table: table, opts: opts}}
	u.init(u)
	return u
}

// Set assigns one column.
func (u *UpdateWrapper) Set(field string, value interface{}) *UpdateWrapper {
	u.sets = append(u.sets, sqlgen.Assignment{Column: field, Value: value})
	return u
}

// SetAll assigns every non-nil field of entity that is a table column,
// except the primary key. entity is a map or a struct with `db` tags.
func (u *UpdateWrapper) SetAll(entity interface{}) *UpdateWrapper {
	values, err := toValues(entity)
	if err != nil {
		if u.err == nil {
			u.err = err
		}
		return u
	}
	u.records = append(u.records, values)
	return u
}

// Read is SetAll.
func (u *UpdateWrapper) Read(entity interface{}) *UpdateWrapper {
	return u.SetAll(entity)
}

// assignments resolves the SET list: explicit sets first, then record
// fields not already set, then the updated_by / updated_at audit fields
// when the caller supplied neither.
func (u *UpdateWrapper) assignments(ctx context.Context, s *schema.TableStructure) ([]sqlgen.Assignment, error) {
	sets := append([]sqlgen.Assignment(nil), u.sets...)
	seen := make(map[string]bool, len(sets))
	for _, a := range sets {
		if err := checkColumns(s, a.Column); err != nil {
			return nil, err
		}
		seen[a.Column] = true
	}

	pk := make(map[string]bool)
	for _, k := range s.PrimaryKey() {
		pk[k] = true
	}
	for _, rec := range u.records {
		for _, col := range s.Columns {
			v, ok := rec[col.Name]
			if !ok || pk[col.Name] || seen[col.Name] {
				continue
			}
			sets = append(sets, sqlgen.Assignment{Column: col.Name, Value: v})
			seen[col.Name] = true
		}
	}

	if len(sets) == 0 {
		return nil, sqlgen.ErrEmptyUpdate
	}

	if f := u.opts.UpdatedByField; f != "" && s.HasColumn(f) && !seen[f] {
		if op := OperatorFromContext(ctx); op != nil {
			sets = append(sets, sqlgen.Assignment{Column: f, Value: op})
		}
	}
	if f := u.opts.UpdatedAtField; f != "" && s.HasColumn(f) && !seen[f] {
		sets = append(sets, sqlgen.Assignment{Column: f, Value: u.opts.now()})
	}
	return sets, nil
}

// prepare consumes the builder. The caller's conditions must be non-empty;
// that is checked before any I/O.
func (u *UpdateWrapper) prepare(ctx context.Context, call callOptions) (*schema.TableStructure, error) {
	if u.tree.IsEmpty() {
		u.consumed = true
		return nil, fmt.Errorf("%w: %s", sqlgen.ErrUnsupportedFullTableMutation, u.table)
	}
	s, err := u.begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.handlePublicFields(ctx, s, u.tree, call); err != nil {
		return nil, err
	}
	if err := checkConditions(s, u.tree); err != nil {
		return nil, err
	}
	return s, nil
}

// Build compiles the UPDATE without executing it.
func (u *UpdateWrapper) Build(ctx context.Context, opts ...CallOption) (*sqlgen.Query, error) {
	s, err := u.prepare(ctx, applyCallOptions(opts))
	if err != nil {
		return nil, err
	}
	sets, err := u.assignments(ctx, s)
	if err != nil {
		return nil, err
	}
	return u.exec.Generator().GenerateUpdate(u.table, sets, u.tree)
}

// Update runs the UPDATE and returns the affected row count.
func (u *UpdateWrapper) Update(ctx context.Context, opts ...CallOption) (int64, error) {
	q, err := u.Build(ctx, opts...)
	if err != nil {
		return 0, err
	}
	return u.exec.Update(ctx, q)
}

// Delete removes matching rows. With LogicalDelete it instead sets the
// soft-delete field to its "true" value.
func (u *UpdateWrapper) Delete(ctx context.Context, opts ...CallOption) (int64, error) {
	call := applyCallOptions(opts)
	s, err := u.prepare(ctx, call)
	if err != nil {
		return 0, err
	}

	var q *sqlgen.Query
	if call.logicalDelete {
		f := u.opts.LogicalDeletedField
		if f == "" || u.opts.LogicalDeletedTrue == nil || !s.HasColumn(f) {
			return 0, fmt.Errorf("%w: %s", ErrMissingLogicalDeleteConfig, u.table)
		}
		u.sets = append(u.sets, sqlgen.Assignment{Column: f, Value: u.opts.LogicalDeletedTrue})
		sets, err := u.assignments(ctx, s)
		if err != nil {
			return 0, err
		}
		q, err = u.exec.Generator().GenerateUpdate(u.table, sets, u.tree)
		if err != nil {
			return 0, err
		}
	} else {
		q, err = u.exec.Generator().GenerateDelete(u.table, u.tree)
		if err != nil {
			return 0, err
		}
	}
	return u.exec.Update(ctx, q)
}
