// Package builder provides the fluent, single-use statement builders:
// QueryWrapper, UpdateWrapper and InsertWrapper.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/schema"
)

var (
	ErrMissingTenantValue         = errors.New("tenant value not set")
	ErrMissingLogicalDeleteConfig = errors.New("logical deleted field and values not set")
	ErrBuilderConsumed            = errors.New("builder already used")
	ErrNilRecord                  = errors.New("nil record")
	ErrUnknownColumn              = errors.New("unknown column")
	ErrInvalidPage                = errors.New("invalid page")
)

// Options configures the public fields every builder maintains.
type Options struct {
	TenantField string
	TenantValue interface{}

	LogicalDeletedField string
	LogicalDeletedTrue  interface{}
	LogicalDeletedFalse interface{}

	CreatedByField string
	CreatedAtField string
	UpdatedByField string
	UpdatedAtField string

	// Now overrides time.Now for audit timestamps.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

type contextKey string

const (
	operatorKey contextKey = "seal_operator"
	tenantKey   contextKey = "seal_tenant"
)

// WithOperator stores the acting user id used for created_by / updated_by.
func WithOperator(ctx context.Context, operator interface{}) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// OperatorFromContext returns the acting user id, if any.
func OperatorFromContext(ctx context.Context) interface{} {
	return ctx.Value(operatorKey)
}

// WithTenant overrides the configured tenant value for one unit of work.
func WithTenant(ctx context.Context, tenant interface{}) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

func (o Options) tenant(ctx context.Context) interface{} {
	if v := ctx.Value(tenantKey); v != nil {
		return v
	}
	return o.TenantValue
}

// CallOption adjusts one terminal call.
type CallOption func(*callOptions)

type callOptions struct {
	logicalDeletedField string
	logicalDelete       bool
}

// FilterDeleted replaces the configured public-field filters with
// "field = 0" for this call only.
func FilterDeleted(field string) CallOption {
	return func(o *callOptions) { o.logicalDeletedField = field }
}

// LogicalDelete turns Delete into an update of the soft-delete field.
func LogicalDelete() CallOption {
	return func(o *callOptions) { o.logicalDelete = true }
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// wrapper is the state shared by every builder bound to a table.
type wrapper struct {
	exec     *executor.Executor
	table    string
	opts     Options
	consumed bool
	err      error
}

// begin marks the builder used and resolves the table structure.
func (w *wrapper) begin(ctx context.Context) (*schema.TableStructure, error) {
	if w.consumed {
		return nil, ErrBuilderConsumed
	}
	w.consumed = true
	if w.err != nil {
		return nil, w.err
	}
	return w.exec.Structure(ctx, w.table)
}

// handlePublicFields injects the tenant and soft-delete filters. A
// per-call override applies "field = 0" instead. Filters are only added
// for columns the table has.
func (w *wrapper) handlePublicFields(ctx context.Context, s *schema.TableStructure, tree *sqlgen.ConditionTree, call callOptions) error {
	if call.logicalDeletedField != "" {
		tree.AddCondition(sqlgen.NewCondition(call.logicalDeletedField, 0, sqlgen.OpEq))
		return nil
	}

	if f := w.opts.TenantField; f != "" && s.HasColumn(f) {
		v := w.opts.tenant(ctx)
		if v == nil {
			return fmt.Errorf("%w: %s.%s", ErrMissingTenantValue, w.table, f)
		}
		tree.AddCondition(sqlgen.NewCondition(f, v, sqlgen.OpEq))
	}

	if f := w.opts.LogicalDeletedField; f != "" && s.HasColumn(f) {
		if w.opts.LogicalDeletedTrue == nil || w.opts.LogicalDeletedFalse == nil {
			return fmt.Errorf("%w: %s.%s", ErrMissingLogicalDeleteConfig, w.table, f)
		}
		tree.AddCondition(sqlgen.NewCondition(f, w.opts.LogicalDeletedFalse, sqlgen.OpEq))
	}
	return nil
}

func checkColumns(s *schema.TableStructure, names ...string) error {
	for _, n := range names {
		if !s.HasColumn(n) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, n)
		}
	}
	return nil
}

func checkConditions(s *schema.TableStructure, tree *sqlgen.ConditionTree) error {
	for _, c := range tree.Conditions() {
		if err := checkColumns(s, c.Field()); err != nil {
			return err
		}
	}
	return nil
}
