// Package seal is a lightweight SQL toolkit: pooled connections per data
// source, an ambient per-request transaction, and single-use fluent
// builders that maintain tenant, soft-delete and audit columns.
//
//	db, err := seal.OpenFile(ctx, "seal.yaml")
//	ctx = seal.NewUnitOfWork(ctx)
//	users, err := db.Query("users").Eq("status", 1).Desc("id").Page(ctx, 1, 20)
package seal

import (
	"context"
	"fmt"

	"github.com/satishbabariya/seal-go/config"
	"github.com/satishbabariya/seal-go/query/builder"
	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/runtime/client"
	"github.com/satishbabariya/seal-go/runtime/tx"
)

// DB routes builders and raw statements to registered data sources. Its
// embedded Source is the default data source.
type DB struct {
	*Source
	registry *client.Registry
}

// Source is one data source's statement surface.
type Source struct {
	ds      *client.DataSource
	options builder.Options
}

// Open opens every data source in cfg.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	registry, err := client.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db, err := New(registry)
	if err != nil {
		registry.Close()
		return nil, err
	}
	return db, nil
}

// OpenFile loads configuration from path (see config.Load) and opens it.
func OpenFile(ctx context.Context, path string) (*DB, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// New wraps an existing registry.
func New(registry *client.Registry) (*DB, error) {
	ds, err := registry.Default()
	if err != nil {
		return nil, err
	}
	return &DB{
		Source:   &Source{ds: ds, options: registry.Options()},
		registry: registry,
	}, nil
}

// Registry returns the underlying data source registry.
func (db *DB) Registry() *client.Registry {
	return db.registry
}

// On returns the named data source.
func (db *DB) On(dataSource string) (*Source, error) {
	ds, err := db.registry.Get(dataSource)
	if err != nil {
		return nil, err
	}
	return &Source{ds: ds, options: db.registry.Options()}, nil
}

// BeginTx opens the ambient transaction of ctx's unit of work on
// dataSource ("" is the default). Statements on that data source issued
// with ctx join it until CommitTx or RollbackTx.
func (db *DB) BeginTx(ctx context.Context, dataSource string) error {
	return db.BeginTxWith(ctx, dataSource, tx.Default, false)
}

// BeginTxWith is BeginTx with an isolation level and read-only flag.
func (db *DB) BeginTxWith(ctx context.Context, dataSource string, level tx.IsolationLevel, readOnly bool) error {
	tc, ok := tx.FromContext(ctx)
	if !ok {
		return tx.ErrNoUnitOfWork
	}
	ds, err := db.registry.Get(dataSource)
	if err != nil {
		return err
	}
	return tc.Begin(ctx, ds.Pool, tx.Options(level, readOnly))
}

// Transaction runs fn inside a transaction on dataSource, committing when
// fn returns nil and rolling back otherwise.
func (db *DB) Transaction(ctx context.Context, dataSource string, fn func(ctx context.Context) error) error {
	ds, err := db.registry.Get(dataSource)
	if err != nil {
		return err
	}
	return tx.Run(ctx, ds.Pool, nil, fn)
}

// Close closes every data source.
func (db *DB) Close() error {
	return db.registry.Close()
}

// CommitTx commits the ambient transaction of ctx.
func CommitTx(ctx context.Context) error {
	tc, ok := tx.FromContext(ctx)
	if !ok {
		return tx.ErrNoActiveTransaction
	}
	return tc.Commit()
}

// RollbackTx rolls back the ambient transaction of ctx.
func RollbackTx(ctx context.Context) error {
	tc, ok := tx.FromContext(ctx)
	if !ok {
		return tx.ErrNoActiveTransaction
	}
	return tc.Rollback()
}

// NewUnitOfWork returns ctx carrying its own transaction context. Call it
// once per request or task.
func NewUnitOfWork(ctx context.Context) context.Context {
	return tx.NewUnitOfWork(ctx)
}

// WithOperator records the user id written to the created/updated-by columns.
func WithOperator(ctx context.Context, operator interface{}) context.Context {
	return builder.WithOperator(ctx, operator)
}

// WithTenant overrides the configured tenant value for ctx.
func WithTenant(ctx context.Context, tenant interface{}) context.Context {
	return builder.WithTenant(ctx, tenant)
}

// Name returns the data source name.
func (s *Source) Name() string {
	return s.ds.Name
}

// Executor returns the data source's executor.
func (s *Source) Executor() *executor.Executor {
	return s.ds.Executor
}

// Query starts a SELECT on table.
func (s *Source) Query(table string) *builder.QueryWrapper {
	return builder.NewQuery(s.ds.Executor, table, s.options)
}

// Update starts an UPDATE or DELETE on table.
func (s *Source) Update(table string) *builder.UpdateWrapper {
	return builder.NewUpdate(s.ds.Executor, table, s.options)
}

// Insert starts an INSERT on table.
func (s *Source) Insert(table string) *builder.InsertWrapper {
	return builder.NewInsert(s.ds.Executor, table, s.options)
}

// CustomQuery runs raw SQL with ? placeholders. Rows carry no record type.
func (s *Source) CustomQuery(ctx context.Context, query string, args ...interface{}) (*executor.Results, error) {
	return s.ds.Executor.CustomQuery(ctx, query, args...)
}

// CustomQueryAs runs raw SQL and types the rows with table's record type.
func (s *Source) CustomQueryAs(ctx context.Context, table, query string, args ...interface{}) (*executor.Results, error) {
	st, err := s.ds.Executor.Structure(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to load structure of %s: %w", table, err)
	}
	return s.ds.Executor.CustomQueryAs(ctx, st.Record, query, args...)
}

// CustomUpdate runs a raw statement and returns the affected row count.
func (s *Source) CustomUpdate(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return s.ds.Executor.CustomUpdate(ctx, query, args...)
}
