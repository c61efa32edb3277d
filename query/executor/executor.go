// Package executor runs compiled statements against one data source,
// honouring the ambient transaction of the calling unit of work.
package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/satishbabariya/seal-go/internal/debug"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/runtime/pool"
	"github.com/satishbabariya/seal-go/runtime/tx"
	"github.com/satishbabariya/seal-go/schema"
)

// Config holds executor configuration.
type Config struct {
	// Database is the default database name, part of the structure cache key.
	Database string
	// Schema overrides the introspection namespace (Postgres schema).
	Schema string
	// Structures is shared between executors; a private cache is used when nil.
	Structures  *schema.StructureCache
	Middlewares []Middleware
}

// Executor executes statements for one data source
type Executor struct {
	pool         *pool.Pool
	generator    sqlgen.Generator
	introspector schema.Introspector
	database     string
	namespace    string
	structures   *schema.StructureCache

	mu          sync.RWMutex
	middlewares []Middleware
}

// querier is satisfied by *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// New creates an executor over p for dialect
func New(p *pool.Pool, dialect string, config Config) (*Executor, error) {
	generator, err := sqlgen.NewGenerator(dialect)
	if err != nil {
		return nil, err
	}
	introspector, err := schema.NewIntrospector(dialect)
	if err != nil {
		return nil, err
	}

	structures := config.Structures
	if structures == nil {
		structures = schema.NewStructureCache()
	}

	namespace := config.Schema
	if namespace == "" && generator.Dialect() == sqlgen.MySQL {
		namespace = config.Database
	}

	return &Executor{
		pool:         p,
		generator:    generator,
		introspector: introspector,
		database:     config.Database,
		namespace:    namespace,
		structures:   structures,
		middlewares:  append([]Middleware(nil), config.Middlewares...),
	}, nil
}

// Name returns the data source name
func (e *Executor) Name() string { return e.pool.Name() }

// Dialect returns the normalized dialect name
func (e *Executor) Dialect() string { return e.generator.Dialect() }

// Generator returns the dialect's SQL generator
func (e *Executor) Generator() sqlgen.Generator { return e.generator }

// Database returns the default database name
func (e *Executor) Database() string { return e.database }

// Pool returns the connection pool
func (e *Executor) Pool() *pool.Pool { return e.pool }

// Structures returns the structure cache
func (e *Executor) Structures() *schema.StructureCache { return e.structures }

// Structure returns the cached structure of table, introspecting it on first use
func (e *Executor) Structure(ctx context.Context, table string) (*schema.TableStructure, error) {
	return e.structures.Load(ctx, e.Name(), e.database, table, func(ctx context.Context) ([]schema.Column, error) {
		var columns []schema.Column
		err := e.run(ctx, func(ctx context.Context, q querier) error {
			var err error
			columns, err = e.introspector.Columns(ctx, q, e.namespace, table)
			return err
		})
		return columns, err
	})
}

// Refresh drops the cached structure of table so the next statement
// introspects it again.
func (e *Executor) Refresh(table string) {
	e.structures.Invalidate(e.Name(), e.database, table)
}

// run hands fn the ambient transaction when one is open on this data
// source. Otherwise fn runs in its own transaction on a borrowed
// connection which is committed (or rolled back) and released afterwards.
func (e *Executor) run(ctx context.Context, fn func(ctx context.Context, q querier) error) error {
	if tc, ok := tx.FromContext(ctx); ok {
		if active, ok := tc.ActiveFor(e.Name()); ok {
			return fn(ctx, active.Tx)
		}
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		e.release(conn, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, sqlTx); err != nil {
		var result *multierror.Error
		result = multierror.Append(result, err)
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			result = multierror.Append(result, fmt.Errorf("rollback: %w", rbErr))
		}
		if relErr := e.release(conn, err); relErr != nil {
			result = multierror.Append(result, relErr)
		}
		if len(result.Errors) == 1 {
			return err
		}
		return result
	}

	commitErr := sqlTx.Commit()
	relErr := e.release(conn, commitErr)
	if commitErr != nil {
		return fmt.Errorf("failed to commit: %w", commitErr)
	}
	return relErr
}

func (e *Executor) release(conn *pool.Conn, cause error) error {
	if errors.Is(cause, driver.ErrBadConn) || errors.Is(cause, sql.ErrConnDone) {
		debug.Warn("discarding broken connection", "data_source", e.Name(), "conn", conn.ID(), "error", cause)
		e.pool.Discard(conn)
		return nil
	}
	return e.pool.Release(conn)
}

// statement rebinds query for the driver and runs exec through the middleware chain
func (e *Executor) statement(ctx context.Context, op, query string, args []interface{}, exec func(query string) error) error {
	query = e.generator.Rebind(query)
	err := e.intercept(ctx, op, query, args, func() error { return exec(query) })
	if err != nil {
		return &StatementError{Op: op, SQL: query, Args: args, Cause: err}
	}
	return nil
}

func (e *Executor) query(ctx context.Context, q querier, op, query string, args []interface{}) ([]string, [][]interface{}, error) {
	var columns []string
	var rows [][]interface{}
	err := e.statement(ctx, op, query, args, func(query string) error {
		r, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer r.Close()
		columns, rows, err = scanAll(r)
		return err
	})
	return columns, rows, err
}

func (e *Executor) exec(ctx context.Context, q querier, op, query string, args []interface{}) (sql.Result, error) {
	var res sql.Result
	err := e.statement(ctx, op, query, args, func(query string) error {
		var err error
		res, err = q.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func scanAll(rows *sql.Rows) ([]string, [][]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

// Find runs a SELECT and returns its first row.
func (e *Executor) Find(ctx context.Context, q *sqlgen.Query, typ *schema.RecordType) (*Result, error) {
	var result *Result
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		columns, rows, err := e.query(ctx, tq, "find", q.SQL, q.Args)
		if err != nil {
			return err
		}
		var row []interface{}
		if len(rows) > 0 {
			row = rows[0]
		}
		result = NewResult(columns, row, typ)
		return nil
	})
	return result, err
}

// FindList runs a SELECT and returns every row.
func (e *Executor) FindList(ctx context.Context, q *sqlgen.Query, typ *schema.RecordType) (*Results, error) {
	var results *Results
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		columns, rows, err := e.query(ctx, tq, "find_list", q.SQL, q.Args)
		if err != nil {
			return err
		}
		results = NewResults(columns, rows, typ)
		return nil
	})
	return results, err
}

// FindPage runs a paged SELECT and its COUNT on the same connection.
func (e *Executor) FindPage(ctx context.Context, q, count *sqlgen.Query, typ *schema.RecordType, page, pageSize int) (*Page, error) {
	result := &Page{Page: page, PageSize: pageSize}
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		columns, rows, err := e.query(ctx, tq, "page", q.SQL, q.Args)
		if err != nil {
			return err
		}
		result.Records = NewResults(columns, rows, typ)

		total, err := e.scalar(ctx, tq, "count", count.SQL, count.Args)
		if err != nil {
			return err
		}
		result.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Count runs a COUNT query.
func (e *Executor) Count(ctx context.Context, q *sqlgen.Query) (int64, error) {
	var n int64
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		var err error
		n, err = e.scalar(ctx, tq, "count", q.SQL, q.Args)
		return err
	})
	return n, err
}

func (e *Executor) scalar(ctx context.Context, q querier, op, query string, args []interface{}) (int64, error) {
	_, rows, err := e.query(ctx, q, op, query, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	v, err := schema.Coerce(schema.KindInt, rows[0][0])
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int64), nil
}

// Update runs an UPDATE or DELETE and returns the affected row count.
func (e *Executor) Update(ctx context.Context, q *sqlgen.Query) (int64, error) {
	var affected int64
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		res, err := e.exec(ctx, tq, "update", q.SQL, q.Args)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// Insert runs a single-row INSERT and returns the generated key, or 0 when
// the row was ignored or the driver reports none.
func (e *Executor) Insert(ctx context.Context, q *sqlgen.InsertQuery) (int64, error) {
	if len(q.Rows) != 1 {
		return 0, fmt.Errorf("insert expects one row, got %d", len(q.Rows))
	}

	var id int64
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		var err error
		id, err = e.insertRow(ctx, tq, "insert", q, q.Rows[0])
		return err
	})
	return id, err
}

func (e *Executor) insertRow(ctx context.Context, tq querier, op string, q *sqlgen.InsertQuery, args []interface{}) (int64, error) {
	if q.Returning {
		_, rows, err := e.query(ctx, tq, op, q.SQL, args)
		if err != nil || len(rows) == 0 {
			return 0, err
		}
		v, err := schema.Coerce(schema.KindInt, rows[0][0])
		if err != nil || v == nil {
			return 0, err
		}
		return v.(int64), nil
	}

	res, err := e.exec(ctx, tq, op, q.SQL, args)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// InsertBulk runs the INSERT once per row inside one transaction and
// returns the total affected rows. Any failure rolls back the whole batch.
func (e *Executor) InsertBulk(ctx context.Context, q *sqlgen.InsertQuery) (int64, error) {
	var total int64
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		for i, args := range q.Rows {
			res, err := e.exec(ctx, tq, "insert_bulk", q.SQL, args)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// CustomQuery runs raw SQL with "?" placeholders. Rows carry no record type.
func (e *Executor) CustomQuery(ctx context.Context, query string, args ...interface{}) (*Results, error) {
	return e.CustomQueryAs(ctx, nil, query, args...)
}

// CustomQueryAs runs raw SQL and interprets rows with typ.
func (e *Executor) CustomQueryAs(ctx context.Context, typ *schema.RecordType, query string, args ...interface{}) (*Results, error) {
	var results *Results
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		columns, rows, err := e.query(ctx, tq, "custom_query", query, args)
		if err != nil {
			return err
		}
		results = NewResults(columns, rows, typ)
		return nil
	})
	return results, err
}

// CustomUpdate runs raw DML with "?" placeholders and returns the affected row count.
func (e *Executor) CustomUpdate(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := e.run(ctx, func(ctx context.Context, tq querier) error {
		res, err := e.exec(ctx, tq, "custom_update", query, args)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
