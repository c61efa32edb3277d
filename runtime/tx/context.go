// Package tx holds the ambient transaction of one unit of work.
package tx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
	"github.com/satishbabariya/seal-go/internal/debug"
	"github.com/satishbabariya/seal-go/runtime/pool"
)

var (
	// ErrNoActiveTransaction is returned by Commit or Rollback without Begin.
	ErrNoActiveTransaction = errors.New("no active transaction")
	// ErrTransactionActive is returned by Begin when a transaction is already open.
	ErrTransactionActive = errors.New("transaction already active")
	// ErrNoUnitOfWork is returned when ctx carries no transaction context.
	ErrNoUnitOfWork = errors.New("no unit of work in context")
)

// contextKey is a type for context keys.
type contextKey string

const txKey contextKey = "seal_tx"

// Acquirer is a data source connections can be borrowed from.
type Acquirer interface {
	Name() string
	Acquire(ctx context.Context) (*pool.Conn, error)
}

// Context holds at most one active transactional connection. One Context
// belongs to one unit of work and must not be shared between concurrent ones.
type Context struct {
	mu         sync.Mutex
	conn       *pool.Conn
	tx         *sql.Tx
	dataSource string
	id         string
	startedAt  time.Time
}

// New returns an empty transaction context.
func New() *Context {
	return &Context{}
}

// WithContext stores a transaction context in ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, txKey, tc)
}

// FromContext retrieves the transaction context from ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(txKey).(*Context)
	return tc, ok && tc != nil
}

// NewUnitOfWork returns ctx carrying a fresh, empty transaction context.
func NewUnitOfWork(ctx context.Context) context.Context {
	return WithContext(ctx, New())
}

// Active describes the open transaction.
type Active struct {
	ID         string
	DataSource string
	Conn       *pool.Conn
	Tx         *sql.Tx
}

// Active returns the open transaction, if any.
func (c *Context) Active() (Active, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return Active{}, false
	}
	return Active{ID: c.id, DataSource: c.dataSource, Conn: c.conn, Tx: c.tx}, true
}

// ActiveFor returns the open transaction when it was begun on dataSource.
func (c *Context) ActiveFor(dataSource string) (Active, bool) {
	a, ok := c.Active()
	if !ok || a.DataSource != dataSource {
		return Active{}, false
	}
	return a, true
}

// Begin borrows a connection from src and opens a transaction on it.
func (c *Context) Begin(ctx context.Context, src Acquirer, opts *sql.TxOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return fmt.Errorf("%w: %s on %s", ErrTransactionActive, c.id, c.dataSource)
	}

	conn, err := src.Acquire(ctx)
	if err != nil {
		return err
	}
	sqlTx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		releaseConn(conn, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		sqlTx.Rollback()
		releaseConn(conn, nil)
		return fmt.Errorf("failed to generate transaction id: %w", err)
	}

	c.conn, c.tx, c.dataSource, c.id, c.startedAt = conn, sqlTx, src.Name(), id, time.Now()
	debug.Debug("transaction begin", "tx", id, "data_source", c.dataSource, "conn", conn.ID())
	return nil
}

// Commit commits the open transaction and releases its connection.
func (c *Context) Commit() error {
	return c.finish("commit", (*sql.Tx).Commit)
}

// Rollback rolls the open transaction back and releases its connection.
func (c *Context) Rollback() error {
	return c.finish("rollback", (*sql.Tx).Rollback)
}

func (c *Context) finish(op string, end func(*sql.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return ErrNoActiveTransaction
	}

	var result *multierror.Error
	endErr := end(c.tx)
	if endErr != nil {
		result = multierror.Append(result, fmt.Errorf("failed to %s transaction %s: %w", op, c.id, endErr))
	}
	if err := releaseConn(c.conn, endErr); err != nil {
		result = multierror.Append(result, err)
	}

	debug.Debug("transaction "+op, "tx", c.id, "data_source", c.dataSource, "elapsed", time.Since(c.startedAt), "error", endErr)
	c.conn, c.tx, c.dataSource, c.id = nil, nil, "", ""
	return result.ErrorOrNil()
}

// releaseConn returns conn to its pool, discarding it when cause says the
// physical connection is broken.
func releaseConn(conn *pool.Conn, cause error) error {
	if errors.Is(cause, driver.ErrBadConn) || errors.Is(cause, sql.ErrConnDone) {
		conn.Pool().Discard(conn)
		return nil
	}
	return conn.Release()
}

// Run executes fn inside a transaction on src carried by a unit of work.
// fn's error, or a panic, rolls back; otherwise the transaction commits.
func Run(ctx context.Context, src Acquirer, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	tc, ok := FromContext(ctx)
	if !ok {
		tc = New()
		ctx = WithContext(ctx, tc)
	}
	if err := tc.Begin(ctx, src, opts); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tc.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := tc.Rollback(); rbErr != nil {
			return multierror.Append(err, rbErr)
		}
		return err
	}
	return tc.Commit()
}
