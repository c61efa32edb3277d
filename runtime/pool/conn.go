package pool

import (
	"context"
	"database/sql"
	"time"
)

// Status is the lifecycle state of a pooled connection.
type Status int

const (
	Idle Status = iota
	Occupied
	Closed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Occupied:
		return "occupied"
	default:
		return "closed"
	}
}

// Conn is one physical connection owned by a Pool. Only the borrower that
// acquired it may use it, and only until Release.
type Conn struct {
	pool      *Pool
	raw       *sql.Conn
	id        uint64
	status    Status
	createdAt time.Time
	lastUsed  time.Time
}

// ID identifies the connection within its pool.
func (c *Conn) ID() uint64 { return c.id }

// Raw returns the underlying database/sql connection.
func (c *Conn) Raw() *sql.Conn { return c.raw }

// CreatedAt returns when the physical connection was opened.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Status returns the connection's current state.
func (c *Conn) Status() Status {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.status
}

// Pool returns the owning pool.
func (c *Conn) Pool() *Pool { return c.pool }

// BeginTx starts a transaction on the connection.
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.raw.BeginTx(ctx, opts)
}

// Release returns the connection to its pool.
func (c *Conn) Release() error { return c.pool.Release(c) }
