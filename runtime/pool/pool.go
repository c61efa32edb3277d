// Package pool provides a bounded, per data source connection pool with
// Idle/Occupied state tracking.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satishbabariya/seal-go/internal/debug"
)

var (
	// ErrPoolExhausted is returned when no connection frees up within the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool closed")
	// ErrNotBorrowed is returned when releasing a connection that is not occupied in this pool.
	ErrNotBorrowed = errors.New("connection not borrowed from this pool")
	// ErrInvalidConfig is returned by New for impossible bounds.
	ErrInvalidConfig = errors.New("invalid pool configuration")
)

// DefaultPollInterval is how often a blocked Acquire rescans the pool.
const DefaultPollInterval = 100 * time.Millisecond

// Config holds connection pool configuration.
type Config struct {
	// MinConnections are opened up front and never shrunk below.
	MinConnections int
	// MaxConnections bounds the pool size.
	MaxConnections int
	// AcquireTimeout is the wait used by Acquire. Zero fails fast.
	AcquireTimeout time.Duration
	// KeepAliveInterval is how often idle connections are probed (0 = never).
	KeepAliveInterval time.Duration
	// PingOnAcquire probes a connection before handing it out.
	PingOnAcquire bool
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// DefaultConfig returns sensible default pool configuration.
func DefaultConfig() Config {
	return Config{
		MinConnections:    1,
		MaxConnections:    10,
		AcquireTimeout:    5 * time.Second,
		KeepAliveInterval: time.Minute,
		PollInterval:      DefaultPollInterval,
	}
}

func (c Config) validate() error {
	if c.MinConnections < 0 {
		return fmt.Errorf("%w: min connections %d", ErrInvalidConfig, c.MinConnections)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: max connections %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidConfig, c.MinConnections, c.MaxConnections)
	}
	return nil
}

// Pool owns between MinConnections and MaxConnections physical connections.
// Each connection is Occupied by at most one borrower at a time.
type Pool struct {
	name   string
	db     *sql.DB
	config Config

	mu      sync.Mutex
	conns   []*Conn
	opening int
	closed  bool
	nextID  uint64

	acquired  int64
	timeouts  int64
	opened    int64
	discarded int64
	waitTotal time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens a database handle for driverName/dsn and wraps it in a pool.
func Open(ctx context.Context, name, driverName, dsn string, config Config) (*Pool, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	p, err := New(ctx, name, db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// New creates a pool over db and opens MinConnections connections. The pool
// takes ownership of db; database/sql keeps no idle connections of its own.
func New(ctx context.Context, name string, db *sql.DB, config Config) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(0)

	lifecycle, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		db:     db,
		config: config,
		ctx:    lifecycle,
		cancel: cancel,
	}

	for i := 0; i < config.MinConnections; i++ {
		c, err := p.dial(ctx, Idle)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open connection %d/%d for %s: %w", i+1, config.MinConnections, name, err)
		}
		p.conns = append(p.conns, c)
	}
	metrics.size.WithLabelValues(name).Set(float64(len(p.conns)))

	if config.KeepAliveInterval > 0 {
		p.wg.Add(1)
		go p.keepAliveLoop()
	}

	debug.Debug("connection pool ready", "data_source", name, "min", config.MinConnections, "max", config.MaxConnections)
	return p, nil
}

// Name returns the data source name the pool serves.
func (p *Pool) Name() string { return p.name }

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB { return p.db }

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.config }

// Acquire borrows a connection, waiting up to the configured AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	return p.AcquireTimeout(ctx, p.config.AcquireTimeout)
}

// AcquireTimeout borrows a connection. An Idle connection is preferred; else
// a new one is opened while below MaxConnections; else the pool is rescanned
// every PollInterval until timeout elapses. A zero timeout fails fast.
func (p *Pool) AcquireTimeout(ctx context.Context, timeout time.Duration) (*Conn, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		c, reserved, err := p.take()
		if err != nil {
			return nil, err
		}

		if c != nil {
			if p.config.PingOnAcquire {
				if err := p.revive(ctx, c); err != nil {
					p.Discard(c)
					return nil, err
				}
			}
			p.borrowed(start)
			return c, nil
		}

		if reserved {
			c, err := p.dial(ctx, Occupied)
			p.mu.Lock()
			p.opening--
			if err == nil {
				if p.closed {
					p.mu.Unlock()
					c.raw.Close()
					return nil, ErrPoolClosed
				}
				p.conns = append(p.conns, c)
				metrics.size.WithLabelValues(p.name).Set(float64(len(p.conns)))
			}
			p.mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("failed to open connection for %s: %w", p.name, err)
			}
			p.borrowed(start)
			return c, nil
		}

		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			p.mu.Lock()
			p.timeouts++
			p.mu.Unlock()
			metrics.timeouts.WithLabelValues(p.name).Inc()
			return nil, fmt.Errorf("%w: %s after %s", ErrPoolExhausted, p.name, timeout)
		}

		wait := p.config.PollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-p.ctx.Done():
			timer.Stop()
			return nil, ErrPoolClosed
		case <-timer.C:
		}
	}
}

// take flips the first Idle connection to Occupied or reserves an open slot.
func (p *Pool) take() (*Conn, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}
	for _, c := range p.conns {
		if c.status == Idle {
			c.status = Occupied
			return c, false, nil
		}
	}
	if len(p.conns)+p.opening < p.config.MaxConnections {
		p.opening++
		return nil, true, nil
	}
	return nil, false, nil
}

func (p *Pool) borrowed(start time.Time) {
	waited := time.Since(start)
	p.mu.Lock()
	p.acquired++
	p.waitTotal += waited
	occupied := p.countLocked(Occupied)
	p.mu.Unlock()

	metrics.acquired.WithLabelValues(p.name).Inc()
	metrics.occupied.WithLabelValues(p.name).Set(float64(occupied))
}

// Release returns a borrowed connection. Above MinConnections the connection
// is closed and evicted; otherwise it becomes Idle again.
func (p *Pool) Release(c *Conn) error {
	if c == nil || c.pool != p {
		return ErrNotBorrowed
	}

	p.mu.Lock()
	if c.status != Occupied {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	if p.closed || len(p.conns) > p.config.MinConnections {
		p.removeLocked(c)
		size, occupied := len(p.conns), p.countLocked(Occupied)
		p.mu.Unlock()

		p.gauge(size, occupied)
		debug.Debug("connection closed on release", "data_source", p.name, "conn", c.id, "size", size)
		return c.raw.Close()
	}
	c.status = Idle
	c.lastUsed = time.Now()
	occupied := p.countLocked(Occupied)
	p.mu.Unlock()

	metrics.occupied.WithLabelValues(p.name).Set(float64(occupied))
	return nil
}

// Discard evicts a borrowed connection unconditionally, for connections the
// caller knows to be broken. The keep-alive loop refills up to
// MinConnections; without one the pool is refilled here.
func (p *Pool) Discard(c *Conn) {
	if c == nil || c.pool != p {
		return
	}
	p.mu.Lock()
	removed := p.removeLocked(c)
	size, occupied := len(p.conns), p.countLocked(Occupied)
	if removed {
		p.discarded++
	}
	p.mu.Unlock()

	if !removed {
		return
	}
	p.gauge(size, occupied)
	c.raw.Close()

	if p.config.KeepAliveInterval <= 0 {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		p.refill(ctx)
		cancel()
	}
}

func (p *Pool) removeLocked(c *Conn) bool {
	for i, pc := range p.conns {
		if pc == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			c.status = Closed
			return true
		}
	}
	return false
}

func (p *Pool) countLocked(s Status) int {
	n := 0
	for _, c := range p.conns {
		if c.status == s {
			n++
		}
	}
	return n
}

func (p *Pool) gauge(size, occupied int) {
	metrics.size.WithLabelValues(p.name).Set(float64(size))
	metrics.occupied.WithLabelValues(p.name).Set(float64(occupied))
}

func (p *Pool) dial(ctx context.Context, status Status) (*Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.opened++
	p.mu.Unlock()

	metrics.opened.WithLabelValues(p.name).Inc()
	return &Conn{pool: p, raw: raw, id: id, status: status, createdAt: now, lastUsed: now}, nil
}

// revive pings a connection the caller holds exclusively and swaps in a
// fresh physical connection if the ping fails.
func (p *Pool) revive(ctx context.Context, c *Conn) error {
	if err := c.raw.PingContext(ctx); err == nil {
		return nil
	}
	debug.Warn("reconnecting dead connection", "data_source", p.name, "conn", c.id)

	c.raw.Close()
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect %s: %w", p.name, err)
	}
	c.raw = raw
	c.createdAt = time.Now()
	metrics.opened.WithLabelValues(p.name).Inc()
	return nil
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Name         string
	Min          int
	Max          int
	Size         int
	Idle         int
	Occupied     int
	Acquired     int64
	Timeouts     int64
	Opened       int64
	Discarded    int64
	WaitDuration time.Duration
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:         p.name,
		Min:          p.config.MinConnections,
		Max:          p.config.MaxConnections,
		Size:         len(p.conns),
		Idle:         p.countLocked(Idle),
		Occupied:     p.countLocked(Occupied),
		Acquired:     p.acquired,
		Timeouts:     p.timeouts,
		Opened:       p.opened,
		Discarded:    p.discarded,
		WaitDuration: p.waitTotal,
	}
}

// keepAliveLoop runs periodic probes of idle connections.
func (p *Pool) keepAliveLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			p.KeepAlive(ctx)
			cancel()
		}
	}
}

// KeepAlive pings every Idle connection, reconnecting dead ones, then tops
// the pool back up to MinConnections.
func (p *Pool) KeepAlive(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var probing []*Conn
	for _, c := range p.conns {
		if c.status == Idle {
			c.status = Occupied
			probing = append(probing, c)
		}
	}
	p.mu.Unlock()

	for _, c := range probing {
		if err := p.revive(ctx, c); err != nil {
			debug.Error("keep-alive failed", "data_source", p.name, "conn", c.id, "error", err)
			p.Discard(c)
			continue
		}
		p.mu.Lock()
		c.status = Idle
		p.mu.Unlock()
	}

	p.refill(ctx)
}

// refill opens Idle connections until the pool holds MinConnections.
func (p *Pool) refill(ctx context.Context) {
	for {
		p.mu.Lock()
		short := !p.closed && len(p.conns)+p.opening < p.config.MinConnections
		if short {
			p.opening++
		}
		p.mu.Unlock()
		if !short {
			return
		}

		c, err := p.dial(ctx, Idle)
		p.mu.Lock()
		p.opening--
		closed := p.closed
		if err == nil && !closed {
			p.conns = append(p.conns, c)
		}
		size, occupied := len(p.conns), p.countLocked(Occupied)
		p.mu.Unlock()
		if err == nil && closed {
			c.raw.Close()
			return
		}
		if err != nil {
			debug.Error("failed to refill pool", "data_source", p.name, "error", err)
			return
		}
		p.gauge(size, occupied)
	}
}

// Close stops the keep-alive loop, closes idle connections and the database
// handle. Occupied connections are closed when released.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []*Conn
	kept := p.conns[:0]
	for _, c := range p.conns {
		if c.status == Idle {
			c.status = Closed
			idle = append(idle, c)
			continue
		}
		kept = append(kept, c)
	}
	p.conns = kept
	p.mu.Unlock()

	for _, c := range idle {
		c.raw.Close()
	}
	debug.Debug("connection pool closed", "data_source", p.name)
	return p.db.Close()
}
