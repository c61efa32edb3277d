// Package client provides the data source registry every statement is
// routed through.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/seal-go/config"
	"github.com/satishbabariya/seal-go/internal/debug"
	"github.com/satishbabariya/seal-go/query/builder"
	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/runtime/pool"
	"github.com/satishbabariya/seal-go/schema"
)

var (
	ErrUnknownDataSource   = errors.New("unknown data source")
	ErrDuplicateDataSource = errors.New("data source already registered")
	ErrNoDefault           = errors.New("no default data source")
	ErrRegistryClosed      = errors.New("registry closed")
)

// DataSource is one named database: its pool and the executor bound to it.
type DataSource struct {
	Name     string
	Dialect  string
	Pool     *pool.Pool
	Executor *executor.Executor
}

// Registry owns every data source of the process. It is built once at
// startup and handed to whatever needs a connection.
type Registry struct {
	mu          sync.RWMutex
	sources     map[string]*DataSource
	defaultName string
	closed      bool

	structures  *schema.StructureCache
	options     builder.Options
	middlewares []executor.Middleware
}

// NewRegistry creates an empty registry whose executors share one
// structure cache.
func NewRegistry(options builder.Options, middlewares ...executor.Middleware) *Registry {
	return &Registry{
		sources:     make(map[string]*DataSource),
		structures:  schema.NewStructureCache(),
		options:     options,
		middlewares: middlewares,
	}
}

// New opens every data source in cfg. Already opened pools are closed
// again when a later one fails.
func New(ctx context.Context, cfg *config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug.Configure(debug.Options{
		Enabled: cfg.Log.Enabled,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	var middlewares []executor.Middleware
	if cfg.Log.Enabled {
		middlewares = append(middlewares, executor.LoggingMiddleware())
	}

	r := NewRegistry(BuilderOptions(cfg.ORM), middlewares...)
	r.structures = schema.NewBoundedStructureCache(cfg.StructureCache.Capacity, cfg.StructureCache.TTL)
	defaultName := cfg.DefaultName()
	for _, name := range cfg.Names() {
		if err := r.Open(ctx, name, cfg.DataSources[name], name == defaultName); err != nil {
			if cerr := r.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
			return nil, err
		}
	}
	return r, nil
}

// Open connects the configured data source and registers it as name.
func (r *Registry) Open(ctx context.Context, name string, ds config.DataSource, isDefault bool) error {
	dsn, err := ds.ConnectionString()
	if err != nil {
		return fmt.Errorf("data source %s: %w", name, err)
	}

	p, err := pool.Open(ctx, name, ds.DriverName(), dsn, PoolConfig(ds.Pool))
	if err != nil {
		return fmt.Errorf("data source %s: %w", name, err)
	}

	exec, err := executor.New(p, ds.Dialect, executor.Config{
		Database:    ds.Database,
		Schema:      ds.Schema,
		Structures:  r.structures,
		Middlewares: r.middlewares,
	})
	if err != nil {
		p.Close()
		return fmt.Errorf("data source %s: %w", name, err)
	}

	if err := r.Register(&DataSource{Name: name, Dialect: exec.Dialect(), Pool: p, Executor: exec}, isDefault); err != nil {
		p.Close()
		return err
	}

	debug.Info("Data source opened", "data_source", name, "dialect", exec.Dialect(),
		"min", ds.Pool.MinConnections, "max", ds.Pool.MaxConnections)
	return nil
}

// Register adds an already opened data source. The first one registered
// becomes the default unless a later call passes isDefault.
func (r *Registry) Register(ds *DataSource, isDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.sources[ds.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDataSource, ds.Name)
	}
	r.sources[ds.Name] = ds
	if isDefault || r.defaultName == "" {
		r.defaultName = ds.Name
	}
	return nil
}

// Get returns the named data source. An empty name means the default.
func (r *Registry) Get(name string) (*DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if name == "" {
		name = r.defaultName
		if name == "" {
			return nil, ErrNoDefault
		}
	}
	ds, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataSource, name)
	}
	return ds, nil
}

// Default returns the default data source.
func (r *Registry) Default() (*DataSource, error) {
	return r.Get("")
}

// Names returns the registered data source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options returns the builder options derived from the ORM configuration.
func (r *Registry) Options() builder.Options {
	return r.options
}

// Structures returns the structure cache shared by all executors.
func (r *Registry) Structures() *schema.StructureCache {
	return r.structures
}

// Use adds middleware to every registered executor.
func (r *Registry) Use(middleware executor.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.middlewares = append(r.middlewares, middleware)
	for _, ds := range r.sources {
		ds.Executor.Use(middleware)
	}
}

// Stats returns pool statistics for every data source, sorted by name.
func (r *Registry) Stats() []pool.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]pool.Stats, 0, len(r.sources))
	for _, ds := range r.sources {
		stats = append(stats, ds.Pool.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Close closes every pool. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var result *multierror.Error
	for name, ds := range r.sources {
		if err := ds.Pool.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("data source %s: %w", name, err))
		}
		r.structures.Forget(name)
	}
	return result.ErrorOrNil()
}

// PoolConfig converts configured pool bounds, filling pool defaults for
// unset durations. A negative acquire timeout requests fail-fast acquisition.
func PoolConfig(c config.Pool) pool.Config {
	out := pool.DefaultConfig()
	out.MinConnections = c.MinConnections
	out.MaxConnections = c.MaxConnections
	out.PingOnAcquire = c.PingOnAcquire
	switch {
	case c.AcquireTimeout > 0:
		out.AcquireTimeout = c.AcquireTimeout
	case c.AcquireTimeout < 0:
		out.AcquireTimeout = 0
	}
	switch {
	case c.KeepAliveInterval > 0:
		out.KeepAliveInterval = c.KeepAliveInterval
	case c.KeepAliveInterval < 0:
		out.KeepAliveInterval = 0
	}
	return out
}

// BuilderOptions converts the ORM section.
func BuilderOptions(o config.ORM) builder.Options {
	return builder.Options{
		TenantField:         o.TenantField,
		TenantValue:         o.TenantValue,
		LogicalDeletedField: o.LogicalDeletedField,
		LogicalDeletedTrue:  o.LogicalDeletedTrue,
		LogicalDeletedFalse: o.LogicalDeletedFalse,
		CreatedByField:      o.CreatedByField,
		CreatedAtField:      o.CreatedAtField,
		UpdatedByField:      o.UpdatedByField,
		UpdatedAtField:      o.UpdatedAtField,
	}
}
