package schema

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/satishbabariya/seal-go/internal/debug"
	"github.com/satishbabariya/seal-go/query/cache"
)

// LoadFunc introspects the columns of a table.
type LoadFunc func(ctx context.Context) ([]Column, error)

// StructureCache maps (data source, database, table) onto a table structure.
// Concurrent first loads of one table may both introspect; the last writer
// wins.
type StructureCache struct {
	store *cache.LRUCache
	loads atomic.Int64
}

// CacheStats reports structure cache usage.
type CacheStats struct {
	cache.Stats
	// Loads counts introspections, including reloads after eviction or expiry.
	Loads int64
}

// NewStructureCache creates an empty structure cache whose entries live for
// the process lifetime.
func NewStructureCache() *StructureCache {
	return NewBoundedStructureCache(0, 0)
}

// NewBoundedStructureCache keeps at most capacity structures, evicting the
// least recently used, and reloads entries older than ttl. Zero disables
// either bound.
func NewBoundedStructureCache(capacity int, ttl time.Duration) *StructureCache {
	return &StructureCache{store: cache.NewLRUCache(capacity, ttl)}
}

func structureKey(dataSource, database, table string) string {
	return cache.Key(dataSource, database, table)
}

// Get returns the cached structure, if any.
func (c *StructureCache) Get(dataSource, database, table string) (*TableStructure, bool) {
	v, ok := c.store.Get(structureKey(dataSource, database, table))
	if !ok {
		return nil, false
	}
	return v.(*TableStructure), true
}

// Register stores a structure under its own (data source, database, table).
func (c *StructureCache) Register(s *TableStructure) {
	c.store.Set(structureKey(s.DataSource, s.Database, s.Table), s, 0)
}

// Load returns the cached structure or introspects and caches it.
func (c *StructureCache) Load(ctx context.Context, dataSource, database, table string, load LoadFunc) (*TableStructure, error) {
	if s, ok := c.Get(dataSource, database, table); ok {
		return s, nil
	}

	columns, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.loads.Add(1)

	s := NewTableStructure(dataSource, database, table, columns)
	c.Register(s)
	debug.Debug("table structure loaded", "data_source", dataSource, "database", database, "table", table, "columns", len(columns))
	return s, nil
}

// Loads returns how many introspections the cache has performed.
func (c *StructureCache) Loads() int64 {
	return c.loads.Load()
}

// Invalidate drops one table so its next use introspects it again.
func (c *StructureCache) Invalidate(dataSource, database, table string) {
	c.store.Invalidate(structureKey(dataSource, database, table))
}

// Forget drops every structure cached for a data source.
func (c *StructureCache) Forget(dataSource string) {
	c.store.InvalidatePattern(cache.Key(dataSource, "*", "*"))
}

// Len returns the number of cached structures.
func (c *StructureCache) Len() int {
	return c.store.Len()
}

// Stats returns hit, miss and eviction counts plus the number of loads.
func (c *StructureCache) Stats() CacheStats {
	return CacheStats{Stats: c.store.GetStats(), Loads: c.Loads()}
}
