// Package cache provides an in-process LRU store with optional expiry.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Stats is a snapshot of cache usage. HitRate is a percentage.
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

// LRUCache implements an LRU cache with TTL support.
// A maxSize <= 0 never evicts and a defaultTTL <= 0 never expires.
type LRUCache struct {
	mu         sync.Mutex
	data       map[string]*cacheNode
	maxSize    int
	defaultTTL time.Duration
	head       *cacheNode
	tail       *cacheNode
	hits       int64
	misses     int64
	evictions  int64
}

// cacheNode represents a node in the doubly-linked list for LRU
type cacheNode struct {
	key       string
	value     interface{}
	expiresAt time.Time
	prev      *cacheNode
	next      *cacheNode
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(maxSize int, defaultTTL time.Duration) *LRUCache {
	return &LRUCache{
		data:       make(map[string]*cacheNode),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// Key joins key parts with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Get retrieves a value from the cache
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.data[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if !node.expiresAt.IsZero() && time.Now().After(node.expiresAt) {
		c.removeNode(node)
		c.misses++
		return nil, false
	}

	c.moveToFront(node)
	c.hits++
	return node.value, true
}

// Set stores a value in the cache. A zero ttl uses the default TTL.
func (c *LRUCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if node, exists := c.data[key]; exists {
		node.value = value
		node.expiresAt = expiresAt
		c.moveToFront(node)
		return
	}

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLRU()
	}

	node := &cacheNode{key: key, value: value, expiresAt: expiresAt}
	c.addToFront(node)
	c.data[key] = node
}

// Invalidate removes a specific key from the cache
func (c *LRUCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.data[key]; ok {
		c.removeNode(node)
	}
}

// InvalidatePattern removes all keys matching a pattern.
// Pattern segments are separated by ":" and "*" matches any one segment.
func (c *LRUCache) InvalidatePattern(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, node := range c.data {
		if matchesPattern(key, pattern) {
			c.removeNode(node)
		}
	}
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// GetStats returns cache statistics
func (c *LRUCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.data),
		MaxSize:   c.maxSize,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// addToFront adds a node to the front of the list
func (c *LRUCache) addToFront(node *cacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// moveToFront moves a node to the front of the list
func (c *LRUCache) moveToFront(node *cacheNode) {
	if node == c.head {
		return
	}
	c.unlink(node)
	c.addToFront(node)
}

func (c *LRUCache) unlink(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

// removeNode removes a node from the list and the index
func (c *LRUCache) removeNode(node *cacheNode) {
	c.unlink(node)
	delete(c.data, node.key)
}

// evictLRU evicts the least recently used node
func (c *LRUCache) evictLRU() {
	if c.tail == nil {
		return
	}
	c.removeNode(c.tail)
	c.evictions++
}

// matchesPattern checks if a key matches a pattern
func matchesPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}

	parts := strings.Split(pattern, ":")
	keyParts := strings.Split(key, ":")
	if len(parts) != len(keyParts) {
		return false
	}

	for i, part := range parts {
		if part != "*" && part != keyParts[i] {
			return false
		}
	}
	return true
}
