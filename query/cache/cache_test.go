package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	_, ok := c.Get("a") // a becomes most recent
	assert.True(t, ok)

	c.Set("c", 3, 0) // evicts b
	_, ok = c.Get("b")
	assert.False(t, ok)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestUnboundedNeverEvicts(t *testing.T) {
	c := NewLRUCache(0, 0)
	for i := 0; i < 100; i++ {
		c.Set(Key("ds", "db", string(rune('a'+i%26)), string(rune('0'+i/26))), i, 0)
	}
	assert.Equal(t, 100, c.Len())
}

func TestExpiry(t *testing.T) {
	c := NewLRUCache(10, 0)
	c.Set("short", 1, time.Millisecond)
	c.Set("forever", 2, 0)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestInvalidatePattern(t *testing.T) {
	c := NewLRUCache(0, 0)
	c.Set(Key("main", "app", "users"), 1, 0)
	c.Set(Key("main", "app", "orders"), 2, 0)
	c.Set(Key("replica", "app", "users"), 3, 0)

	c.InvalidatePattern("main:*:*")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Key("replica", "app", "users"))
	assert.True(t, ok)

	c.Invalidate(Key("replica", "app", "users"))
	assert.Equal(t, 0, c.Len())
}
