package embedding

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache is a bounded embedding cache that evicts the oldest insertion first.
// Lookups do not refresh an entry's position.
type Cache struct {
	mu      sync.Mutex
	max     int
	order   *list.List // front = oldest
	entries map[string]*list.Element
}

type cacheEntry struct {
	key string
	vec []float64
}

// NewCache returns a cache holding at most max entries. max <= 0 disables caching.
func NewCache(max int) *Cache {
	return &Cache{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// CacheKey hashes the model identifier together with the text.
func CacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return clone(el.Value.(*cacheEntry).vec), true
}

// Put stores vec under key, evicting the oldest entries beyond capacity.
// Re-putting an existing key replaces the vector in place.
func (c *Cache) Put(key string, vec []float64) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).vec = clone(vec)
		return
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, vec: clone(vec)})
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
