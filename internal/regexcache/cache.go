// Package regexcache provides a bounded LRU cache of compiled regular
// expressions shared by the path matcher and the condition evaluator.
package regexcache

import (
	"regexp"
	"sync"
)

// DefaultSize is the maximum number of entries held by the default cache.
const DefaultSize = 1000

type entry struct {
	regex       *regexp.Regexp
	err         error
	accessOrder int64
}

// Cache is a bounded LRU cache for compiled regular expressions. Compile
// failures are cached too, so a broken user-authored expression is only
// compiled once.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	counter int64
	maxSize int
	metrics *cacheMetrics
}

// New creates a cache holding at most maxSize expressions.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		metrics: getCacheMetrics(),
	}
}

var defaultCache = New(DefaultSize)

// Default returns the process-wide cache.
func Default() *Cache {
	return defaultCache
}

// Compile returns the compiled expression for expr, compiling and caching
// it on first use.
func (c *Cache) Compile(expr string) (*regexp.Regexp, error) {
	c.mu.Lock()
	if e, ok := c.entries[expr]; ok {
		c.counter++
		e.accessOrder = c.counter
		c.mu.Unlock()
		c.metrics.hits.Inc()
		return e.regex, e.err
	}
	c.mu.Unlock()

	c.metrics.misses.Inc()

	// Compile outside the lock
	regex, err := regexp.Compile(expr)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have added it meanwhile
	if existing, ok := c.entries[expr]; ok {
		c.counter++
		existing.accessOrder = c.counter
		return existing.regex, existing.err
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
		c.metrics.evictions.Inc()
	}

	c.counter++
	c.entries[expr] = &entry{regex: regex, err: err, accessOrder: c.counter}
	c.metrics.size.Set(float64(len(c.entries)))

	return regex, err
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLRU removes the least recently used entry.
// Must be called with c.mu held.
func (c *Cache) evictLRU() {
	var lruKey string
	var lruOrder int64 = -1

	for key, e := range c.entries {
		if lruOrder == -1 || e.accessOrder < lruOrder {
			lruOrder = e.accessOrder
			lruKey = key
		}
	}

	if lruKey != "" {
		delete(c.entries, lruKey)
	}
}
