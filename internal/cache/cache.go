package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bookworm-app/bookworm/internal/logger"
)

// Cache is a generic keyed store whose entries may expire.
type Cache[K comparable, V any] interface {
	// Set stores value under key. A ttl of zero or less never expires.
	Set(key K, value V, ttl time.Duration)
	// Get returns the live value for key.
	Get(key K) (V, bool)
	// Delete removes key.
	Delete(key K)
	// Clear removes every entry.
	Clear()
	// Len reports the number of stored entries, expired or not.
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memoryCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
	log   *logger.Logger
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache[K comparable, V any](log *logger.Logger) Cache[K, V] {
	return newMemoryCache[K, V](log, time.Now)
}

func newMemoryCache[K comparable, V any](log *logger.Logger, now func() time.Time) *memoryCache[K, V] {
	if log == nil {
		log = logger.Nop()
	}
	return &memoryCache[K, V]{
		items: make(map[K]entry[V]),
		now:   now,
		log:   log,
	}
}

func (c *memoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	size := len(c.items)
	c.mu.Unlock()

	c.log.Debug("Cache set", map[string]interface{}{"key": key, "cache_size": size})
}

func (c *memoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		var zero V
		return zero, false
	}
	if item.expired(c.now()) {
		c.mu.Lock()
		// re-check: another writer may have refreshed the key meanwhile
		if cur, ok := c.items[key]; ok && cur.expired(c.now()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *memoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *memoryCache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]entry[V])
	c.mu.Unlock()

	c.log.Debug("Cache cleared")
}

func (c *memoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// WithTTL returns a wrapper that applies ttl to every Set, ignoring the
// per-call value.
func WithTTL[K comparable, V any](cache Cache[K, V], ttl time.Duration) Cache[K, V] {
	w := &ttlWrapper[K, V]{Cache: cache}
	w.ttl.Store(int64(ttl))
	return w
}

// TTLSetter is implemented by caches created with WithTTL.
type TTLSetter interface {
	SetTTL(ttl time.Duration)
}

type ttlWrapper[K comparable, V any] struct {
	Cache[K, V]
	ttl atomic.Int64
}

func (w *ttlWrapper[K, V]) Set(key K, value V, _ time.Duration) {
	w.Cache.Set(key, value, time.Duration(w.ttl.Load()))
}

// SetTTL changes the ttl applied to later writes. Entries already stored keep
// their expiry.
func (w *ttlWrapper[K, V]) SetTTL(ttl time.Duration) {
	w.ttl.Store(int64(ttl))
}
