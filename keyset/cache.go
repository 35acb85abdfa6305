package keyset

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/metrics"
)

const (
	lookupHit     = "hit"
	lookupMiss    = "miss"
	lookupExpired = "expired"
)

type cacheEntry struct {
	keys     []cryptoutils.PublicKey
	storedAt time.Time
}

// Cache is a bounded LRU mapping normalized queries to the public keys they
// resolved to. A single mutex guards both the lookup and the recency
// ordering so a Get or Put is atomic with respect to eviction.
//
// With a zero maxAge entries live until evicted by capacity pressure, so a
// principal removed from the directory stays in the cached key set until
// then. A positive maxAge bounds that window.
type Cache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates a cache holding at most capacity queries.
func NewCache(capacity int, maxAge time.Duration) (*Cache, error) {
	if capacity <= 0 {
		return nil, errors.New("key-set cache capacity must be positive")
	}
	if maxAge < 0 {
		return nil, errors.New("key-set cache max age must not be negative")
	}

	lru, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		return nil, err
	}

	return &Cache{
		lru:    lru,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// Get returns a copy of the keys cached for query. A hit marks the entry as
// most recently used.
func (c *Cache) Get(query string) ([]cryptoutils.PublicKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.lru.Get(query)
	if !ok {
		metrics.RecordCacheLookup(lookupMiss)
		return nil, false
	}

	entry := value.(cacheEntry)
	if c.maxAge > 0 && c.now().Sub(entry.storedAt) > c.maxAge {
		c.lru.Remove(query)
		metrics.RecordCacheLookup(lookupExpired)
		return nil, false
	}

	metrics.RecordCacheLookup(lookupHit)
	return copyKeys(entry.keys), true
}

// Put stores keys for query, replacing any previous entry and evicting the
// least recently used entry when the cache is full.
func (c *Cache) Put(query string, keys []cryptoutils.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.lru.Add(query, cacheEntry{
		keys:     copyKeys(keys),
		storedAt: c.now(),
	})
	if evicted {
		metrics.RecordCacheEviction()
	}
}

// Invalidate drops the entry for query.
func (c *Cache) Invalidate(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(query)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func copyKeys(keys []cryptoutils.PublicKey) []cryptoutils.PublicKey {
	if keys == nil {
		return []cryptoutils.PublicKey{}
	}
	return append(make([]cryptoutils.PublicKey, 0, len(keys)), keys...)
}
