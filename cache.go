package velox

import (
	"bytes"
	"hash/fnv"
	"sync"
	"time"

	"github.com/arisudev/velox/promise"
)

// InMemoryCache is a Cache sharded by fnv32a(key) into independently
// locked buckets, so concurrent requests for different keys don't
// contend on one mutex.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache returns an InMemoryCache with 16 shards.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return &InMemoryCache{shards: shards, numShards: numShards}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	shard.store[key] = entry
}

func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Size returns the total number of stored entries across all shards,
// including ones past their ExpiresAt: Get skips expired entries but does
// not remove them, so they stay until Delete, Clear or a later Set.
func (c *InMemoryCache) Size() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

func createCacheEntry(resp *Response) *CacheEntry {
	const maxCacheSize = 10 * 1024 * 1024
	body := resp.Body
	if len(body) > maxCacheSize {
		body = body[:maxCacheSize]
	}
	return &CacheEntry{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
}

func responseFromCacheEntry(entry *CacheEntry) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       append([]byte{}, entry.Body...),
	}
}

// DefaultCacheKeyFunc keys by method and URL.
func DefaultCacheKeyFunc(req *Request) string {
	var buf bytes.Buffer
	buf.WriteString(req.Method)
	buf.WriteByte(':')
	buf.WriteString(req.URL)
	return buf.String()
}

// DefaultCacheCondition caches only GET requests.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == "GET"
}

// CacheMiddleware serves cached responses and populates the cache from
// successful responses, keyed and gated by keyFunc/condition. A request's
// context CacheControl (see WithContextCacheEnabled/Disabled/TTL)
// overrides condition and ttl when present.
func CacheMiddleware(cache Cache, keyFunc KeyFunc, condition CacheCondition, ttl time.Duration) Middleware {
	if keyFunc == nil {
		keyFunc = DefaultCacheKeyFunc
	}
	if condition == nil {
		condition = DefaultCacheCondition
	}

	return func(req *Request, next Next) *promise.Promise[*Response] {
		cc, hasCC := cacheControlFromContext(req.Ctx)
		eligible := condition(req)
		if hasCC {
			eligible = cc.Enabled
		}
		if !eligible {
			return next(req)
		}

		key := keyFunc(req)
		if entry, ok := cache.Get(key); ok {
			resp := responseFromCacheEntry(entry)
			resp.Header = resp.Header.Clone()
			resp.Header.Set("X-Cache-Status", "HIT")
			return promise.Resolved(resp)
		}

		effectiveTTL := ttl
		if hasCC && cc.TTL > 0 {
			effectiveTTL = cc.TTL
		}

		return next(req).Then(func(resp *Response) (*Response, error) {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				cache.Set(key, createCacheEntry(resp), effectiveTTL)
			}
			resp.Header = resp.Header.Clone()
			resp.Header.Set("X-Cache-Status", "MISS")
			return resp, nil
		}, nil)
	}
}
