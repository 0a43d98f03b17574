package velox

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// DefaultCacheProvider adapts a plain Cache to the CacheProvider interface
// with a fixed TTL, no HTTP cache-control parsing.
type DefaultCacheProvider struct {
	cache Cache
	ttl   time.Duration
}

// NewDefaultCacheProvider returns a CacheProvider that stores every entry
// for ttl (or the ttl passed to Set, if non-zero).
func NewDefaultCacheProvider(cache Cache, ttl time.Duration) CacheProvider {
	return &DefaultCacheProvider{cache: cache, ttl: ttl}
}

func (cp *DefaultCacheProvider) Get(ctx context.Context, key string) (*Response, bool) {
	entry, found := cp.cache.Get(key)
	if !found {
		return nil, false
	}
	return responseFromCacheEntry(entry), true
}

func (cp *DefaultCacheProvider) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) {
	if ttl == 0 {
		ttl = cp.ttl
	}
	cp.cache.Set(key, createCacheEntry(resp), ttl)
}

func (cp *DefaultCacheProvider) Invalidate(ctx context.Context, key string) {
	cp.cache.Delete(key)
}

// HTTPSemanticsCacheProvider layers Cache-Control-derived freshness (and,
// in SWR mode, a stale-while-revalidate grace window) over a plain Cache.
type HTTPSemanticsCacheProvider struct {
	cache      Cache
	defaultTTL time.Duration
	mode       CacheMode
}

// NewHTTPSemanticsCacheProvider returns a CacheProvider honoring response
// Cache-Control directives, falling back to defaultTTL when absent. In SWR
// mode, entries past their fresh window but within stale-while-revalidate
// are served marked stale instead of evicted.
func NewHTTPSemanticsCacheProvider(cache Cache, defaultTTL time.Duration, mode CacheMode) CacheProvider {
	return &HTTPSemanticsCacheProvider{cache: cache, defaultTTL: defaultTTL, mode: mode}
}

func (cp *HTTPSemanticsCacheProvider) Get(ctx context.Context, key string) (*Response, bool) {
	entry, found := cp.cache.Get(key)
	if !found {
		cp.cache.Delete(key)
		return nil, false
	}

	now := time.Now()
	if now.After(entry.ExpiresAt) {
		if cp.mode == SWR && entry.StaleAt != nil && now.Before(*entry.StaleAt) {
			entry.IsStale = true
			return cp.responseFromEntry(entry), true
		}
		cp.cache.Delete(key)
		return nil, false
	}

	entry.IsStale = false
	return cp.responseFromEntry(entry), true
}

func (cp *HTTPSemanticsCacheProvider) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) {
	entry := createEnhancedCacheEntry(resp, time.Now())

	if entry.ExpiresAt.IsZero() {
		if ttl == 0 {
			ttl = cp.defaultTTL
		}
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	cp.cache.Set(key, entry, time.Until(entry.ExpiresAt))
}

func (cp *HTTPSemanticsCacheProvider) Invalidate(ctx context.Context, key string) {
	cp.cache.Delete(key)
}

func (cp *HTTPSemanticsCacheProvider) responseFromEntry(entry *CacheEntry) *Response {
	resp := responseFromCacheEntry(entry)
	resp.Header = resp.Header.Clone()
	if entry.IsStale {
		resp.Header.Set("X-Cache-Status", "stale")
	} else {
		resp.Header.Set("X-Cache-Status", "hit")
	}
	return resp
}

// createEnhancedCacheEntry builds a CacheEntry whose ExpiresAt/StaleAt come
// from the response's Cache-Control header (max-age, stale-while-revalidate)
// when present, leaving ExpiresAt zero when Cache-Control gives no max-age
// so the caller falls back to its own default TTL.
func createEnhancedCacheEntry(resp *Response, now time.Time) *CacheEntry {
	entry := createCacheEntry(resp)

	directives := parseCacheControl(resp.Header.Get("Cache-Control"))
	if maxAge, ok := directives["max-age"]; ok {
		if secs, err := strconv.Atoi(maxAge); err == nil {
			entry.ExpiresAt = now.Add(time.Duration(secs) * time.Second)
		}
	}
	if swr, ok := directives["stale-while-revalidate"]; ok {
		if secs, err := strconv.Atoi(swr); err == nil && !entry.ExpiresAt.IsZero() {
			staleAt := entry.ExpiresAt.Add(time.Duration(secs) * time.Second)
			entry.StaleAt = &staleAt
		}
	}
	return entry
}

// parseCacheControl splits a Cache-Control header into a directive->value
// map; value-less directives (e.g. "no-cache") map to "".
func parseCacheControl(header string) map[string]string {
	directives := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		directives[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return directives
}
