package velox

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/arisudev/velox/promise"
)

func TestInMemoryCacheSetGetExpiry(t *testing.T) {
	c := NewInMemoryCache()
	entry := &CacheEntry{Body: []byte("hello"), StatusCode: 200}
	c.Set("k", entry, time.Hour)

	got, ok := c.Get("k")
	if !ok || string(got.Body) != "hello" {
		t.Fatalf("expected a cache hit, got ok=%v entry=%+v", ok, got)
	}

	c.Set("expired", &CacheEntry{Body: []byte("x")}, -time.Second)
	if _, ok := c.Get("expired"); ok {
		t.Fatal("expected an already-expired entry to miss")
	}
}

func TestInMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewInMemoryCache()
	c.Set("a", &CacheEntry{}, time.Hour)
	c.Set("b", &CacheEntry{}, time.Hour)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a deleted key to miss")
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1 after delete, got %d", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after clear, got %d", c.Size())
	}
}

func TestCacheMiddlewareServesHitWithoutCallingNext(t *testing.T) {
	cache := NewInMemoryCache()
	mw := CacheMiddleware(cache, nil, nil, time.Hour)
	req := &Request{Method: "GET", URL: "http://example.com/widgets"}

	calls := 0
	next := func(r *Request) *promise.Promise[*Response] {
		calls++
		return promise.Resolved(&Response{StatusCode: 200, Header: http.Header{}, Body: []byte("fresh")})
	}

	resp, err := mw(req, next).Wait(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Header.Get("X-Cache-Status") != "MISS" {
		t.Fatalf("expected MISS on first call, got %q", resp.Header.Get("X-Cache-Status"))
	}
	if calls != 1 {
		t.Fatalf("expected next called once, got %d", calls)
	}

	resp2, err := mw(req, next).Wait(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp2.Header.Get("X-Cache-Status") != "HIT" {
		t.Fatalf("expected HIT on second call, got %q", resp2.Header.Get("X-Cache-Status"))
	}
	if calls != 1 {
		t.Fatalf("expected next not called again on a cache hit, got %d total calls", calls)
	}
	if string(resp2.Body) != "fresh" {
		t.Fatalf("expected the cached body to be served, got %q", resp2.Body)
	}
}

func TestCacheMiddlewareSkipsNonGetByDefault(t *testing.T) {
	cache := NewInMemoryCache()
	mw := CacheMiddleware(cache, nil, nil, time.Hour)
	req := &Request{Method: "POST", URL: "http://example.com/widgets"}

	calls := 0
	next := func(r *Request) *promise.Promise[*Response] {
		calls++
		return promise.Resolved(&Response{StatusCode: 200, Header: http.Header{}})
	}
	mw(req, next).Wait(0)
	mw(req, next).Wait(0)
	if calls != 2 {
		t.Fatalf("expected POST requests to bypass the cache entirely, got %d calls", calls)
	}
}

func TestCacheMiddlewareContextOverrideForcesCaching(t *testing.T) {
	cache := NewInMemoryCache()
	mw := CacheMiddleware(cache, nil, nil, time.Hour)
	ctx := WithContextCacheEnabled(context.Background())
	req := &Request{Method: "POST", URL: "http://example.com/widgets", Ctx: ctx}

	calls := 0
	next := func(r *Request) *promise.Promise[*Response] {
		calls++
		return promise.Resolved(&Response{StatusCode: 200, Header: http.Header{}})
	}
	mw(req, next).Wait(0)
	mw(req, next).Wait(0)
	if calls != 1 {
		t.Fatalf("expected the context override to force caching even for POST, got %d calls", calls)
	}
}
