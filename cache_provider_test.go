package velox

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestDefaultCacheProviderSetGetInvalidate(t *testing.T) {
	provider := NewDefaultCacheProvider(NewInMemoryCache(), time.Hour)
	ctx := context.Background()

	provider.Set(ctx, "k", &Response{StatusCode: 200, Header: http.Header{}, Body: []byte("v")}, 0)
	resp, ok := provider.Get(ctx, "k")
	if !ok || string(resp.Body) != "v" {
		t.Fatalf("expected a hit with body v, got ok=%v resp=%+v", ok, resp)
	}

	provider.Invalidate(ctx, "k")
	if _, ok := provider.Get(ctx, "k"); ok {
		t.Fatal("expected invalidate to remove the entry")
	}
}

func TestHTTPSemanticsCacheProviderHonorsMaxAge(t *testing.T) {
	provider := NewHTTPSemanticsCacheProvider(NewInMemoryCache(), time.Hour, TTLOnly)
	ctx := context.Background()

	hdr := http.Header{}
	hdr.Set("Cache-Control", "max-age=3600")
	provider.Set(ctx, "k", &Response{StatusCode: 200, Header: hdr, Body: []byte("v")}, 0)

	resp, ok := provider.Get(ctx, "k")
	if !ok {
		t.Fatal("expected a fresh hit")
	}
	if resp.Header.Get("X-Cache-Status") != "hit" {
		t.Fatalf("expected X-Cache-Status hit, got %q", resp.Header.Get("X-Cache-Status"))
	}
}

func TestHTTPSemanticsCacheProviderServesStaleWithinSWRWindow(t *testing.T) {
	provider := NewHTTPSemanticsCacheProvider(NewInMemoryCache(), time.Hour, SWR)
	ctx := context.Background()

	hdr := http.Header{}
	hdr.Set("Cache-Control", "max-age=0, stale-while-revalidate=3600")
	provider.Set(ctx, "k", &Response{StatusCode: 200, Header: hdr, Body: []byte("v")}, 0)

	time.Sleep(5 * time.Millisecond)

	resp, ok := provider.Get(ctx, "k")
	if !ok {
		t.Fatal("expected the expired-but-within-SWR-window entry to still be served")
	}
	if resp.Header.Get("X-Cache-Status") != "stale" {
		t.Fatalf("expected X-Cache-Status stale, got %q", resp.Header.Get("X-Cache-Status"))
	}
}

func TestHTTPSemanticsCacheProviderEvictsPastSWRWindow(t *testing.T) {
	cache := NewInMemoryCache()
	provider := NewHTTPSemanticsCacheProvider(cache, time.Hour, TTLOnly)
	ctx := context.Background()

	hdr := http.Header{}
	hdr.Set("Cache-Control", "max-age=0")
	provider.Set(ctx, "k", &Response{StatusCode: 200, Header: hdr, Body: []byte("v")}, 0)

	time.Sleep(5 * time.Millisecond)

	if _, ok := provider.Get(ctx, "k"); ok {
		t.Fatal("expected a TTLOnly provider to evict once expired, with no SWR grace window")
	}
	if cache.Size() != 0 {
		t.Fatalf("expected Get to have evicted the expired entry, cache size is %d", cache.Size())
	}
}

func TestParseCacheControl(t *testing.T) {
	directives := parseCacheControl(`max-age=60, stale-while-revalidate=30, no-cache`)
	if directives["max-age"] != "60" {
		t.Fatalf("unexpected max-age: %q", directives["max-age"])
	}
	if directives["stale-while-revalidate"] != "30" {
		t.Fatalf("unexpected stale-while-revalidate: %q", directives["stale-while-revalidate"])
	}
	if v, ok := directives["no-cache"]; !ok || v != "" {
		t.Fatalf("expected a value-less directive to map to empty string, got %q (ok=%v)", v, ok)
	}
}
