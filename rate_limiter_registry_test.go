package velox

import (
	"testing"
	"time"
)

func TestRateLimiterRegistryPerKeyOverridesFallback(t *testing.T) {
	registry := NewRateLimiterRegistry(DefaultHostKeyFunc, NewRateLimiter(100, time.Microsecond))
	strict := NewRateLimiter(1, time.Hour)
	registry.RegisterLimiter("host:api.example.com", strict)

	req := &Request{Method: "GET", URL: "http://api.example.com/widgets"}

	if ok, key := registry.Allow(req); !ok || key != "host:api.example.com" {
		t.Fatalf("expected first call allowed under the per-host limiter, got ok=%v key=%s", ok, key)
	}
	if ok, _ := registry.Allow(req); ok {
		t.Fatal("expected the per-host limiter's burst of 1 to reject the second call")
	}

	other := &Request{Method: "GET", URL: "http://other.example.com/widgets"}
	if ok, key := registry.Allow(other); !ok || key != "host:other.example.com" {
		t.Fatalf("expected the fallback limiter to admit an unregistered host, got ok=%v key=%s", ok, key)
	}
}

func TestDefaultKeyFuncsDeriveExpectedKeys(t *testing.T) {
	req := &Request{Method: "POST", URL: "http://api.example.com/v1/widgets?x=1"}
	if got := DefaultHostKeyFunc(req); got != "host:api.example.com" {
		t.Fatalf("unexpected host key: %s", got)
	}
	if got := DefaultRouteKeyFunc(req); got != "route:POST:/v1/widgets" {
		t.Fatalf("unexpected route key: %s", got)
	}
	if got := DefaultHostRouteKeyFunc(req); got != "host_route:api.example.com:POST:/v1/widgets" {
		t.Fatalf("unexpected host_route key: %s", got)
	}
}

func TestRateLimiterRegistryMiddlewareNoLimiterAllowsUnconditionally(t *testing.T) {
	registry := NewRateLimiterRegistry(DefaultHostKeyFunc, nil)
	ok, _ := registry.Allow(&Request{Method: "GET", URL: "http://example.com"})
	if !ok {
		t.Fatal("expected no fallback limiter to allow unconditionally")
	}
}
