package velox

import (
	"errors"
	"testing"
	"time"

	"github.com/arisudev/velox/promise"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	l := NewRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected call %d within burst to be allowed", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected the 4th call to exceed the burst")
	}
}

func TestRateLimiterMiddlewareRejectsWhenExhausted(t *testing.T) {
	l := NewRateLimiter(1, time.Hour)
	mw := RateLimiterMiddleware(l)
	next := func(r *Request) *promise.Promise[*Response] { return promise.Resolved(&Response{StatusCode: 200}) }

	if _, err := mw(&Request{Method: "GET", URL: "http://example.com"}, next).Wait(0); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}

	_, err := mw(&Request{Method: "GET", URL: "http://example.com"}, next).Wait(0)
	if err == nil {
		t.Fatal("expected the second call to be rate limited")
	}
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Kind != RateLimitKind {
		t.Fatalf("expected RateLimitKind, got %v", err)
	}
}
