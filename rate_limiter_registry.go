package velox

import (
	"sync"

	"github.com/arisudev/velox/promise"
)

// RateLimiterRegistry dispatches each request to a per-key Limiter (e.g.
// one bucket per host), falling back to a shared limiter when no
// key-specific one is registered.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	keyFunc  KeyFunc
	fallback Limiter
}

// NewRateLimiterRegistry returns a registry keying limiters via keyFunc,
// falling back to fallback (which may be nil, meaning unlimited) when no
// key-specific limiter is registered.
func NewRateLimiterRegistry(keyFunc KeyFunc, fallback Limiter) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]Limiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// RegisterLimiter installs limiter for key, overriding the fallback for
// requests whose KeyFunc produces that key.
func (r *RateLimiterRegistry) RegisterLimiter(key string, limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = limiter
}

// GetLimiter returns the limiter req should be checked against, and the
// key it resolved to.
func (r *RateLimiterRegistry) GetLimiter(req *Request) (Limiter, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}
	key := r.keyFunc(req)

	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter, key
	}
	return r.fallback, key
}

// Allow checks req against its resolved limiter (no limiter found for the
// key, and no fallback configured, allows unconditionally).
func (r *RateLimiterRegistry) Allow(req *Request) (bool, string) {
	limiter, key := r.GetLimiter(req)
	if limiter == nil {
		return true, key
	}
	return limiter.Allow(), key
}

// Middleware denies requests with RateLimitKind when the resolved limiter
// refuses them.
func (r *RateLimiterRegistry) Middleware() Middleware {
	return func(req *Request, next Next) *promise.Promise[*Response] {
		if ok, key := r.Allow(req); !ok {
			return promise.RejectedWith[*Response](&ClientError{
				Kind:    RateLimitKind,
				Message: "rate limit exceeded for key " + key,
				Method:  req.Method,
				URL:     req.URL,
			})
		}
		return next(req)
	}
}

// DefaultHostKeyFunc keys by request host.
func DefaultHostKeyFunc(req *Request) string {
	return "host:" + hostOfRequest(req)
}

// DefaultRouteKeyFunc keys by method and path.
func DefaultRouteKeyFunc(req *Request) string {
	return "route:" + req.Method + ":" + pathOfRequest(req)
}

// DefaultHostRouteKeyFunc keys by host, method, and path.
func DefaultHostRouteKeyFunc(req *Request) string {
	return "host_route:" + hostOfRequest(req) + ":" + req.Method + ":" + pathOfRequest(req)
}
