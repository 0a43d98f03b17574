package velox

import (
	"context"
	"net/http"
	"time"

	"github.com/arisudev/velox/internal/engine"
	"github.com/arisudev/velox/promise"
)

// Request and Response are the engine's wire-level descriptors, aliased
// here so the public Middleware surface and the internal dispatch engine
// share exactly one definition with no conversion at the boundary.
type (
	Request  = engine.Request
	Response = engine.Response
)

// Next invokes the remainder of the middleware chain (or, innermost, the
// dispatch engine itself) for req.
type Next func(req *Request) *promise.Promise[*Response]

// Middleware wraps Next, free to inspect or mutate req before delegating
// and to observe or transform the resulting promise afterward.
type Middleware func(req *Request, next Next) *promise.Promise[*Response]

// CircuitState is one of Closed, Open, HalfOpen.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig configures a circuit breaker middleware instance.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CacheEntry is a cached response snapshot.
type CacheEntry struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	ExpiresAt  time.Time
	StaleAt    *time.Time
	IsStale    bool
}

// Cache is the storage interface backing the response cache middleware.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheCondition decides whether a request is eligible for caching.
type CacheCondition func(req *Request) bool

// CacheMode selects plain-TTL or stale-while-revalidate semantics for
// HTTPSemanticsCacheProvider.
type CacheMode int

const (
	TTLOnly CacheMode = iota
	SWR
)

// CacheProvider is a higher-level caching contract that deals in *Response
// rather than raw Cache entries so it can layer HTTP semantics (SWR) over a
// plain Cache. CacheMiddleware does not use it; it takes a plain Cache.
type CacheProvider interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

type contextKey string

const cacheControlKey contextKey = "velox_cache_control"

// CacheControl overrides the cache middleware's default behavior for one
// request, set via WithContextCacheEnabled/Disabled/TTL.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching on for requests made with ctx,
// regardless of the installed CacheCondition.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled forces caching off for requests made with ctx.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL forces caching on with a specific TTL for requests
// made with ctx.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

func cacheControlFromContext(ctx context.Context) (*CacheControl, bool) {
	if ctx == nil {
		return nil, false
	}
	cc, ok := ctx.Value(cacheControlKey).(*CacheControl)
	return cc, ok
}

// KeyFunc derives a rate-limiter registry key from a request (e.g. by
// host or by method+path).
type KeyFunc func(req *Request) string

// Limiter is anything that can gate a request (x/time/rate.Limiter
// satisfies this through a thin adapter; see ratelimiter.go).
type Limiter interface {
	Allow() bool
}

// DeduplicationKeyFunc builds the coalescing key for an in-flight request.
type DeduplicationKeyFunc func(req *Request) string

// DeduplicationCondition decides whether a request is eligible for
// coalescing against other concurrent identical requests.
type DeduplicationCondition func(req *Request) bool

// RetryCondition is retained for callers migrating custom retry logic from
// a teacher-style client; the dispatch engine itself decides retries via
// internal/retrypolicy.Policy, not this type.
type RetryCondition func(resp *Response, err error) bool
