package velox

import (
	"time"

	"github.com/arisudev/velox/promise"
	"golang.org/x/time/rate"
)

// rateLimiterAdapter lets *rate.Limiter satisfy the small Limiter
// interface the registry and middleware deal in, so neither couples
// directly to golang.org/x/time/rate.
type rateLimiterAdapter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a Limiter allowing up to maxTokens burst
// requests, refilling at one token per refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) Limiter {
	var r rate.Limit
	if refillRate > 0 {
		r = rate.Every(refillRate)
	} else {
		r = rate.Inf
	}
	return &rateLimiterAdapter{limiter: rate.NewLimiter(r, maxTokens)}
}

func (a *rateLimiterAdapter) Allow() bool {
	return a.limiter.Allow()
}

func (a *rateLimiterAdapter) Tokens() float64 {
	return a.limiter.Tokens()
}

// RateLimiterMiddleware returns a Middleware that denies requests with a
// RateLimitKind error when limiter.Allow() returns false.
func RateLimiterMiddleware(limiter Limiter) Middleware {
	return func(req *Request, next Next) *promise.Promise[*Response] {
		if !limiter.Allow() {
			return promise.RejectedWith[*Response](&ClientError{
				Kind:      RateLimitKind,
				Message:   "rate limit exceeded",
				Method:    req.Method,
				URL:       req.URL,
				Timestamp: time.Now(),
			})
		}
		return next(req)
	}
}
