// Package retrypolicy decides whether a completed transfer should be
// retried, and after how long, given the HTTP method, how many attempts
// have already happened, and the outcome of the last attempt.
package retrypolicy

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arisudev/velox/internal/backoff"
)

// Outcome describes the result of one attempt, enough for a policy to
// decide whether it's worth retrying.
type Outcome struct {
	TransportErr bool
	StatusCode   int
	Header       http.Header
}

// Policy decides whether to retry. attempt is 1 for the attempt that just
// finished. A true return means the caller should re-admit the request
// after sleeping delay.
type Policy interface {
	ShouldRetry(method string, attempt int, outcome Outcome) (delay time.Duration, retry bool)
}

// Strategy mirrors internal/backoff.Strategy's name space without coupling
// callers to that package directly.
type Strategy = backoff.Strategy

var (
	// ExponentialJitter is the default backoff strategy.
	ExponentialJitter Strategy = backoff.ExponentialJitterStrategy{}
	// DecorrelatedJitter is the AWS-style alternative strategy.
	DecorrelatedJitter Strategy = backoff.DecorrelatedJitterStrategy{}
)

// DefaultPolicy retries idempotent methods on transport errors and any
// status code in RetryStatus, honoring Retry-After when present and
// falling back to backoff.Strategy otherwise. It never retries past
// MaxAttempts additional tries beyond the first.
type DefaultPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	Strategy       Strategy
	RetryStatus    map[int]bool
	IsIdempotent   func(method string) bool

	calc *backoff.Calculator
}

// New returns a DefaultPolicy configured with sensible defaults for maxAttempts
// additional tries, exponential jitter backoff between initial and max, and
// retrying on 429 only; other status codes are retried once added to
// RetryStatus.
func New(maxAttempts int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultPolicy {
	return &DefaultPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		Multiplier:     multiplier,
		Jitter:         jitter,
		Strategy:       ExponentialJitter,
		RetryStatus:    map[int]bool{http.StatusTooManyRequests: true},
		IsIdempotent:   DefaultIsIdempotent,
	}
}

// WithStrategy swaps the backoff strategy (exponential or decorrelated
// jitter) and returns the same policy for chaining.
func (p *DefaultPolicy) WithStrategy(s Strategy) *DefaultPolicy {
	p.Strategy = s
	p.calc = nil
	return p
}

// DefaultIsIdempotent reports whether method is safe to retry without risk
// of duplicating side effects: GET, HEAD, OPTIONS, PUT, and DELETE are
// idempotent; POST, PATCH, TRACE, and CONNECT are not.
func DefaultIsIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ShouldRetry implements Policy.
func (p *DefaultPolicy) ShouldRetry(method string, attempt int, outcome Outcome) (time.Duration, bool) {
	isIdempotent := p.IsIdempotent
	if isIdempotent == nil {
		isIdempotent = DefaultIsIdempotent
	}
	if !isIdempotent(method) {
		return 0, false
	}
	if attempt > p.MaxAttempts {
		return 0, false
	}

	retryable := false
	var delay time.Duration

	if outcome.TransportErr {
		retryable = true
	} else if p.RetryStatus[outcome.StatusCode] {
		retryable = true
		if outcome.Header != nil {
			delay = parseRetryAfter(outcome.Header.Get("Retry-After"))
		}
	}

	if !retryable {
		return 0, false
	}
	if delay == 0 {
		delay = p.backoff(attempt)
	}
	return delay, true
}

func (p *DefaultPolicy) backoff(attempt int) time.Duration {
	if p.calc == nil {
		strategy := p.Strategy
		if strategy == nil {
			strategy = ExponentialJitter
		}
		p.calc = backoff.NewCalculator(strategy)
	}
	return p.calc.Calculate(attempt-1, p.InitialBackoff, p.MaxBackoff, p.Multiplier, p.Jitter)
}

// parseRetryAfter parses a Retry-After header value, either delay-seconds
// or an HTTP-date, capping the resulting delay at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}
	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}
	return 0
}
