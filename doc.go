// Package velox implements an asynchronous, resilient HTTP client: every
// request returns a *promise.Promise[*Response] instead of blocking,
// settled by a cooperative single-threaded dispatch engine that
// multiplexes many transfers through one goroutine-per-transfer driver.
//
// Composable reliability primitives ride the interceptor pipeline as
// ordinary Middleware values:
//
//   - Token-bucket rate limiting, per-client or per-key
//   - In-memory response caching with a TTL
//   - Circuit breaker (closed / open / half-open)
//   - Request de-duplication (coalesces concurrent identical requests)
//   - OpenTelemetry tracing
//
// Retries with exponential backoff + jitter, honoring Retry-After, are run
// by the dispatch engine rather than by a Middleware, and Prometheus metrics
// and structured debug logging are recorded by the Client around the
// middleware chain.
//
// Design goals:
//   - Callers never block on I/O unless they explicitly call Wait
//   - Functional options configure everything at construction; With...
//     methods produce new, independent Options/Client values afterward
//   - Concurrency comes from multiplexing transfers, not from running the
//     engine itself on multiple goroutines — Submit/Tick/Wait on one
//     Client must not be called concurrently with each other
//
// Typical usage:
//
//	client := velox.New(
//	    velox.WithRetryAttempts(3),
//	    velox.WithRateLimiter(10, time.Second),
//	    velox.WithCache(5*time.Minute),
//	    velox.WithCircuitBreaker(velox.CircuitBreakerConfig{}),
//	    velox.WithDeduplication(),
//	)
//	resp, err := client.Get(ctx, "https://api.example.com/data", nil, nil).Wait(0)
package velox
