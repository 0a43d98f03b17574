package velox

import (
	"sync/atomic"
	"time"

	"github.com/arisudev/velox/promise"
)

// CircuitBreaker is an atomic closed/open/half-open state machine guarding
// a downstream dependency: it opens after FailureThreshold consecutive
// failures, allows one probe through per RecoveryTimeout while open, and
// closes again after SuccessThreshold consecutive successes while
// half-open.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	successes   int64
	lastFailure int64
}

// NewCircuitBreaker returns a CircuitBreaker, filling unset config fields
// with defaults (5 failures to open, 60s recovery, 2 successes to close).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	return &CircuitBreaker{config: config}
}

// Allow reports whether a request may proceed, transitioning Open to
// HalfOpen once RecoveryTimeout has elapsed since the last failure.
func (cb *CircuitBreaker) Allow() bool {
	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		last := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().UnixNano()-last >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				return true
			}
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure registers a failed attempt, possibly opening the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())
	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		if atomic.AddInt64(&cb.failures, 1) >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess registers a successful attempt: while closed it resets the
// consecutive-failure count, and while half-open it may close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt64(&cb.successes, 1) >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Middleware installs cb on the request pipeline: a closed circuit passes
// requests through, recording success/failure from the settlement;
// an open circuit rejects immediately with a CircuitOpenKind error.
func (cb *CircuitBreaker) Middleware() Middleware {
	return func(req *Request, next Next) *promise.Promise[*Response] {
		if !cb.Allow() {
			return promise.RejectedWith[*Response](&ClientError{
				Kind:      CircuitOpenKind,
				Message:   "circuit breaker is open",
				Method:    req.Method,
				URL:       req.URL,
				Timestamp: time.Now(),
			})
		}
		return next(req).Then(func(resp *Response) (*Response, error) {
			if FromResponseThreshold(req, resp, 500) != nil {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			return resp, nil
		}, func(err error) (*Response, error) {
			cb.RecordFailure()
			return nil, err
		})
	}
}
