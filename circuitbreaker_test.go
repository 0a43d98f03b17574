package velox

import (
	"errors"
	"testing"
	"time"

	"github.com/arisudev/velox/promise"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open after reaching threshold, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("expected an open circuit to deny requests")
	}
}

func TestCircuitBreakerHalfOpenAfterRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	time.Sleep(5 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a probe through after recovery timeout elapses")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after the probe, got %s", cb.State())
	}
}

func TestCircuitBreakerClosesAfterSuccessThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, SuccessThreshold: 2})
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	cb.Allow() // transitions to half-open
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected still half-open after one success, got %s", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reaching success threshold, got %s", cb.State())
	}
}

func TestCircuitBreakerMiddlewareRejectsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	cb.RecordFailure()
	mw := cb.Middleware()

	called := false
	_, err := mw(&Request{Method: "GET", URL: "http://example.com"}, func(r *Request) *promise.Promise[*Response] {
		called = true
		return promise.Resolved(&Response{StatusCode: 200})
	}).Wait(0)

	if called {
		t.Fatal("next should not be invoked while the circuit is open")
	}
	if err == nil {
		t.Fatal("expected an error")
	}
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Kind != CircuitOpenKind {
		t.Fatalf("expected CircuitOpenKind, got %v", err)
	}
}

func TestCircuitBreakerMiddlewareRecordsFailureOn5xx(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	mw := cb.Middleware()

	_, _ = mw(&Request{Method: "GET", URL: "http://example.com"}, func(r *Request) *promise.Promise[*Response] {
		return promise.Resolved(&Response{StatusCode: 500})
	}).Wait(0)

	if cb.State() != StateOpen {
		t.Fatalf("expected a 500 response to count as a failure, got %s", cb.State())
	}
}
