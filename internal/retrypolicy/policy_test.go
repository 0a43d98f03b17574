package retrypolicy

import (
	"net/http"
	"testing"
	"time"
)

func TestNonIdempotentMethodNeverRetries(t *testing.T) {
	p := New(3, time.Millisecond, time.Second, 2, 0.1)
	_, retry := p.ShouldRetry(http.MethodPost, 1, Outcome{TransportErr: true})
	if retry {
		t.Fatal("POST should never be retried")
	}
}

func TestIdempotentMethodRetriesOnTransportError(t *testing.T) {
	p := New(3, time.Millisecond, time.Second, 2, 0)
	delay, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{TransportErr: true})
	if !retry {
		t.Fatal("expected retry on transport error")
	}
	if delay <= 0 {
		t.Fatal("expected a positive backoff delay")
	}
}

func TestExhaustedAttemptsStopsRetrying(t *testing.T) {
	p := New(2, time.Millisecond, time.Second, 2, 0)
	_, retry := p.ShouldRetry(http.MethodGet, 3, Outcome{TransportErr: true})
	if retry {
		t.Fatal("expected no retry once attempts are exhausted")
	}
}

func TestRetriesOnlyOnConfiguredStatusCodes(t *testing.T) {
	p := New(3, time.Millisecond, time.Second, 2, 0)
	if _, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 429}); !retry {
		t.Fatal("expected retry on 429, the package default's only configured status")
	}
	if _, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 503}); retry {
		t.Fatal("expected no retry on 503 until it's added to RetryStatus")
	}
	if _, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 500}); retry {
		t.Fatal("expected no unconditional retry on 500")
	}

	p.RetryStatus[503] = true
	if _, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 503}); !retry {
		t.Fatal("expected retry on 503 once explicitly configured")
	}
	if _, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 404}); retry {
		t.Fatal("expected no retry on 404")
	}
}

func TestRetryAfterHeaderOverridesBackoff(t *testing.T) {
	p := New(3, time.Hour, time.Hour, 2, 0)
	h := http.Header{"Retry-After": {"2"}}
	delay, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{StatusCode: 429, Header: h})
	if !retry {
		t.Fatal("expected retry")
	}
	if delay != 2*time.Second {
		t.Fatalf("expected 2s delay from Retry-After, got %s", delay)
	}
}

func TestDecorrelatedStrategySelectable(t *testing.T) {
	p := New(3, time.Millisecond, time.Second, 2, 0).WithStrategy(DecorrelatedJitter)
	delay, retry := p.ShouldRetry(http.MethodGet, 1, Outcome{TransportErr: true})
	if !retry || delay <= 0 {
		t.Fatal("expected a positive retry delay under decorrelated jitter")
	}
}
