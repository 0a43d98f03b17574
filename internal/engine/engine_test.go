package engine

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arisudev/velox/internal/pool"
	"github.com/arisudev/velox/internal/retrypolicy"
)

func newTestEngine(t *testing.T, srv *httptest.Server, maxConcurrent int, retry retrypolicy.Policy, hooks Hooks) *Engine {
	t.Helper()
	if retry == nil {
		retry = retrypolicy.New(0, time.Millisecond, time.Millisecond, 2, 0)
	}
	return New(srv.Client(), pool.New(4), retry, maxConcurrent, hooks)
}

func TestSubmitAndWaitResolvesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, 4, nil, Hooks{})
	p := e.Submit(&Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{}})

	resp, err := p.Wait(2 * time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConcurrencyBoundQueuesExcessRequests(t *testing.T) {
	release := make(chan struct{})
	var concurrent int32
	var maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
				break
			}
		}
		<-release
		atomic.AddInt32(&concurrent, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, 2, nil, Hooks{})
	proms := make([]interface{ Wait(time.Duration) (*Response, error) }, 0, 5)
	for i := 0; i < 5; i++ {
		p := e.Submit(&Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{}})
		proms = append(proms, p)
	}

	e.Tick()
	if got := e.PendingCount(); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}
	if got := e.QueuedCount(); got != 3 {
		t.Fatalf("expected 3 queued, got %d", got)
	}

	close(release)
	for _, p := range proms {
		if _, err := p.Wait(2 * time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if maxObserved > 2 {
		t.Fatalf("expected at most 2 concurrent transfers, observed %d", maxObserved)
	}
}

func TestTransportErrorRetriesThenFails(t *testing.T) {
	retry := retrypolicy.New(2, time.Millisecond, time.Millisecond, 2, 0)
	var retries int32
	e := New(http.DefaultClient, pool.New(4), retry, 4, Hooks{
		OnRetry: func(method string, attempt int) { atomic.AddInt32(&retries, 1) },
	})

	p := e.Submit(&Request{Method: http.MethodGet, URL: "http://127.0.0.1:1/unreachable", Header: http.Header{}})
	_, err := p.Wait(3 * time.Second)
	if err == nil {
		t.Fatal("expected eventual failure after retries")
	}
	if atomic.LoadInt32(&retries) == 0 {
		t.Fatal("expected at least one retry")
	}
}

func TestNonIdempotentMethodNeverRetriesOnFailure(t *testing.T) {
	retry := retrypolicy.New(5, time.Millisecond, time.Millisecond, 2, 0)
	e := New(http.DefaultClient, pool.New(4), retry, 4, Hooks{})

	p := e.Submit(&Request{Method: http.MethodPost, URL: "http://127.0.0.1:1/unreachable", Header: http.Header{}})
	_, err := p.Wait(2 * time.Second)
	if err == nil {
		t.Fatal("expected failure")
	}
	if e.HasPending() {
		t.Fatal("expected no pending work after immediate failure")
	}
}

func TestCloseRejectsQueuedRequests(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, 1, nil, Hooks{})
	active := e.Submit(&Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{}})
	e.Tick()
	queued := e.Submit(&Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{}})

	e.Close()
	_, err := queued.Wait(time.Second)
	var sf *ShutdownFailure
	if err == nil {
		t.Fatal("expected queued request to be rejected on close")
	}
	if _, ok := err.(*ShutdownFailure); !ok {
		t.Fatalf("expected *ShutdownFailure, got %T", err)
	}
	_ = sf

	close(release)
	if _, err := active.Wait(2 * time.Second); err != nil {
		t.Fatalf("expected already-admitted request to complete, got %v", err)
	}
}

func TestSubmitAfterCloseRejectsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, 1, nil, Hooks{})
	e.Close()

	p := e.Submit(&Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{}})
	if !p.IsRejected() {
		t.Fatal("expected immediate rejection after Close")
	}
}
