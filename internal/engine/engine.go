// Package engine implements the dispatch engine: a single-threaded,
// cooperative scheduler that admits requests up to a concurrency bound,
// drives them to completion through a multiplexed transfer driver, retries
// failed idempotent attempts by re-queuing them with a not-before time, and
// settles a promise per request. Only Submit/Tick/Wait ever touch
// engine-owned state — callers must not invoke them concurrently with one
// another on the same Engine.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arisudev/velox/internal/driver"
	"github.com/arisudev/velox/internal/pool"
	"github.com/arisudev/velox/internal/retrypolicy"
	"github.com/arisudev/velox/promise"
)

// Request is one descriptor submitted to the engine. Attempt is 1 for the
// first try (Submit turns a zero Attempt into 1) and is incremented by the
// engine on each retry; NotBefore gates re-admission after a retry delay.
type Request struct {
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
	Timeout   time.Duration
	Attempt   int
	NotBefore time.Time
	Ctx       context.Context
}

// Response is the result of a successfully completed transfer, regardless
// of its HTTP status code: the engine never rejects a promise because of a
// status code, only because of a transport failure (once any retries are
// spent) or shutdown. A retried status that is still returned on the last
// attempt resolves with that response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportFailure is the rejection reason when a transfer never reached an
// HTTP response and retries (if any) are exhausted.
type TransportFailure struct {
	Method  string
	URL     string
	Attempt int
	Cause   error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("%s %s: %v (attempt %d)", e.Method, e.URL, e.Cause, e.Attempt)
}

func (e *TransportFailure) Unwrap() error { return e.Cause }

// ShutdownFailure is the rejection reason for requests still queued but not
// yet admitted when Close is called.
type ShutdownFailure struct {
	Method string
	URL    string
}

func (e *ShutdownFailure) Error() string {
	return fmt.Sprintf("%s %s: engine closed before admission", e.Method, e.URL)
}

// Hooks lets the owner observe engine activity (for metrics/logging)
// without the engine depending on any particular metrics or logging
// package.
type Hooks struct {
	OnSubmit  func()
	OnAdmit   func()
	OnRetry   func(method string, attempt int)
	OnSuccess func()
	OnFailure func()
}

type activeEntry struct {
	id       int
	req      *Request
	deferred *promise.Deferred[*Response]
	handle   *pool.Handle
	host     string
}

type queuedEntry struct {
	req      *Request
	deferred *promise.Deferred[*Response]
}

// Engine is the dispatch engine. Construct with New.
type Engine struct {
	driver        *driver.Driver
	pool          *pool.Pool
	retry         retrypolicy.Policy
	maxConcurrent int
	hooks         Hooks

	nextID int
	active map[int]*activeEntry
	queue  []*queuedEntry
	closed bool
}

// New returns an Engine bounded to maxConcurrent simultaneous in-flight
// transfers, issuing them through httpClient, pooling handles per host via
// p, and deciding retries via retry.
func New(httpClient *http.Client, p *pool.Pool, retry retrypolicy.Policy, maxConcurrent int, hooks Hooks) *Engine {
	return &Engine{
		driver:        driver.New(httpClient),
		pool:          p,
		retry:         retry,
		maxConcurrent: maxConcurrent,
		hooks:         hooks,
		active:        make(map[int]*activeEntry),
	}
}

// Submit enqueues req for admission and returns a Promise that settles once
// the transfer (after any retries) finishes or is abandoned at shutdown.
// The returned Promise's Wait is driven by the Engine's own Tick.
func (e *Engine) Submit(req *Request) *promise.Promise[*Response] {
	if e.hooks.OnSubmit != nil {
		e.hooks.OnSubmit()
	}
	d := promise.NewDeferred[*Response](e.Tick)

	if e.closed {
		d.Reject(&ShutdownFailure{Method: req.Method, URL: req.URL})
		return d.Promise()
	}

	if req.Attempt == 0 {
		req.Attempt = 1
	}
	qe := &queuedEntry{req: req, deferred: d}
	if len(e.active) < e.maxConcurrent && !req.NotBefore.After(time.Now()) {
		e.admit(qe)
	} else {
		e.queue = append(e.queue, qe)
	}
	return d.Promise()
}

func (e *Engine) admit(qe *queuedEntry) {
	host := hostOf(qe.req.URL)
	handle := e.pool.Acquire(host)

	id := e.nextID
	e.nextID++
	e.active[id] = &activeEntry{id: id, req: qe.req, deferred: qe.deferred, handle: handle, host: host}

	if e.hooks.OnAdmit != nil {
		e.hooks.OnAdmit()
	}

	e.driver.Admit(driver.Transfer{
		ID:      id,
		Method:  qe.req.Method,
		URL:     qe.req.URL,
		Header:  qe.req.Header,
		Body:    qe.req.Body,
		Timeout: qe.req.Timeout,
		Ctx:     qe.req.Ctx,
	})
}

// Tick admits any due queued requests, drains ready completions (settling
// or retrying each), and admits again so newly freed slots are used
// immediately. It never blocks.
func (e *Engine) Tick() {
	e.admitFromQueue()
	for _, c := range e.driver.DrainCompletions() {
		e.complete(c)
	}
	e.admitFromQueue()
}

func (e *Engine) admitFromQueue() {
	if len(e.queue) == 0 {
		return
	}
	kept := make([]*queuedEntry, 0, len(e.queue))
	now := time.Now()
	for _, qe := range e.queue {
		if len(e.active) < e.maxConcurrent && !qe.req.NotBefore.After(now) {
			e.admit(qe)
		} else {
			kept = append(kept, qe)
		}
	}
	e.queue = kept
}

func (e *Engine) complete(c driver.Completion) {
	ae, ok := e.active[c.ID]
	if !ok {
		return
	}
	delete(e.active, c.ID)
	e.pool.Release(ae.handle, ae.host)

	outcome := retrypolicy.Outcome{TransportErr: c.Err != nil, StatusCode: c.StatusCode, Header: c.Header}
	delay, retry := e.retry.ShouldRetry(ae.req.Method, ae.req.Attempt, outcome)
	if retry {
		ae.req.Attempt++
		ae.req.NotBefore = time.Now().Add(delay)
		e.queue = append(e.queue, &queuedEntry{req: ae.req, deferred: ae.deferred})
		if e.hooks.OnRetry != nil {
			e.hooks.OnRetry(ae.req.Method, ae.req.Attempt)
		}
		return
	}

	if c.Err != nil {
		ae.deferred.Reject(&TransportFailure{Method: ae.req.Method, URL: ae.req.URL, Attempt: ae.req.Attempt, Cause: c.Err})
		if e.hooks.OnFailure != nil {
			e.hooks.OnFailure()
		}
		return
	}

	ae.deferred.Resolve(&Response{StatusCode: c.StatusCode, Header: c.Header, Body: c.Body})
	if e.hooks.OnSuccess != nil {
		e.hooks.OnSuccess()
	}
}

// Wait blocks, ticking the engine and the underlying driver's readiness
// wait, until no work remains pending or timeout elapses (timeout <= 0
// means wait indefinitely). It returns without error in both cases; it is
// the caller's job to inspect HasPending afterward if the distinction
// matters.
func (e *Engine) Wait(timeout time.Duration) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		e.Tick()
		if !e.HasPending() {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		wait := 50 * time.Millisecond
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		e.driver.WaitReadiness(wait)
	}
}

// HasPending reports whether any request is active or queued.
func (e *Engine) HasPending() bool {
	return len(e.active) > 0 || len(e.queue) > 0
}

// PendingCount returns the number of currently active (admitted,
// in-flight) requests.
func (e *Engine) PendingCount() int {
	return len(e.active)
}

// QueuedCount returns the number of requests waiting for admission.
func (e *Engine) QueuedCount() int {
	return len(e.queue)
}

// Close marks the engine closed: further Submit calls reject immediately,
// and every request still queued (not yet admitted) is rejected with a
// *ShutdownFailure. Active (already-admitted) transfers are left to finish
// naturally; call Wait afterward to drain them.
func (e *Engine) Close() error {
	e.closed = true
	for _, qe := range e.queue {
		qe.deferred.Reject(&ShutdownFailure{Method: qe.req.Method, URL: qe.req.URL})
	}
	e.queue = nil
	return e.driver.Close()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
