// Package driver implements the multiplexed transfer engine that performs
// admitted HTTP transfers concurrently and funnels their completions into a
// single channel for the dispatch engine to drain. It is the Go idiom for
// what other ecosystems expose as a curl-multi-style handle: instead of one
// thread pumping many sockets, each admitted transfer gets its own goroutine
// and the engine reads completions off one queue.
package driver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Transfer is one admitted unit of work. ID is assigned by the caller at
// admission time and is echoed back on the matching Completion so the
// dispatch engine can correlate the two without the driver knowing anything
// about requests, retries, or queues.
type Transfer struct {
	ID      int
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
	Ctx     context.Context
}

// Completion is the result of one Transfer: either a response, or a
// transport-level error (the transfer never reached an HTTP response).
type Completion struct {
	ID         int
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// Driver performs admitted transfers concurrently over a shared *http.Client
// (and therefore a shared underlying connection pool) and reports their
// completions through a single channel.
type Driver struct {
	client  *http.Client
	ch      chan Completion
	pending []Completion
	active  int64
	closed  int32
}

// New returns a Driver that issues transfers through client.
func New(client *http.Client) *Driver {
	return &Driver{
		client: client,
		ch:     make(chan Completion, 256),
	}
}

// Admit launches t concurrently. Its Completion will surface on a later
// DrainCompletions call. Admit does not block on the transfer itself.
func (d *Driver) Admit(t Transfer) {
	atomic.AddInt64(&d.active, 1)
	go d.run(t)
}

func (d *Driver) run(t Transfer) {
	defer atomic.AddInt64(&d.active, -1)

	ctx := t.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(t.Body) > 0 {
		body = bytes.NewReader(t.Body)
	}

	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, body)
	if err != nil {
		d.ch <- Completion{ID: t.ID, Err: err}
		return
	}
	req.Header = t.Header

	resp, err := d.client.Do(req)
	if err != nil {
		d.ch <- Completion{ID: t.ID, Err: err}
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		d.ch <- Completion{ID: t.ID, Err: err}
		return
	}

	d.ch <- Completion{ID: t.ID, StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

// WaitReadiness blocks until at least one completion is ready to drain, no
// transfer is in flight, or timeout elapses, whichever comes first. It is
// the driver half of a dispatch engine's blocking Wait.
func (d *Driver) WaitReadiness(timeout time.Duration) {
	if len(d.pending) > 0 {
		return
	}
	if atomic.LoadInt64(&d.active) == 0 {
		return
	}
	if timeout <= 0 {
		c := <-d.ch
		d.pending = append(d.pending, c)
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-d.ch:
		d.pending = append(d.pending, c)
	case <-timer.C:
	}
}

// DrainCompletions returns every completion ready right now, without
// blocking.
func (d *Driver) DrainCompletions() []Completion {
	out := d.pending
	d.pending = nil
	for {
		select {
		case c := <-d.ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

// InFlight reports how many transfers have been admitted but not yet
// completed.
func (d *Driver) InFlight() int {
	return int(atomic.LoadInt64(&d.active))
}

// Close marks the driver closed and releases the underlying client's idle
// connections. Transfers already admitted still run to completion; their
// completions remain drainable.
func (d *Driver) Close() error {
	atomic.StoreInt32(&d.closed, 1)
	d.client.CloseIdleConnections()
	return nil
}
