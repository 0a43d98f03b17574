// Package promise implements a settable-once future with a handler chain,
// blocking wait, and JS-style composition (All, AllSettled, Any, Race).
//
// A Promise has three states: Pending, Fulfilled, Rejected. A transition
// out of Pending happens at most once, and handlers registered after that
// transition run synchronously during registration rather than waiting for
// a future event.
package promise

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is one of Pending, Fulfilled, or Rejected.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// TickFunc drives forward progress while a Wait call blocks. It is supplied
// by whatever engine owns the asynchronous work backing the Promise (e.g.
// a dispatch engine's Tick). A nil TickFunc makes Wait fall back to a short
// sleep loop.
type TickFunc func()

// Promise represents a value of type T that will be supplied exactly once,
// either as a fulfilled value or a rejection reason. It is safe for
// concurrent use.
type Promise[T any] struct {
	mu    sync.Mutex
	state State
	value T
	err   error
	tick  TickFunc

	handlers []handler[T]
}

type handler[T any] struct {
	onFulfilled func(T) (T, error)
	onRejected  func(error) (T, error)
	settle      func(T, error)
}

// newPending creates a pending promise bound to the given tick function.
func newPending[T any](tick TickFunc) *Promise[T] {
	return &Promise[T]{state: Pending, tick: tick}
}

// GetState returns the current settlement state.
func (p *Promise[T]) GetState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Promise[T]) IsPending() bool   { return p.GetState() == Pending }
func (p *Promise[T]) IsFulfilled() bool { return p.GetState() == Fulfilled }
func (p *Promise[T]) IsRejected() bool  { return p.GetState() == Rejected }

// resolve settles the promise as fulfilled with v as given; it does not
// unwrap promise values (ThenCompose is the way to adopt an inner promise).
func (p *Promise[T]) resolve(v T) {
	p.settle(Fulfilled, v, nil)
}

func (p *Promise[T]) reject(err error) {
	p.settle(Rejected, zero[T](), err)
}

func zero[T any]() T {
	var z T
	return z
}

func (p *Promise[T]) settle(state State, v T, err error) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.value = v
	p.err = err
	handlers := p.handlers
	p.handlers = nil
	p.mu.Unlock()

	for _, h := range handlers {
		p.invoke(h, state, v, err)
	}
}

func (p *Promise[T]) invoke(h handler[T], state State, v T, err error) {
	if state == Fulfilled {
		if h.onFulfilled == nil {
			h.settle(v, nil)
			return
		}
		rv, rerr := safeCall(func() (T, error) { return h.onFulfilled(v) })
		h.settle(rv, rerr)
		return
	}
	if h.onRejected == nil {
		h.settle(zero[T](), err)
		return
	}
	rv, rerr := safeCall(func() (T, error) { return h.onRejected(err) })
	h.settle(rv, rerr)
}

func safeCall[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("promise: handler panicked: %v", r)
		}
	}()
	return fn()
}

// Then registers fulfillment/rejection handlers and returns a derived
// Promise whose settlement is produced from whichever handler runs. A nil
// onFulfilled/onRejected simply forwards the corresponding settlement
// unchanged. If the provided handler returns a *Promise[T] wrapped as a
// value this would not type-check in Go's generics, so chaining onto an
// inner promise is exposed via ThenCompose for handlers that themselves
// start new asynchronous work.
func (p *Promise[T]) Then(onFulfilled func(T) (T, error), onRejected func(error) (T, error)) *Promise[T] {
	derived := newPending[T](p.tick)
	h := handler[T]{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		settle: func(v T, err error) {
			if err != nil {
				derived.reject(err)
			} else {
				derived.resolve(v)
			}
		},
	}
	p.register(h)
	return derived
}

// ThenCompose is Then's "transparent unwrapping" variant: the handler may
// itself return a *Promise[T], and the derived promise adopts that inner
// promise's eventual state instead of settling immediately.
func (p *Promise[T]) ThenCompose(onFulfilled func(T) *Promise[T]) *Promise[T] {
	derived := newPending[T](p.tick)

	adopt := func(v T) {
		defer func() {
			if r := recover(); r != nil {
				derived.reject(fmt.Errorf("promise: handler panicked: %v", r))
			}
		}()
		inner := onFulfilled(v)
		if inner == nil {
			derived.resolve(zero[T]())
			return
		}
		inner.subscribe(derived.resolve, derived.reject)
	}

	p.register(handler[T]{
		settle: func(v T, err error) {
			if err != nil {
				derived.reject(err)
				return
			}
			adopt(v)
		},
	})
	return derived
}

// Map derives a Promise[U] from p by applying fn to its fulfilled value;
// a rejection of p forwards unchanged. Unlike Then, the result type may
// differ from p's, which is what callers need when the caller-visible
// shape of a combinator's result (e.g. a map keyed by caller-chosen keys)
// isn't the same type the underlying promises settle with. The derived
// promise keeps p's tick, so Wait on it still drives whichever engine
// backs p.
func Map[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	derived := newPending[U](p.tick)
	p.subscribe(func(v T) {
		u, err := safeCall(func() (U, error) { return fn(v) })
		if err != nil {
			derived.reject(err)
			return
		}
		derived.resolve(u)
	}, func(err error) {
		derived.reject(err)
	})
	return derived
}

// subscribe is the low-level observer used internally to adopt another
// promise's eventual state without allocating a derived promise.
func (p *Promise[T]) subscribe(onFulfilled func(T), onRejected func(error)) {
	h := handler[T]{
		settle: func(v T, err error) {
			if err != nil {
				onRejected(err)
				return
			}
			onFulfilled(v)
		},
	}
	p.register(h)
}

func (p *Promise[T]) register(h handler[T]) {
	p.mu.Lock()
	if p.state == Pending {
		p.handlers = append(p.handlers, h)
		p.mu.Unlock()
		return
	}
	state, v, err := p.state, p.value, p.err
	p.mu.Unlock()
	p.invoke(h, state, v, err)
}

// Catch registers a rejection handler. Equivalent to Then(nil, onRejected).
func (p *Promise[T]) Catch(onRejected func(error) (T, error)) *Promise[T] {
	return p.Then(nil, onRejected)
}

// Finally runs onFinally on either settlement and forwards the original
// settlement unchanged, unless onFinally itself returns an error, in which
// case that error replaces the outcome.
func (p *Promise[T]) Finally(onFinally func() error) *Promise[T] {
	derived := newPending[T](p.tick)
	h := handler[T]{
		settle: func(v T, err error) {
			if ferr := runFinally(onFinally); ferr != nil {
				derived.reject(ferr)
				return
			}
			if err != nil {
				derived.reject(err)
				return
			}
			derived.resolve(v)
		},
	}
	p.register(h)
	return derived
}

func runFinally(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("promise: finally handler panicked: %v", r)
		}
	}()
	return fn()
}

// TimeoutError is raised by Wait when its deadline elapses before the
// promise settles.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("promise: wait timed out after %s", e.Timeout)
}

// Wait blocks until settlement or, if timeout > 0, until the deadline
// elapses. While waiting, if the promise carries a TickFunc it is invoked
// repeatedly to make forward progress; otherwise Wait spins on state with a
// short sleep. It returns the fulfilled value, or the rejection reason
// unchanged, or a *TimeoutError.
func (p *Promise[T]) Wait(timeout time.Duration) (T, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.WaitContext(ctx)
}

// WaitContext is Wait parameterized on a caller-supplied context; ctx.Err()
// (if non-nil when the deadline elapses) is wrapped in *TimeoutError only
// when the cause is DeadlineExceeded, otherwise the raw ctx.Err() is
// returned.
func (p *Promise[T]) WaitContext(ctx context.Context) (T, error) {
	start := time.Now()
	for {
		p.mu.Lock()
		state, v, err, tick := p.state, p.value, p.err, p.tick
		p.mu.Unlock()

		if state == Fulfilled {
			return v, nil
		}
		if state == Rejected {
			return zero[T](), err
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return zero[T](), &TimeoutError{Timeout: time.Since(start)}
			}
			return zero[T](), ctx.Err()
		default:
		}

		if tick != nil {
			tick()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}
