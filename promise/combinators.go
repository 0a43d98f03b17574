package promise

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is AllSettled's per-input result: either {Fulfilled, Value} or
// {Rejected, Reason}.
type Outcome[T any] struct {
	Status State
	Value  T
	Reason error
}

// Resolved returns a Promise already fulfilled with v.
func Resolved[T any](v T) *Promise[T] {
	p := newPending[T](nil)
	p.resolve(v)
	return p
}

// RejectedWith returns a Promise already rejected with err.
func RejectedWith[T any](err error) *Promise[T] {
	p := newPending[T](nil)
	p.reject(err)
	return p
}

// Delay returns a Promise that fulfills with v after d elapses.
func Delay[T any](d time.Duration, v T) *Promise[T] {
	p := newPending[T](nil)
	time.AfterFunc(d, func() { p.resolve(v) })
	return p
}

// Try runs fn and wraps its outcome (including a recovered panic) in a
// settled Promise.
func Try[T any](fn func() (T, error)) *Promise[T] {
	v, err := safeCall(fn)
	if err != nil {
		return RejectedWith[T](err)
	}
	return Resolved(v)
}

// All fulfills with every input's value, in input order, once all inputs
// fulfill; it rejects immediately with the first rejection reason observed,
// even while other inputs remain pending. Empty input fulfills with an
// empty slice.
func All[T any](ps []*Promise[T]) *Promise[[]T] {
	out := newPending[[]T](firstTick(ps))
	if len(ps) == 0 {
		out.resolve(nil)
		return out
	}

	results := make([]T, len(ps))
	var mu sync.Mutex
	remaining := len(ps)
	settledOnce := false

	for i, p := range ps {
		i := i
		p.subscribe(func(v T) {
			mu.Lock()
			defer mu.Unlock()
			if settledOnce {
				return
			}
			results[i] = v
			remaining--
			if remaining == 0 {
				settledOnce = true
				out.resolve(results)
			}
		}, func(err error) {
			mu.Lock()
			defer mu.Unlock()
			if settledOnce {
				return
			}
			settledOnce = true
			out.reject(err)
		})
	}
	return out
}

// AllSettled fulfills once every input has settled, one way or another. It
// never rejects. Empty input fulfills with an empty slice.
func AllSettled[T any](ps []*Promise[T]) *Promise[[]Outcome[T]] {
	out := newPending[[]Outcome[T]](firstTick(ps))
	if len(ps) == 0 {
		out.resolve(nil)
		return out
	}

	results := make([]Outcome[T], len(ps))
	var mu sync.Mutex
	remaining := len(ps)

	for i, p := range ps {
		i := i
		p.subscribe(func(v T) {
			mu.Lock()
			results[i] = Outcome[T]{Status: Fulfilled, Value: v}
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				out.resolve(results)
			}
		}, func(err error) {
			mu.Lock()
			results[i] = Outcome[T]{Status: Rejected, Reason: err}
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				out.resolve(results)
			}
		})
	}
	return out
}

// AggregateError is Any's rejection reason when every input rejected.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("promise: all %d promises rejected", len(e.Errors))
}

// Any fulfills with the first fulfilled value among the inputs; it rejects
// only once every input has rejected, with an *AggregateError carrying all
// reasons in input order. Empty input rejects immediately.
func Any[T any](ps []*Promise[T]) *Promise[T] {
	out := newPending[T](firstTick(ps))
	if len(ps) == 0 {
		out.reject(&AggregateError{})
		return out
	}

	errs := make([]error, len(ps))
	var mu sync.Mutex
	remaining := len(ps)
	settledOnce := false

	for i, p := range ps {
		i := i
		p.subscribe(func(v T) {
			mu.Lock()
			if settledOnce {
				mu.Unlock()
				return
			}
			settledOnce = true
			mu.Unlock()
			out.resolve(v)
		}, func(err error) {
			mu.Lock()
			defer mu.Unlock()
			if settledOnce {
				return
			}
			errs[i] = err
			remaining--
			if remaining == 0 {
				settledOnce = true
				out.reject(&AggregateError{Errors: errs})
			}
		})
	}
	return out
}

// Race settles with the first input to settle, fulfilled or rejected.
// Empty input remains pending forever — see SPEC_FULL.md's Open Question
// decision: the reference behavior is preserved rather than raising an
// error on an empty slice.
func Race[T any](ps []*Promise[T]) *Promise[T] {
	out := newPending[T](firstTick(ps))
	if len(ps) == 0 {
		return out
	}

	var mu sync.Mutex
	settledOnce := false

	for _, p := range ps {
		p.subscribe(func(v T) {
			mu.Lock()
			if settledOnce {
				mu.Unlock()
				return
			}
			settledOnce = true
			mu.Unlock()
			out.resolve(v)
		}, func(err error) {
			mu.Lock()
			if settledOnce {
				mu.Unlock()
				return
			}
			settledOnce = true
			mu.Unlock()
			out.reject(err)
		})
	}
	return out
}

// firstTick picks the first non-nil tick function among ps so that a
// combinator's Wait can still drive whichever engine backs its inputs.
func firstTick[T any](ps []*Promise[T]) TickFunc {
	for _, p := range ps {
		if p.tick != nil {
			return p.tick
		}
	}
	return nil
}
