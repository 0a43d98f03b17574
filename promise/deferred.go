package promise

// Deferred exposes Resolve/Reject for a Promise it owns. It is the
// producer-side handle; Promise() exposes the consumer-side view. Multiple
// Resolve/Reject calls after the first settlement are no-ops, matching the
// Promise state machine's single-transition invariant.
type Deferred[T any] struct {
	p *Promise[T]
}

// NewDeferred creates a Deferred whose Promise is bound to the given tick
// function (invoked during blocking Wait calls to make forward progress).
// A nil tick falls back to a short sleep loop.
func NewDeferred[T any](tick TickFunc) *Deferred[T] {
	return &Deferred[T]{p: newPending[T](tick)}
}

// Promise returns the consumer-side Promise.
func (d *Deferred[T]) Promise() *Promise[T] {
	return d.p
}

// Resolve fulfills the underlying promise. A no-op if already settled.
func (d *Deferred[T]) Resolve(v T) {
	d.p.resolve(v)
}

// Reject rejects the underlying promise. A no-op if already settled.
func (d *Deferred[T]) Reject(err error) {
	d.p.reject(err)
}
