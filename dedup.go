package velox

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/arisudev/velox/promise"
)

// dedupEntry is the owner's in-flight promise plus a count of callers
// currently attached to it, reported by Waiters; removal from the tracker
// is driven purely by the owner's settlement.
type dedupEntry struct {
	promise *promise.Promise[*Response]
	waiters int
}

// DeduplicationTracker coalesces concurrent requests that share a key: the
// first caller (the owner) becomes the promise every other caller
// (a waiter) subscribes to instead of issuing its own request. Unlike a
// blocking coalescing primitive, waiters attach via promise subscription
// and never block the goroutine that called Do.
type DeduplicationTracker struct {
	mu      sync.Mutex
	entries map[string]*dedupEntry
}

// NewDeduplicationTracker returns an empty tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{entries: make(map[string]*dedupEntry)}
}

// Do returns start()'s promise for the first caller with a given key; every
// concurrent caller with the same key instead receives a promise derived
// from that first call's eventual settlement. The entry is retired as soon
// as the owning promise settles, so a later call with the same key starts
// fresh work rather than replaying a stale result.
func (dt *DeduplicationTracker) Do(key string, start func() *promise.Promise[*Response]) *promise.Promise[*Response] {
	dt.mu.Lock()
	if entry, exists := dt.entries[key]; exists {
		entry.waiters++
		dt.mu.Unlock()
		return entry.promise.Then(func(resp *Response) (*Response, error) {
			return resp, nil
		}, func(err error) (*Response, error) {
			return nil, err
		})
	}

	entry := &dedupEntry{waiters: 1}
	p := start()
	entry.promise = p
	dt.entries[key] = entry
	dt.mu.Unlock()

	return p.Finally(func() error {
		dt.mu.Lock()
		delete(dt.entries, key)
		dt.mu.Unlock()
		return nil
	})
}

// Waiters reports how many callers (including the owner) most recently
// shared key's in-flight entry, or 0 if key has no in-flight entry.
func (dt *DeduplicationTracker) Waiters(key string) int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	if entry, ok := dt.entries[key]; ok {
		return entry.waiters
	}
	return 0
}

// DefaultDeduplicationKeyFunc hashes method, URL, and (for mutating verbs)
// body into a coalescing key.
func DefaultDeduplicationKeyFunc(req *Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte(req.URL))

	if len(req.Body) > 0 && (req.Method == "POST" || req.Method == "PUT" || req.Method == "PATCH") {
		sum := sha256.Sum256(req.Body)
		h.Write(sum[:])
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DefaultDeduplicationCondition coalesces only read-only, side-effect-free
// methods.
func DefaultDeduplicationCondition(req *Request) bool {
	return req.Method == "GET" || req.Method == "HEAD" || req.Method == "OPTIONS"
}

// DeduplicationMiddleware coalesces concurrent identical requests (as
// determined by keyFunc/condition) into a single call to next, fanning the
// shared result out to every caller via promise subscription.
func DeduplicationMiddleware(tracker *DeduplicationTracker, keyFunc DeduplicationKeyFunc, condition DeduplicationCondition) Middleware {
	if keyFunc == nil {
		keyFunc = DefaultDeduplicationKeyFunc
	}
	if condition == nil {
		condition = DefaultDeduplicationCondition
	}

	return func(req *Request, next Next) *promise.Promise[*Response] {
		if !condition(req) {
			return next(req)
		}
		key := keyFunc(req)
		return tracker.Do(key, func() *promise.Promise[*Response] {
			return next(req)
		})
	}
}
