// Package pool implements a per-host pool of reusable request handles. It is
// a second, explicit layer of pooling above whatever TCP-level reuse the
// transport already provides: a Handle carries scratch state (header maps,
// buffers) that's expensive to allocate per request but cheap to clear and
// hand back, so repeated requests to the same host can reuse one instead of
// allocating fresh.
package pool

import (
	"net/http"
	"sync"
)

// Handle is a reusable scratch value handed out by Acquire and returned via
// Release. Its zero value is ready to use.
type Handle struct {
	Header http.Header
}

func (h *Handle) reset() {
	h.Header = nil
}

// Pool holds idle Handles in a per-host LIFO stack, bounded to maxPerHost
// entries. A maxPerHost of 0 disables pooling: Release discards instead of
// storing, and Acquire always allocates fresh.
type Pool struct {
	mu         sync.Mutex
	maxPerHost int
	stacks     map[string][]*Handle
}

// New returns a Pool that keeps at most maxPerHost idle handles per host.
func New(maxPerHost int) *Pool {
	return &Pool{
		maxPerHost: maxPerHost,
		stacks:     make(map[string][]*Handle),
	}
}

// Acquire pops the most recently released handle for host, if any, and
// resets it before returning. If the host's stack is empty, it allocates a
// fresh Handle.
func (p *Pool) Acquire(host string) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	stack := p.stacks[host]
	if len(stack) == 0 {
		return &Handle{}
	}
	h := stack[len(stack)-1]
	p.stacks[host] = stack[:len(stack)-1]
	h.reset()
	return h
}

// Release returns h to host's idle stack, unless pooling is disabled or the
// host's stack is already at capacity, in which case h is discarded.
func (p *Pool) Release(h *Handle, host string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxPerHost <= 0 {
		return
	}
	stack := p.stacks[host]
	if len(stack) >= p.maxPerHost {
		return
	}
	h.reset()
	p.stacks[host] = append(stack, h)
}

// SetMaxPoolSize changes the per-host cap. Hosts whose stacks already exceed
// the new cap are trimmed from the least-recently-released end, evicting
// the oldest idle handles first and keeping the most recently released ones.
func (p *Pool) SetMaxPoolSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maxPerHost = n
	if n < 0 {
		n = 0
	}
	for host, stack := range p.stacks {
		if len(stack) <= n {
			continue
		}
		p.stacks[host] = append([]*Handle{}, stack[len(stack)-n:]...)
	}
}

// IdleCount returns how many handles are currently idle for host.
func (p *Pool) IdleCount(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stacks[host])
}

// Close discards all pooled handles across every host.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stacks = make(map[string][]*Handle)
	return nil
}
