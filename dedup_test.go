package velox

import (
	"sync"
	"testing"
	"time"

	"github.com/arisudev/velox/promise"
)

func TestDeduplicationTrackerCoalescesConcurrentCallers(t *testing.T) {
	tracker := NewDeduplicationTracker()
	release := make(chan struct{})
	var starts int

	start := func() *promise.Promise[*Response] {
		starts++
		deferred := promise.NewDeferred[*Response](nil)
		go func() {
			<-release
			deferred.Resolve(&Response{StatusCode: 200})
		}()
		return deferred.Promise()
	}

	var wg sync.WaitGroup
	results := make([]*promise.Promise[*Response], 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tracker.Do("key", start)
		}(i)
	}
	wg.Wait()

	if starts != 1 {
		t.Fatalf("expected exactly one owner call to start, got %d", starts)
	}
	if w := tracker.Waiters("key"); w != 5 {
		t.Fatalf("expected 5 waiters on the in-flight entry, got %d", w)
	}

	close(release)
	for _, p := range results {
		resp, err := p.Wait(time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("unexpected response: %+v", resp)
		}
	}

	if w := tracker.Waiters("key"); w != 0 {
		t.Fatalf("expected the entry to be retired after settlement, got %d waiters", w)
	}
}

func TestDeduplicationTrackerStartsFreshAfterRetirement(t *testing.T) {
	tracker := NewDeduplicationTracker()
	starts := 0
	start := func() *promise.Promise[*Response] {
		starts++
		return promise.Resolved(&Response{StatusCode: 200})
	}

	tracker.Do("key", start).Wait(0)
	tracker.Do("key", start).Wait(0)

	if starts != 2 {
		t.Fatalf("expected a second Do after retirement to start fresh work, got %d starts", starts)
	}
}

func TestDefaultDeduplicationCondition(t *testing.T) {
	if !DefaultDeduplicationCondition(&Request{Method: "GET"}) {
		t.Fatal("expected GET to be eligible")
	}
	if DefaultDeduplicationCondition(&Request{Method: "POST"}) {
		t.Fatal("expected POST to be ineligible")
	}
}

func TestDefaultDeduplicationKeyFuncIncludesBodyForMutatingVerbs(t *testing.T) {
	a := DefaultDeduplicationKeyFunc(&Request{Method: "POST", URL: "http://example.com", Body: []byte("one")})
	b := DefaultDeduplicationKeyFunc(&Request{Method: "POST", URL: "http://example.com", Body: []byte("two")})
	if a == b {
		t.Fatal("expected different bodies to produce different keys for a mutating verb")
	}
}
