package velox

import (
	"testing"
	"time"
)

func TestMetricsCollectorSnapshotTracksTotals(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRequest("GET", "api.example.com/x", 200, 10*time.Millisecond)
	mc.RecordRequest("GET", "api.example.com/x", 500, 5*time.Millisecond)

	snap := mc.Snapshot(1, 2)
	if snap.TotalRequests != 2 {
		t.Fatalf("expected 2 total requests, got %d", snap.TotalRequests)
	}
	if snap.SuccessfulRequests != 1 || snap.FailedRequests != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", snap)
	}
	if snap.PendingRequests != 1 || snap.QueuedRequests != 2 {
		t.Fatalf("expected pending/queued to pass through, got %+v", snap)
	}
	if snap.SuccessRate != 0.5 {
		t.Fatalf("expected a 0.5 success rate, got %f", snap.SuccessRate)
	}
}

func TestMetricsCollectorNilReceiverIsSafe(t *testing.T) {
	var mc *MetricsCollector
	mc.RecordRequest("GET", "x", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "x")
	mc.RecordRequestEnd("GET", "x")
	mc.RecordRetry("GET", "x", 1)
	mc.RecordError("transport", "GET", "x")
	if snap := mc.Snapshot(0, 0); snap.TotalRequests != 0 {
		t.Fatalf("expected a zero Snapshot from a nil collector, got %+v", snap)
	}
}

func TestTwoCollectorsOnIndependentRegistriesDoNotPanic(t *testing.T) {
	a := NewMetricsCollector()
	b := NewMetricsCollector()
	a.RecordRequest("GET", "x", 200, time.Millisecond)
	b.RecordRequest("GET", "x", 200, time.Millisecond)
	if a.Snapshot(0, 0).TotalRequests != 1 || b.Snapshot(0, 0).TotalRequests != 1 {
		t.Fatal("expected each collector's counters to be independent")
	}
}
