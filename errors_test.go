package velox

import (
	"errors"
	"strings"
	"testing"
)

func TestClientErrorIsMatchesByKind(t *testing.T) {
	a := &ClientError{Kind: TransportKind, Message: "dial failed"}
	b := &ClientError{Kind: TransportKind, Message: "different message"}
	if !errors.Is(a, b) {
		t.Fatal("expected ClientError.Is to match same-Kind errors regardless of message")
	}
	c := &ClientError{Kind: TimeoutKind}
	if errors.Is(a, c) {
		t.Fatal("expected ClientError.Is to reject a different Kind")
	}
}

func TestClientErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := &ClientError{Kind: TransportKind, Cause: cause}
	if errors.Unwrap(err) != cause {
		t.Fatal("expected Unwrap to expose Cause")
	}
}

func TestIsTransientClassifiesKinds(t *testing.T) {
	transient := []Kind{TransportKind, TimeoutKind, RateLimitKind, CircuitOpenKind}
	for _, k := range transient {
		if !IsTransient(&ClientError{Kind: k}) {
			t.Fatalf("expected %s to be classified transient", k)
		}
	}
	permanent := []Kind{InvalidInputKind, ValidationKind, ShutdownKind}
	for _, k := range permanent {
		if IsTransient(&ClientError{Kind: k}) {
			t.Fatalf("expected %s to be classified non-transient", k)
		}
	}
	if IsTransient(errors.New("plain error")) {
		t.Fatal("expected a non-ClientError to be classified non-transient")
	}
}

func TestFromResponseBuildsHttpKindOnErrorStatus(t *testing.T) {
	req := &Request{Method: "GET", URL: "https://api.example.com/widgets"}
	resp := &Response{StatusCode: 404}
	err := FromResponse(req, resp)
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Kind != HttpKind {
		t.Fatalf("expected HttpKind for a 404, got %v", err)
	}
	if ce.StatusCode != 404 || ce.Response != resp {
		t.Fatalf("expected FromResponse to carry the status and response, got %+v", ce)
	}
}

func TestFromResponseNilOnSuccessStatus(t *testing.T) {
	if err := FromResponse(&Request{}, &Response{StatusCode: 200}); err != nil {
		t.Fatalf("expected no error for a 200, got %v", err)
	}
}

func TestFromResponseThresholdTripsAtOrAboveTheGivenStatus(t *testing.T) {
	if err := FromResponseThreshold(&Request{}, &Response{StatusCode: 404}, 500); err != nil {
		t.Fatalf("expected a 404 below the 500 threshold to pass, got %v", err)
	}
	if err := FromResponseThreshold(&Request{}, &Response{StatusCode: 500}, 500); err == nil {
		t.Fatal("expected a 500 at the threshold to fail")
	}
}

func TestClientErrorErrorStringIncludesContext(t *testing.T) {
	err := &ClientError{Kind: TransportKind, Message: "dial failed", RequestID: "req-1", Attempt: 2, MaxRetries: 3}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error string")
	}
	for _, want := range []string{"req-1", "dial failed", "2/3"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error string %q to contain %q", msg, want)
		}
	}
}
