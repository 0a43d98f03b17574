package velox

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a ClientError for programmatic dispatch (errors.As +
// switch on Kind, rather than string matching).
type Kind string

const (
	// InvalidInputKind means the caller's request was rejected before
	// submission: a disallowed method, a URL the validation predicate
	// refused, or a malformed header.
	InvalidInputKind Kind = "invalid_input"
	// TransportKind means the underlying transfer never produced an HTTP
	// response (DNS failure, connection refused, context canceled) and
	// retries, if any, are exhausted.
	TransportKind Kind = "transport"
	// HttpKind is reserved for middleware layers (e.g. a custom
	// "treat 4xx as failure" policy) that choose to surface a non-2xx
	// status as a rejection; the dispatch engine itself never raises it.
	HttpKind Kind = "http"
	// TimeoutKind means a blocking Wait's deadline elapsed before
	// settlement.
	TimeoutKind Kind = "timeout"
	// RejectionKind wraps any rejection reason that no other Kind covers
	// (e.g. a recovered panic or an error returned by a middleware).
	RejectionKind Kind = "rejection"
	// AggregateKind wraps multiple underlying failures, e.g. from
	// promise.Any when every input rejected.
	AggregateKind Kind = "aggregate"
	// ShutdownKind means the client was closed before a queued request
	// reached admission.
	ShutdownKind Kind = "shutdown"
	// ValidationKind means the client's own configuration failed
	// validation at construction time.
	ValidationKind Kind = "validation"
	// RateLimitKind means a rate limiter middleware denied the request.
	RateLimitKind Kind = "rate_limited"
	// CircuitOpenKind means a circuit breaker middleware denied the
	// request because the circuit is open.
	CircuitOpenKind Kind = "circuit_open"
)

// ClientError is the error type every velox operation rejects or returns
// with. It carries enough context (request identity, attempt count,
// timing) to diagnose a failure without re-deriving it from logs.
type ClientError struct {
	Kind       Kind
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
	StatusCode int
	Endpoint   string
	Response   *Response
}

// Error implements error.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares by Kind, so errors.Is(err, &ClientError{Kind: TransportKind})
// matches any transport failure regardless of message/context.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// DebugInfo renders a multi-line diagnostic dump, intended for logs rather
// than for display to an end user.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Kind: %s\nMessage: %s\n", e.Kind, e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient reports whether err represents a failure that might succeed
// on retry: transport failures, timeouts, rate limiting, and an open
// circuit breaker are transient; invalid input and configuration failures
// are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case TransportKind, TimeoutKind, RateLimitKind, CircuitOpenKind:
			return true
		default:
			return false
		}
	}
	return false
}

// FromResponse builds an HttpKind *ClientError from resp if its status
// code falls outside the 2xx/3xx success range, or nil otherwise. The
// dispatch engine never raises HttpKind itself — a fulfilled promise
// carries resp regardless of status — so this is the factory a
// status-based-failure middleware (circuit breaker, a caller's own
// "treat 4xx as failure" policy) calls to opt into it.
func FromResponse(req *Request, resp *Response) error {
	return FromResponseThreshold(req, resp, 400)
}

// FromResponseThreshold is FromResponse generalized to a caller-chosen
// failure threshold (inclusive): a circuit breaker that only wants to
// trip on server errors calls FromResponseThreshold(req, resp, 500).
func FromResponseThreshold(req *Request, resp *Response, minFailureStatus int) error {
	if resp == nil || resp.StatusCode < minFailureStatus {
		return nil
	}
	var method, url string
	if req != nil {
		method, url = req.Method, req.URL
	}
	return &ClientError{
		Kind:       HttpKind,
		Message:    fmt.Sprintf("request failed with status %d", resp.StatusCode),
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Endpoint:   endpointOf(method, url),
		Response:   resp,
		Timestamp:  time.Now(),
	}
}

func newClientError(kind Kind, message string, cause error, requestID string, req *Request, attempt, maxRetries int, duration time.Duration) *ClientError {
	var method, url string
	if req != nil {
		method, url = req.Method, req.URL
	}
	return &ClientError{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     method,
		URL:        url,
		Attempt:    attempt,
		MaxRetries: maxRetries,
		Timestamp:  time.Now(),
		Duration:   duration,
		Endpoint:   endpointOf(method, url),
	}
}
