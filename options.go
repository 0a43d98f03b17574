package velox

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options is velox's immutable per-client configuration record. Every
// With... method returns a new Options value; the receiver is left
// unchanged.
type Options struct {
	BaseURL         string            `validate:"omitempty,url"`
	ConnectTimeout  time.Duration     `validate:"gt=0"`
	ReadTimeout     time.Duration     `validate:"gt=0"`
	FollowRedirects bool
	MaxRedirects    int `validate:"gte=0"`
	VerifyTLS       bool
	UserAgent       string
	Proxy           string `validate:"omitempty,url"`
	DefaultHeaders  map[string]string
	RetryAttempts   int           `validate:"gte=0"`
	RetryDelay      time.Duration `validate:"gt=0"`
	RetryStatusCodes map[int]bool
	Http2Enabled    bool
	TCPKeepAlive    bool
}

// DefaultOptions returns the defaults spec.md §3 assigns each field.
func DefaultOptions() Options {
	return Options{
		BaseURL:         "",
		ConnectTimeout:  30 * time.Second,
		ReadTimeout:     30 * time.Second,
		FollowRedirects: true,
		MaxRedirects:    5,
		VerifyTLS:       true,
		UserAgent:       "",
		Proxy:           "",
		DefaultHeaders:  map[string]string{},
		RetryAttempts:   0,
		RetryDelay:      1 * time.Second,
		RetryStatusCodes: map[int]bool{
			429: true, 502: true, 503: true, 504: true,
		},
		Http2Enabled: false,
		TCPKeepAlive: true,
	}
}

func (o Options) cloneHeaders() map[string]string {
	h := make(map[string]string, len(o.DefaultHeaders))
	for k, v := range o.DefaultHeaders {
		h[k] = v
	}
	return h
}

func (o Options) cloneRetryStatusCodes() map[int]bool {
	m := make(map[int]bool, len(o.RetryStatusCodes))
	for k, v := range o.RetryStatusCodes {
		m[k] = v
	}
	return m
}

func (o Options) WithBaseURL(s string) Options {
	o.BaseURL = s
	return o
}

func (o Options) WithConnectTimeout(d time.Duration) Options {
	o.ConnectTimeout = d
	return o
}

func (o Options) WithReadTimeout(d time.Duration) Options {
	o.ReadTimeout = d
	return o
}

func (o Options) WithFollowRedirects(b bool) Options {
	o.FollowRedirects = b
	return o
}

func (o Options) WithMaxRedirects(n int) Options {
	o.MaxRedirects = n
	return o
}

func (o Options) WithVerifyTLS(b bool) Options {
	o.VerifyTLS = b
	return o
}

func (o Options) WithUserAgent(s string) Options {
	o.UserAgent = s
	return o
}

func (o Options) WithProxy(s string) Options {
	o.Proxy = s
	return o
}

// WithDefaultHeader sets a single default header, preserving the rest.
func (o Options) WithDefaultHeader(name, value string) Options {
	h := o.cloneHeaders()
	h[name] = value
	o.DefaultHeaders = h
	return o
}

// WithDefaultHeaders replaces the default header set entirely.
func (o Options) WithDefaultHeaders(headers map[string]string) Options {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	o.DefaultHeaders = h
	return o
}

func (o Options) WithRetryAttempts(n int) Options {
	o.RetryAttempts = n
	return o
}

func (o Options) WithRetryDelay(d time.Duration) Options {
	o.RetryDelay = d
	return o
}

// WithRetryStatusCodes replaces the set of status codes that trigger a
// retry.
func (o Options) WithRetryStatusCodes(codes ...int) Options {
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	o.RetryStatusCodes = m
	return o
}

func (o Options) WithHttp2(b bool) Options {
	o.Http2Enabled = b
	return o
}

func (o Options) WithTCPKeepAlive(b bool) Options {
	o.TCPKeepAlive = b
	return o
}

var optionsValidator = validator.New()

// Validate runs go-playground/validator struct-tag checks plus the
// cross-field invariants tags can't express.
func (o Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return &ClientError{Kind: ValidationKind, Message: "options validation failed", Cause: err}
	}

	var problems []string
	if o.ReadTimeout < o.ConnectTimeout {
		problems = append(problems, "readTimeout should be >= connectTimeout")
	}
	if o.MaxRedirects > 0 && !o.FollowRedirects {
		problems = append(problems, "maxRedirects is set but followRedirects is false")
	}
	if len(problems) > 0 {
		return &ClientError{
			Kind:    ValidationKind,
			Message: "options validation failed",
			Cause:   fmt.Errorf("%v", problems),
		}
	}
	return nil
}
