package velox

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"github.com/arisudev/velox/internal/engine"
	"github.com/arisudev/velox/internal/pool"
	"github.com/arisudev/velox/internal/retrypolicy"
	"github.com/arisudev/velox/promise"
)

// Client is velox's public facade: an asynchronous, resilient HTTP client
// built from an Options record, a dispatch engine, and a chain of
// Middleware. It is immutable once built — every With... method returns a
// new Client with its own Options, middleware slice, pool and dispatch
// engine. The MetricsCollector, Logger and DebugConfig, and any
// *http.Client installed with WithHTTPClient, are shared with the receiver.
type Client struct {
	options     Options
	httpClient  *http.Client
	eng         *engine.Engine
	pool        *pool.Pool
	retryPolicy *retrypolicy.DefaultPolicy

	middlewares []Middleware
	urlValidate URLValidator

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	maxConcurrency int
	poolCap        int
	backoffMult    float64
	backoffJitter  float64
	maxBackoff     time.Duration
	overallTimeout time.Duration

	customHTTPClient bool
	validationError  error
}

// Option configures a Client under construction; see New.
type Option func(*builder)

type builder struct {
	options        Options
	httpClient     *http.Client
	middlewares    []Middleware
	urlValidate    URLValidator
	metrics        *MetricsCollector
	logger         Logger
	debug          *DebugConfig
	maxConcurrency int
	poolCap        int
	backoffMult    float64
	backoffJitter  float64
	maxBackoff     time.Duration
}

func newBuilder() *builder {
	return &builder{
		options:        DefaultOptions(),
		urlValidate:    DefaultURLValidator,
		debug:          DefaultDebugConfig(),
		maxConcurrency: 64,
		poolCap:        16,
		backoffMult:    2.0,
		backoffJitter:  0.1,
		maxBackoff:     10 * time.Second,
	}
}

// WithOptions replaces the entire Options record.
func WithOptions(o Options) Option {
	return func(b *builder) { b.options = o }
}

// WithBaseURL, WithConnectTimeout, ... mirror the corresponding Options
// field for callers who don't want to build an Options value by hand.
func WithBaseURL(s string) Option { return func(b *builder) { b.options = b.options.WithBaseURL(s) } }

func WithConnectTimeout(d time.Duration) Option {
	return func(b *builder) { b.options = b.options.WithConnectTimeout(d) }
}

func WithReadTimeout(d time.Duration) Option {
	return func(b *builder) { b.options = b.options.WithReadTimeout(d) }
}

func WithFollowRedirects(v bool) Option {
	return func(b *builder) { b.options = b.options.WithFollowRedirects(v) }
}

func WithMaxRedirects(n int) Option {
	return func(b *builder) { b.options = b.options.WithMaxRedirects(n) }
}

func WithVerifyTLS(v bool) Option {
	return func(b *builder) { b.options = b.options.WithVerifyTLS(v) }
}

func WithUserAgent(s string) Option {
	return func(b *builder) { b.options = b.options.WithUserAgent(s) }
}

func WithProxy(s string) Option { return func(b *builder) { b.options = b.options.WithProxy(s) } }

func WithDefaultHeader(name, value string) Option {
	return func(b *builder) { b.options = b.options.WithDefaultHeader(name, value) }
}

func WithRetryAttempts(n int) Option {
	return func(b *builder) { b.options = b.options.WithRetryAttempts(n) }
}

func WithRetryDelay(d time.Duration) Option {
	return func(b *builder) { b.options = b.options.WithRetryDelay(d) }
}

func WithRetryStatusCodes(codes ...int) Option {
	return func(b *builder) { b.options = b.options.WithRetryStatusCodes(codes...) }
}

func WithHttp2(v bool) Option { return func(b *builder) { b.options = b.options.WithHttp2(v) } }

func WithTCPKeepAlive(v bool) Option {
	return func(b *builder) { b.options = b.options.WithTCPKeepAlive(v) }
}

// WithMaxBackoff, WithBackoffMultiplier, WithJitter configure the retry
// scheduler's exponential backoff beyond the base delay spec.md's Options
// record carries (RetryDelay is the initial backoff).
func WithMaxBackoff(d time.Duration) Option { return func(b *builder) { b.maxBackoff = d } }

func WithBackoffMultiplier(f float64) Option { return func(b *builder) { b.backoffMult = f } }

func WithJitter(f float64) Option {
	return func(b *builder) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		b.backoffJitter = f
	}
}

// WithMaxConcurrency bounds how many transfers the dispatch engine admits
// at once; excess requests queue.
func WithMaxConcurrency(n int) Option { return func(b *builder) { b.maxConcurrency = n } }

// WithPoolSize bounds the per-host idle-handle cache.
func WithPoolSize(n int) Option { return func(b *builder) { b.poolCap = n } }

// WithHTTPClient overrides the underlying *http.Client (e.g. for tests with
// a fake transport). Options-derived timeouts/TLS/proxy settings are not
// reapplied on top of it.
func WithHTTPClient(c *http.Client) Option { return func(b *builder) { b.httpClient = c } }

// WithMiddleware appends to the installed middleware chain, in the order
// they should see an outbound request.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *builder) { b.middlewares = append(b.middlewares, mw...) }
}

// WithURLValidator overrides the pluggable URL admissibility predicate.
func WithURLValidator(v URLValidator) Option { return func(b *builder) { b.urlValidate = v } }

// WithMetrics enables Prometheus metrics collection with a fresh
// collector.
func WithMetrics() Option { return func(b *builder) { b.metrics = NewMetricsCollector() } }

// WithMetricsCollector installs a caller-supplied collector (e.g. one
// registered on a shared registry).
func WithMetricsCollector(m *MetricsCollector) Option { return func(b *builder) { b.metrics = m } }

// WithLogger installs a custom Logger for debug output.
func WithLogger(l Logger) Option { return func(b *builder) { b.logger = l } }

// WithDebug turns on debug logging with the default DebugConfig. It installs
// no Logger: output goes to the one set with WithLogger, and nothing is
// logged without one (WithSimpleLogger sets both).
func WithDebug() Option {
	return func(b *builder) {
		if b.debug == nil {
			b.debug = DefaultDebugConfig()
		}
		b.debug.Enabled = true
	}
}

// WithDebugConfig installs a custom DebugConfig.
func WithDebugConfig(cfg *DebugConfig) Option { return func(b *builder) { b.debug = cfg } }

// WithSimpleLogger turns on debug logging through a slog-backed console
// logger.
func WithSimpleLogger() Option {
	return func(b *builder) {
		if b.debug == nil {
			b.debug = DefaultDebugConfig()
		}
		b.debug.Enabled = true
		b.logger = NewSimpleLogger()
	}
}

// WithCircuitBreaker installs a circuit breaker middleware guarding every
// request issued by the client.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(b *builder) { b.middlewares = append(b.middlewares, NewCircuitBreaker(config).Middleware()) }
}

// WithRateLimiter installs a token-bucket rate limiter middleware shared
// across every request issued by the client.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(b *builder) {
		b.middlewares = append(b.middlewares, RateLimiterMiddleware(NewRateLimiter(maxTokens, refillRate)))
	}
}

// WithRateLimiterRegistry installs a per-key rate limiter middleware.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(b *builder) { b.middlewares = append(b.middlewares, registry.Middleware()) }
}

// WithCache enables response caching with a fresh in-memory Cache.
func WithCache(ttl time.Duration) Option {
	return func(b *builder) {
		b.middlewares = append(b.middlewares, CacheMiddleware(NewInMemoryCache(), nil, nil, ttl))
	}
}

// WithCustomCache enables response caching with a caller-supplied Cache.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(b *builder) {
		b.middlewares = append(b.middlewares, CacheMiddleware(cache, nil, nil, ttl))
	}
}

// WithDeduplication enables coalescing of concurrent identical requests.
func WithDeduplication() Option {
	return func(b *builder) {
		b.middlewares = append(b.middlewares, DeduplicationMiddleware(NewDeduplicationTracker(), nil, nil))
	}
}

// WithTracing installs an OpenTelemetry tracing middleware using tracer.
func WithTracing(tracer trace.Tracer) Option {
	return func(b *builder) { b.middlewares = append(b.middlewares, TracingMiddleware(tracer)) }
}

// New builds a Client from functional options, validating the resulting
// Options record; validation failures are retained rather than panicking —
// check IsValid/ValidationError before use.
func New(opts ...Option) *Client {
	b := newBuilder()
	for _, opt := range opts {
		opt(b)
	}

	c := &Client{
		options:          b.options,
		middlewares:      b.middlewares,
		urlValidate:      b.urlValidate,
		metrics:          b.metrics,
		logger:           b.logger,
		debug:            b.debug,
		maxConcurrency:   b.maxConcurrency,
		poolCap:          b.poolCap,
		backoffMult:      b.backoffMult,
		backoffJitter:    b.backoffJitter,
		maxBackoff:       b.maxBackoff,
		httpClient:       b.httpClient,
		customHTTPClient: b.httpClient != nil,
	}
	return c.rebuild()
}

// clone returns a new Client carrying the receiver's configuration, with
// an independent middleware slice. Every other field is copied as is, so
// the clone shares the receiver's engine, pool, metrics collector, logger
// and debug config until rebuild replaces the engine and pool. With...
// methods build on top of this.
func (c *Client) clone() *Client {
	nc := *c
	nc.middlewares = append([]Middleware{}, c.middlewares...)
	return &nc
}

// rebuild (re)derives the HTTP transport (unless the caller installed one
// explicitly via WithHTTPClient), retry policy, pool, and dispatch engine
// from the receiver's current Options and tuning fields, and re-validates
// Options. New and every With... method that changes derived state end by
// calling this.
func (nc *Client) rebuild() *Client {
	if err := nc.options.Validate(); err != nil {
		nc.validationError = err
	} else {
		nc.validationError = nil
	}

	if !nc.customHTTPClient {
		nc.httpClient = buildHTTPClient(nc.options)
		if nc.overallTimeout > 0 {
			nc.httpClient.Timeout = nc.overallTimeout
		}
	}

	nc.pool = pool.New(nc.poolCap)
	nc.retryPolicy = retrypolicy.New(nc.options.RetryAttempts, nc.options.RetryDelay, nc.maxBackoff, nc.backoffMult, nc.backoffJitter)
	if len(nc.options.RetryStatusCodes) > 0 {
		status := make(map[int]bool, len(nc.options.RetryStatusCodes))
		for code, on := range nc.options.RetryStatusCodes {
			if on {
				status[code] = true
			}
		}
		nc.retryPolicy.RetryStatus = status
	}

	nc.eng = engine.New(nc.httpClient, nc.pool, nc.retryPolicy, nc.maxConcurrency, nc.hooks())
	return nc
}

// WithBaseURL returns a new Client whose relative request URLs resolve
// against baseURL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	nc := c.clone()
	nc.options = nc.options.WithBaseURL(baseURL)
	return nc.rebuild()
}

// WithTimeout returns a new Client whose overall per-request timeout (the
// underlying http.Client.Timeout) is d.
func (c *Client) WithTimeout(d time.Duration) *Client {
	nc := c.clone()
	nc.overallTimeout = d
	return nc.rebuild()
}

// WithUserAgent returns a new Client sending userAgent as its default
// User-Agent header.
func (c *Client) WithUserAgent(userAgent string) *Client {
	nc := c.clone()
	nc.options = nc.options.WithUserAgent(userAgent)
	return nc.rebuild()
}

// WithHeaders returns a new Client whose default header set is replaced
// by headers.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	nc := c.clone()
	nc.options = nc.options.WithDefaultHeaders(headers)
	return nc.rebuild()
}

// WithProxy returns a new Client routing requests through proxyURL.
func (c *Client) WithProxy(proxyURL string) *Client {
	nc := c.clone()
	nc.options = nc.options.WithProxy(proxyURL)
	return nc.rebuild()
}

// WithoutTLSVerification returns a new Client that skips TLS certificate
// verification.
func (c *Client) WithoutTLSVerification() *Client {
	nc := c.clone()
	nc.options = nc.options.WithVerifyTLS(false)
	return nc.rebuild()
}

// WithBearerToken returns a new Client that sends an "Authorization:
// Bearer <token>" default header.
func (c *Client) WithBearerToken(token string) *Client {
	nc := c.clone()
	nc.options = nc.options.WithDefaultHeader("Authorization", "Bearer "+token)
	return nc.rebuild()
}

// WithBasicAuth returns a new Client that sends an "Authorization: Basic
// ..." default header built from user and pass.
func (c *Client) WithBasicAuth(user, pass string) *Client {
	nc := c.clone()
	creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	nc.options = nc.options.WithDefaultHeader("Authorization", "Basic "+creds)
	return nc.rebuild()
}

// AsJSON returns a new Client that defaults every request body to a JSON
// Content-Type.
func (c *Client) AsJSON() *Client {
	nc := c.clone()
	nc.options = nc.options.WithDefaultHeader("Content-Type", "application/json")
	return nc.rebuild()
}

// AsForm returns a new Client that defaults every request body to a
// form-urlencoded Content-Type.
func (c *Client) AsForm() *Client {
	nc := c.clone()
	nc.options = nc.options.WithDefaultHeader("Content-Type", "application/x-www-form-urlencoded")
	return nc.rebuild()
}

// WithHTTP2 returns a new Client with HTTP/2 support on its transport
// toggled to enabled.
func (c *Client) WithHTTP2(enabled bool) *Client {
	nc := c.clone()
	nc.options = nc.options.WithHttp2(enabled)
	return nc.rebuild()
}

// WithTCPKeepAlive returns a new Client with TCP keep-alive toggled to
// enabled.
func (c *Client) WithTCPKeepAlive(enabled bool) *Client {
	nc := c.clone()
	nc.options = nc.options.WithTCPKeepAlive(enabled)
	return nc.rebuild()
}

// WithMaxPoolSize returns a new Client whose per-host idle-handle cache
// holds at most n entries.
func (c *Client) WithMaxPoolSize(n int) *Client {
	nc := c.clone()
	nc.poolCap = n
	return nc.rebuild()
}

// WithMaxConcurrent returns a new Client whose dispatch engine admits at
// most n transfers at once. The change produces a cloned engine and is
// reflected starting with the clone's next tick, not the receiver's.
func (c *Client) WithMaxConcurrent(n int) *Client {
	nc := c.clone()
	nc.maxConcurrency = n
	return nc.rebuild()
}

// WithRetry returns a new Client whose retry policy attempts up to
// attempts additional tries, waiting delay before the first retry, and
// retrying only on the given status codes.
func (c *Client) WithRetry(attempts int, delay time.Duration, statusCodes ...int) *Client {
	nc := c.clone()
	nc.options = nc.options.WithRetryAttempts(attempts).WithRetryDelay(delay).WithRetryStatusCodes(statusCodes...)
	return nc.rebuild()
}

// WithMiddleware returns a new Client with mw appended to the installed
// middleware chain.
func (c *Client) WithMiddleware(mw Middleware) *Client {
	nc := c.clone()
	nc.middlewares = append(nc.middlewares, mw)
	return nc.rebuild()
}

// WithMiddlewares returns a new Client with every middleware in mws
// appended to the installed chain, in order.
func (c *Client) WithMiddlewares(mws []Middleware) *Client {
	nc := c.clone()
	nc.middlewares = append(nc.middlewares, mws...)
	return nc.rebuild()
}

// WithOptions returns a new Client built from o in place of its current
// Options record.
func (c *Client) WithOptions(o Options) *Client {
	nc := c.clone()
	nc.options = o
	return nc.rebuild()
}

func (c *Client) hooks() engine.Hooks {
	return engine.Hooks{
		OnSubmit: func() {
			if c.metrics != nil {
				c.metrics.RecordQueued(c.eng.QueuedCount())
			}
		},
		OnAdmit: func() {
			if c.metrics != nil {
				c.metrics.RecordQueued(c.eng.QueuedCount())
			}
		},
		OnRetry: func(method string, attempt int) {
			if c.metrics != nil {
				c.metrics.RecordRetry(method, "", attempt)
			}
			if c.debugEnabled() && c.debug.LogRetries {
				c.logger.Warn("retrying request", "method", method, "attempt", attempt)
			}
		},
	}
}

func buildHTTPClient(o Options) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   o.ConnectTimeout,
			KeepAlive: keepAliveInterval(o.TCPKeepAlive),
		}).DialContext,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !o.VerifyTLS},
	}

	if o.Proxy != "" {
		if proxyURL, err := url.Parse(o.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if o.Http2Enabled {
		_ = http2.ConfigureTransport(transport)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   o.ConnectTimeout + o.ReadTimeout,
	}

	if !o.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if o.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= o.MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		}
	}

	return client
}

func keepAliveInterval(enabled bool) time.Duration {
	if enabled {
		return 30 * time.Second
	}
	return -1
}

// IsValid reports whether the Options record validated at construction.
func (c *Client) IsValid() bool { return c.validationError == nil }

// ValidationError returns the validation error from construction, if any.
func (c *Client) ValidationError() error { return c.validationError }

// GetOptions returns the Client's Options record.
func (c *Client) GetOptions() Options { return c.options }

// GetMetrics returns the Client's metrics collector, or nil if metrics
// were never enabled.
func (c *Client) GetMetrics() *MetricsCollector { return c.metrics }

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true, http.MethodTrace: true, http.MethodConnect: true,
}

// request is the single path every verb helper and Json funnel through: it
// validates method and URL, resolves the absolute URL and merged headers,
// builds the request descriptor, and drives it through the middleware
// chain to the dispatch engine.
func (c *Client) request(ctx context.Context, method, rawURL string, headers map[string]string, body any, params map[string]string) *promise.Promise[*Response] {
	method = strings.ToUpper(method)
	if !validMethods[method] {
		return promise.RejectedWith[*Response](&ClientError{
			Kind:    InvalidInputKind,
			Message: "unsupported method: " + method,
			Method:  method,
		})
	}

	full, err := buildURL(c.options.BaseURL, rawURL, params)
	if err != nil {
		return promise.RejectedWith[*Response](&ClientError{Kind: InvalidInputKind, Message: "failed to build URL", Cause: err, Method: method, URL: rawURL})
	}

	if c.urlValidate != nil {
		if err := c.urlValidate(full); err != nil {
			return promise.RejectedWith[*Response](err)
		}
	}

	hdr, err := c.mergedHeaders(headers, body != nil)
	if err != nil {
		return promise.RejectedWith[*Response](&ClientError{Kind: InvalidInputKind, Message: "invalid header", Cause: err, Method: method, URL: rawURL})
	}
	encoded, err := formatParams(body, hdr)
	if err != nil {
		return promise.RejectedWith[*Response](&ClientError{Kind: InvalidInputKind, Message: "failed to format request body", Cause: err, Method: method, URL: rawURL})
	}

	req := &Request{
		Method:  method,
		URL:     full,
		Header:  hdr,
		Body:    encoded,
		Timeout: c.options.ConnectTimeout + c.options.ReadTimeout,
		Ctx:     ctx,
	}

	next := chain(c.middlewares, func(r *Request) *promise.Promise[*Response] {
		return c.eng.Submit(r).Catch(func(err error) (*Response, error) {
			return nil, translateEngineError(err)
		})
	})
	return c.instrument(req, next)
}

// translateEngineError wraps the dispatch engine's own rejection reasons,
// and anything else a promise in the chain might reject with, into the
// public *ClientError taxonomy, so errorKindOf/IsTransient can dispatch on
// them the same way they do every other velox failure. A *ClientError
// that already reached here (from a middleware) passes through unchanged.
func translateEngineError(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return err
	}

	var tf *engine.TransportFailure
	if errors.As(err, &tf) {
		return &ClientError{
			Kind:    TransportKind,
			Message: "transport failure",
			Cause:   tf.Cause,
			Method:  tf.Method,
			URL:     tf.URL,
			Attempt: tf.Attempt,
		}
	}
	var sf *engine.ShutdownFailure
	if errors.As(err, &sf) {
		return &ClientError{
			Kind:    ShutdownKind,
			Message: "client closed before the request was admitted",
			Method:  sf.Method,
			URL:     sf.URL,
		}
	}
	var agg *promise.AggregateError
	if errors.As(err, &agg) {
		return &ClientError{
			Kind:    AggregateKind,
			Message: "every concurrent request failed",
			Cause:   agg,
		}
	}
	return &ClientError{Kind: RejectionKind, Message: "request rejected", Cause: err}
}

// instrument wraps the middleware chain with metrics and debug logging. It
// is not itself a Middleware so it always runs outermost, regardless of
// what WithMiddleware installs.
func (c *Client) instrument(req *Request, next Next) *promise.Promise[*Response] {
	endpoint := endpointFromRequest(req)
	start := time.Now()

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
	}
	if c.debugEnabled() && c.debug.LogRequests {
		c.logger.Debug("request started", "method", req.Method, "url", req.URL)
	}

	return next(req).Then(func(resp *Response) (*Response, error) {
		c.finishInstrumentation(req, endpoint, start, resp.StatusCode, nil)
		return resp, nil
	}, func(err error) (*Response, error) {
		c.finishInstrumentation(req, endpoint, start, 0, err)
		return nil, err
	})
}

func (c *Client) finishInstrumentation(req *Request, endpoint string, start time.Time, statusCode int, err error) {
	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordRequestEnd(req.Method, endpoint)
		c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)
		if err != nil {
			c.metrics.RecordError(errorKindOf(err), req.Method, endpoint)
		}
	}
	if c.debugEnabled() && c.debug.LogRequests {
		if err != nil {
			c.logger.Warn("request failed", "method", req.Method, "url", req.URL, "duration", duration, "error", err)
		} else {
			c.logger.Debug("request completed", "method", req.Method, "url", req.URL, "status", statusCode, "duration", duration)
		}
	}
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

func errorKindOf(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return "unknown"
}

func (c *Client) mergedHeaders(perRequest map[string]string, hasBody bool) (http.Header, error) {
	defaults := make(http.Header, len(c.options.DefaultHeaders))
	for k, v := range c.options.DefaultHeaders {
		defaults.Set(k, v)
	}
	if c.options.UserAgent != "" && defaults.Get("User-Agent") == "" {
		defaults.Set("User-Agent", c.options.UserAgent)
	}

	perHeader := make(http.Header, len(perRequest))
	for k, v := range perRequest {
		perHeader.Set(k, v)
	}

	merged, err := sanitizeHeaders(mergeHeaders(defaults, perHeader))
	if err != nil {
		return nil, err
	}
	if merged.Get("Content-Type") == "" {
		if ct := getContentType(merged, hasBody); ct != "" {
			merged.Set("Content-Type", ct)
		}
	}
	return merged, nil
}

// Get, Post, Put, Patch, Delete, Head, Options are thin specializations of
// request for the corresponding HTTP method.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, params map[string]string) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodGet, rawURL, headers, nil, params)
}

func (c *Client) Post(ctx context.Context, rawURL string, headers map[string]string, body any) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodPost, rawURL, headers, body, nil)
}

func (c *Client) Put(ctx context.Context, rawURL string, headers map[string]string, body any) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodPut, rawURL, headers, body, nil)
}

func (c *Client) Patch(ctx context.Context, rawURL string, headers map[string]string, body any) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodPatch, rawURL, headers, body, nil)
}

func (c *Client) Delete(ctx context.Context, rawURL string, headers map[string]string, params map[string]string) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodDelete, rawURL, headers, nil, params)
}

func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string, params map[string]string) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodHead, rawURL, headers, nil, params)
}

func (c *Client) OptionsRequest(ctx context.Context, rawURL string, headers map[string]string) *promise.Promise[*Response] {
	return c.request(ctx, http.MethodOptions, rawURL, headers, nil, nil)
}

// Json is request with a JSON content-type preset; data is marshaled by
// formatParams, so callers pass a Go value (struct, map, slice, or an
// already-encoded []byte/string) rather than pre-marshaling it themselves.
func (c *Client) Json(ctx context.Context, method, rawURL string, data any, headers map[string]string) *promise.Promise[*Response] {
	hdr := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		hdr[k] = v
	}
	hdr["Content-Type"] = "application/json"
	return c.request(ctx, method, rawURL, hdr, data, nil)
}

// Tick drives the dispatch engine one non-blocking step: admits due queued
// requests, drains ready completions. Callers embedding velox in their own
// event loop call this instead of Wait.
func (c *Client) Tick() { c.eng.Tick() }

// Wait blocks until no request is active or queued, or timeout elapses
// (timeout <= 0 waits indefinitely). It does not reject outstanding
// promises on timeout; call HasPending afterward to check.
func (c *Client) Wait(timeout time.Duration) { c.eng.Wait(timeout) }

// HasPending reports whether any request is active or queued.
func (c *Client) HasPending() bool { return c.eng.HasPending() }

// PendingCount, QueuedCount report the active and queued request counts.
func (c *Client) PendingCount() int { return c.eng.PendingCount() }
func (c *Client) QueuedCount() int  { return c.eng.QueuedCount() }

// Snapshot returns the metrics aggregate view, or a zero Snapshot if
// metrics were never enabled.
func (c *Client) Snapshot() Snapshot {
	return c.metrics.Snapshot(c.PendingCount(), c.QueuedCount())
}

// Close rejects every request still queued (not yet admitted) with a
// ShutdownKind error and releases pooled connection handles. Requests
// already in flight are left to finish; call Wait afterward to drain them.
func (c *Client) Close() error {
	if err := c.eng.Close(); err != nil {
		return err
	}
	return c.pool.Close()
}

// Concurrent takes a map of caller-chosen keys to already-issued request
// promises and builds a mapping key -> promise the way spec's concurrent
// does, returning a promise that fulfills with a map of the same keys to
// their responses once every request has settled successfully, or rejects
// on the first failure (see promise.All). The result carries whichever
// engine tick backs the input promises, so Wait on it still advances that
// engine.
func Concurrent[K comparable](reqs map[K]*promise.Promise[*Response]) *promise.Promise[map[K]*Response] {
	keys := make([]K, 0, len(reqs))
	ps := make([]*promise.Promise[*Response], 0, len(reqs))
	for k, p := range reqs {
		keys = append(keys, k)
		ps = append(ps, p)
	}
	return promise.Map(promise.All(ps), func(results []*Response) (map[K]*Response, error) {
		out := make(map[K]*Response, len(results))
		for i, r := range results {
			out[keys[i]] = r
		}
		return out, nil
	})
}

// RaceRequests takes a map of caller-chosen keys to already-issued request
// promises and settles with whichever one settles first, the same way
// spec's race is defined in terms of Promise.race (key correlation isn't
// needed on the winning side, since only one result survives).
func RaceRequests[K comparable](reqs map[K]*promise.Promise[*Response]) *promise.Promise[*Response] {
	ps := make([]*promise.Promise[*Response], 0, len(reqs))
	for _, p := range reqs {
		ps = append(ps, p)
	}
	return promise.Race(ps)
}

func endpointFromRequest(req *Request) string {
	return endpointOf(req.Method, req.URL)
}
