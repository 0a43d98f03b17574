package velox

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arisudev/velox/promise"
)

// TracingMiddleware starts a span around every request using tracer,
// injecting the active trace context into the outbound headers so a
// downstream service can continue the trace. A nil tracer falls back to a
// no-op tracer, making the middleware safe to install unconditionally.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("velox")
	}

	return func(req *Request, next Next) *promise.Promise[*Response] {
		ctx := req.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := tracer.Start(ctx, "velox.request")
		span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
		)

		if req.Header == nil {
			req.Header = make(map[string][]string)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
		req.Ctx = ctx

		return next(req).Then(func(resp *Response) (*Response, error) {
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
			if resp.StatusCode >= 500 {
				span.SetStatus(codes.Error, "server error")
			}
			span.End()
			return resp, nil
		}, func(err error) (*Response, error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		})
	}
}
