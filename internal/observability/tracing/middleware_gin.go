package tracing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paysettle/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	serverTracerName = "paysettle/http"

	AttrOrderCode    = attribute.Key("payment.order_code")
	AttrSignedBody   = attribute.Key("payment.callback_signed")
	signatureHeader  = "x-signature"
	requestIDBaggage = "request_id"
)

// GinMiddleware opens a server span per request, continuing any trace the
// caller propagated. The span is named after the matched route once the
// handlers ran, and carries the order code a handler tagged on the context.
func GinMiddleware() gin.HandlerFunc {
	return GinMiddlewareWithProvider(nil)
}

// GinMiddlewareWithProvider is GinMiddleware on an explicit provider. A nil
// provider uses the global one.
func GinMiddlewareWithProvider(tp trace.TracerProvider) gin.HandlerFunc {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(serverTracerName)

	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestIDBaggage(ctx, requestID)
			span.SetAttributes(attribute.String(requestIDBaggage, requestID))
		}
		if c.Request.Method == http.MethodPost {
			// Only presence is recorded; the signature itself never lands on a span.
			span.SetAttributes(AttrSignedBody.Bool(c.GetHeader(signatureHeader) != ""))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)
		if code := obscontext.OrderCodeFromContext(c.Request.Context()); code > 0 {
			span.SetAttributes(AttrOrderCode.Int64(code))
		}

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func withRequestIDBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember(requestIDBaggage, requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
