package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records inbound request latency per route.
type HTTPMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
}

func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	meter := provider.Meter("paysettle/http")
	duration, err := meter.Float64Histogram("paysettle_http_request_duration_seconds",
		metric.WithUnit("s"),
		metric.WithDescription("Inbound HTTP request latency"))
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter("paysettle_http_requests_total")
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{duration: duration, requests: requests}, nil
}

// GinMiddleware records one observation per request. A nil receiver is a no-op.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		attrs := metric.WithAttributes(FilterAttributes(
			attribute.String("route", route),
			attribute.String("method", c.Request.Method),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)...)
		ctx := c.Request.Context()
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requests.Add(ctx, 1, attrs)
	}
}
