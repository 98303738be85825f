package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "webhook"),
		attribute.String("order_code", "100001"),
		attribute.String("status", "paid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_code" {
			t.Fatalf("expected order_code to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTransition(ctx, "webhook", "paid", "applied")
	m.RecordWebhookRejected(ctx, "signature")
	m.RecordCheckoutLink(ctx, "mock")
	m.RecordDependentSyncFailure(ctx, "competition")
	m.RecordRateLimitAllowed(ctx, "sync")
	m.RecordRateLimitDenied(ctx, "sync", "exhausted")
	m.RecordReconciliation(ctx, "applied")
	m.ObserveJobDuration(ctx, "reconcile_pending", time.Second)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "paysettle"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordTransition(context.Background(), "resync", "paid", "noop")
}

func TestHTTPMiddlewareRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	httpMetrics, err := NewHTTPMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestReconciliationCountsByOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "paysettle"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordReconciliation(ctx, "applied")
	m.RecordReconciliation(ctx, "applied")
	m.RecordReconciliation(ctx, "skipped")
	m.ObserveJobDuration(ctx, "reconcile_pending", 2*time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	counts := map[string]int64{}
	var jobLabelled bool
	for _, scope := range rm.ScopeMetrics {
		for _, instrument := range scope.Metrics {
			switch data := instrument.Data.(type) {
			case metricdata.Sum[int64]:
				if instrument.Name != "paysettle_reconciliations_total" {
					continue
				}
				for _, point := range data.DataPoints {
					outcome, _ := point.Attributes.Value("outcome")
					counts[outcome.AsString()] += point.Value
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					if job, ok := point.Attributes.Value("job"); ok && job.AsString() == "reconcile_pending" {
						jobLabelled = true
					}
				}
			}
		}
	}
	if counts["applied"] != 2 || counts["skipped"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if !jobLabelled {
		t.Fatalf("expected job duration to keep the job label")
	}
}
