package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes settlement instruments.
type Metrics struct {
	transitions      metric.Int64Counter
	webhookRejected  metric.Int64Counter
	checkoutLinks    metric.Int64Counter
	dependentSync    metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	reconciled       metric.Int64Counter
	jobDuration      metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the settlement instruments on provider, falling back to the
// global meter provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("paysettle/" + strings.TrimSpace(cfg.ServiceName))

	m := &Metrics{}
	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
	}{
		{&m.transitions, "paysettle_settlement_transitions_total", "Settlement attempts by entry point and outcome"},
		{&m.webhookRejected, "paysettle_webhook_rejected_total", "Webhook deliveries rejected before a transition"},
		{&m.checkoutLinks, "paysettle_checkout_links_total", "Checkout links issued by mode"},
		{&m.dependentSync, "paysettle_dependent_sync_failures_total", "Failed dependent aggregate updates after settlement"},
		{&m.rateLimitAllowed, "paysettle_rate_limit_allowed_total", "Requests admitted by the per-client limiter"},
		{&m.rateLimitDenied, "paysettle_rate_limit_denied_total", "Requests rejected by the per-client limiter"},
		{&m.reconciled, "paysettle_reconciliations_total", "Pending payments polled by the reconciliation sweep"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		*c.dst = counter
	}

	jobDuration, err := meter.Float64Histogram("paysettle_scheduler_job_duration_seconds",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of one scheduler job run"))
	if err != nil {
		return nil, err
	}
	m.jobDuration = jobDuration
	return m, nil
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordTransition counts a settlement attempt. outcome is applied, replayed or noop.
func (m *Metrics) RecordTransition(ctx context.Context, source, status, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.transitions, label("source", source), label("status", status), label("outcome", outcome))
}

func (m *Metrics) RecordWebhookRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.webhookRejected, label("reason", reason))
}

func (m *Metrics) RecordCheckoutLink(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	add(ctx, m.checkoutLinks, label("mode", mode))
}

func (m *Metrics) RecordDependentSyncFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	add(ctx, m.dependentSync, label("kind", kind))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitAllowed, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

// RecordReconciliation counts one payment polled by the sweep. outcome is
// applied, unchanged, skipped or error.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.reconciled, label("outcome", outcome))
}

func (m *Metrics) ObserveJobDuration(ctx context.Context, job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(FilterAttributes(label("job", job))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"route":       {},
	"method":      {},
	"status_code": {},
	"source":      {},
	"status":      {},
	"outcome":     {},
	"reason":      {},
	"mode":        {},
	"kind":        {},
	"job":         {},
}

// FilterAttributes keeps only the bounded label keys above. Order codes and
// client addresses never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
