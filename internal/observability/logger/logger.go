package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/paysettle/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the process logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	// Sampling applies to debug and info entries only.
	SamplingInitial    int
	SamplingThereafter int
	SamplingWindow     time.Duration

	IncludeCaller       bool
	IncludeStackOnError bool
}

func (c Config) samplingOrDefault() (time.Duration, int, int) {
	window, initial, thereafter := c.SamplingWindow, c.SamplingInitial, c.SamplingThereafter
	if window <= 0 {
		window = time.Second
	}
	if initial <= 0 {
		initial = 100
	}
	if thereafter <= 0 {
		thereafter = 100
	}
	return window, initial, thereafter
}

// New builds the process logger, installs it as the zap global and syncs it
// on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(firstNonEmpty(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Development = cfg.Debug
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// zap's own sampler would also throttle warnings.
	zapCfg.Sampling = nil

	window, initial, thereafter := cfg.samplingOrDefault()
	options := []zap.Option{
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return sampleBelowWarn(core, window, initial, thereafter)
		}),
	}
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log, err := zapCfg.Build(options...)
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", firstNonEmpty(cfg.ServiceName, "paysettle")),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

// sampleBelowWarn throttles chatty debug and info entries while every
// warning and error about a payment reaches the output.
func sampleBelowWarn(core zapcore.Core, window time.Duration, initial, thereafter int) zapcore.Core {
	return zapcore.NewTee(
		zapcore.NewSamplerWithOptions(levelBand{Core: core, below: zapcore.WarnLevel, from: zapcore.DebugLevel - 1}, window, initial, thereafter),
		levelBand{Core: core, below: zapcore.FatalLevel + 1, from: zapcore.WarnLevel},
	)
}

// levelBand passes entries whose level lies in [from, below).
type levelBand struct {
	zapcore.Core
	from  zapcore.Level
	below zapcore.Level
}

func (b levelBand) Enabled(lvl zapcore.Level) bool {
	return lvl >= b.from && lvl < b.below && b.Core.Enabled(lvl)
}

func (b levelBand) With(fields []zapcore.Field) zapcore.Core {
	return levelBand{Core: b.Core.With(fields), from: b.from, below: b.below}
}

func (b levelBand) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !b.Enabled(ent.Level) {
		return ce
	}
	return b.Core.Check(ent, ce)
}

// FromContext returns the global logger tagged with the request and order
// carried by ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext tags base with the request id, the order code being settled and
// the active span.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 4)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if code := obscontext.OrderCodeFromContext(ctx); code > 0 {
		fields = append(fields, zap.Int64("order_code", code))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
