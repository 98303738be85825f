package observability

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/smallbiznis/paysettle/internal/config"
)

// Config is the resolved telemetry setup shared by the logger, tracer and
// meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// telemetryEnv uses the standard OTEL_* names so collectors configured for
// other services work unchanged.
type telemetryEnv struct {
	Environment    string  `envconfig:"DEPLOYMENT_ENV"`
	Version        string  `envconfig:"SERVICE_VERSION"`
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string  `envconfig:"LOG_FORMAT" default:"json"`
	Enabled        string  `envconfig:"OTEL_ENABLED"`
	Endpoint       string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol       string  `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	TracesProtocol string  `envconfig:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	SamplingRatio  float64 `envconfig:"OTEL_SAMPLING_RATIO" default:"0.1"`
}

// LoadConfig overlays the telemetry environment on the application config.
// Export is on by default in production only.
func LoadConfig(cfg config.Config) (Config, error) {
	var env telemetryEnv
	if err := envconfig.Process("", &env); err != nil {
		return Config{}, err
	}

	enabled := cfg.IsProduction()
	if raw := strings.TrimSpace(env.Enabled); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("OTEL_ENABLED: %w", err)
		}
		enabled = parsed
	}

	protocol := env.Protocol
	if strings.TrimSpace(env.TracesProtocol) != "" {
		protocol = env.TracesProtocol
	}
	ratio := env.SamplingRatio
	if ratio < 0 || ratio > 1 {
		return Config{}, fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", ratio)
	}

	return Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "paysettle"),
		Environment:          firstNonEmpty(env.Environment, cfg.Environment),
		Version:              firstNonEmpty(env.Version, cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(env.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(env.LogFormat)),
		OtelEnabled:          enabled,
		OtelExporterEndpoint: firstNonEmpty(env.Endpoint, cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio:    ratio,
	}, nil
}

// Debug turns on development logging for debug level or a local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
