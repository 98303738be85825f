package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis   RedisConfig
	Gateway GatewayConfig
	Limits  LimitConfig

	Reconcile ReconcileConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// GatewayConfig carries the payment gateway credentials and callback urls.
type GatewayConfig struct {
	BaseURL          string
	ClientID         string
	APIKey           string
	ChecksumKey      string
	ReturnURL        string
	CancelURL        string
	Timeout          time.Duration
	RequireSignature bool
}

// ReconcileConfig drives the background sweep of stale pending payments.
type ReconcileConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type LimitConfig struct {
	CheckoutRate  float64
	CheckoutBurst int
	SyncRate      float64
	SyncBurst     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "paysettle"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paysettle"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:          strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api-merchant.payos.vn"), "/"),
			ClientID:         strings.TrimSpace(getenv("GATEWAY_CLIENT_ID", "")),
			APIKey:           strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
			ChecksumKey:      strings.TrimSpace(getenv("GATEWAY_CHECKSUM_KEY", "")),
			ReturnURL:        getenv("GATEWAY_RETURN_URL", "http://localhost:8080/payments/return"),
			CancelURL:        getenv("GATEWAY_CANCEL_URL", "http://localhost:8080/payments/cancel"),
			Timeout:          getenvDuration("GATEWAY_TIMEOUT", 12*time.Second),
			RequireSignature: getenvBool("GATEWAY_REQUIRE_SIGNATURE", false),
		},
		Limits: LimitConfig{
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 1),
			CheckoutBurst: getenvInt("RATE_LIMIT_CHECKOUT_BURST", 5),
			SyncRate:      getenvFloat("RATE_LIMIT_SYNC_RATE", 0.2),
			SyncBurst:     getenvInt("RATE_LIMIT_SYNC_BURST", 3),
		},
		Reconcile: ReconcileConfig{
			Enabled:    getenvBool("RECONCILE_ENABLED", true),
			Interval:   getenvDuration("RECONCILE_INTERVAL", time.Minute),
			StaleAfter: getenvDuration("RECONCILE_STALE_AFTER", 5*time.Minute),
			BatchSize:  getenvInt("RECONCILE_BATCH_SIZE", 50),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, value, def)
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, value, def)
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, value, def)
		return def
	}
	return parsed
}
