package events

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds NATS settings. An empty URL disables publishing.
type Config struct {
	URL           string        `envconfig:"NATS_URL" default:""`
	Name          string        `envconfig:"NATS_CLIENT_NAME" default:"paysettle"`
	Stream        string        `envconfig:"NATS_STREAM" default:"PAYSETTLE_EVENTS"`
	MaxReconnects int           `envconfig:"NATS_MAX_RECONNECTS" default:"10"`
	ReconnectWait time.Duration `envconfig:"NATS_RECONNECT_WAIT" default:"2s"`
	PublishWait   time.Duration `envconfig:"NATS_PUBLISH_TIMEOUT" default:"3s"`
	MaxAge        time.Duration `envconfig:"NATS_STREAM_MAX_AGE" default:"168h"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
