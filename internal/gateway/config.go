package gateway

import (
	"strings"
	"time"

	"github.com/smallbiznis/paysettle/internal/config"
)

const defaultTimeout = 12 * time.Second

// Config carries the credentials and callback urls the client signs requests with.
type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	ReturnURL   string
	CancelURL   string
	Timeout     time.Duration
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		BaseURL:     cfg.Gateway.BaseURL,
		ClientID:    cfg.Gateway.ClientID,
		APIKey:      cfg.Gateway.APIKey,
		ChecksumKey: cfg.Gateway.ChecksumKey,
		ReturnURL:   cfg.Gateway.ReturnURL,
		CancelURL:   cfg.Gateway.CancelURL,
		Timeout:     cfg.Gateway.Timeout,
	}
}

// Configured reports whether any credential is present. A client without
// credentials serves mock checkout links.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" ||
		strings.TrimSpace(c.APIKey) != "" ||
		strings.TrimSpace(c.ChecksumKey) != ""
}
