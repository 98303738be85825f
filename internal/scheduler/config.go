package scheduler

import (
	"time"

	"github.com/smallbiznis/paysettle/internal/config"
)

// Config controls the sweep interval and batch size.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Minute,
		StaleAfter:  5 * time.Minute,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Reconcile.Enabled,
		RunInterval: cfg.Reconcile.Interval,
		StaleAfter:  cfg.Reconcile.StaleAfter,
		BatchSize:   cfg.Reconcile.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
