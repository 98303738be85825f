package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Canonical settlement statuses accepted as keys of SettlementConfig.StatusAliases.
var canonicalStatuses = []string{"paid", "cancelled", "expired", "failed"}

// SettlementConfig is the hot-reloadable part of the settlement pipeline.
type SettlementConfig struct {
	// StatusAliases maps a canonical status to extra vendor status strings.
	StatusAliases    map[string][]string `mapstructure:"statusAliases"`
	RequireSignature bool                `mapstructure:"requireSignature"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{StatusAliases: map[string][]string{}}
}

type SettlementConfigHolder struct {
	current atomic.Value // holds SettlementConfig
}

// NewStaticSettlementConfigHolder returns a holder that never reloads.
func NewStaticSettlementConfigHolder(cfg SettlementConfig) *SettlementConfigHolder {
	holder := &SettlementConfigHolder{}
	holder.current.Store(normalizeSettlementConfig(cfg))
	return holder
}

func NewSettlementConfigHolder(base Config) (*SettlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paysettle/config")
	v.AddConfigPath("/etc/paysettle")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYSETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("settlement.requireSignature", base.Gateway.RequireSignature)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg := DefaultSettlementConfig()
	if err := v.UnmarshalKey("settlement", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SettlementConfigHolder{}
	holder.current.Store(normalizeSettlementConfig(cfg))

	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultSettlementConfig()
		if err := v.UnmarshalKey("settlement", &updated); err != nil {
			log.Printf("[settlement-config] reload failed: %v", err)
			return
		}
		if err := validateSettlementConfig(updated); err != nil {
			log.Printf("[settlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeSettlementConfig(updated))
		log.Printf("[settlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SettlementConfigHolder) Get() SettlementConfig {
	if h == nil {
		return DefaultSettlementConfig()
	}
	cfg, ok := h.current.Load().(SettlementConfig)
	if !ok {
		return DefaultSettlementConfig()
	}
	return cfg
}

func validateSettlementConfig(cfg SettlementConfig) error {
	for status, aliases := range cfg.StatusAliases {
		if !isCanonicalStatus(status) {
			return fmt.Errorf("settlement.statusAliases: unknown status %q", status)
		}
		for _, alias := range aliases {
			if strings.TrimSpace(alias) == "" {
				return errors.New("settlement.statusAliases: empty alias")
			}
		}
	}
	return nil
}

func normalizeSettlementConfig(cfg SettlementConfig) SettlementConfig {
	aliases := make(map[string][]string, len(cfg.StatusAliases))
	for status, values := range cfg.StatusAliases {
		key := strings.ToLower(strings.TrimSpace(status))
		for _, value := range values {
			aliases[key] = append(aliases[key], strings.ToUpper(strings.TrimSpace(value)))
		}
	}
	cfg.StatusAliases = aliases
	return cfg
}

func isCanonicalStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	for _, candidate := range canonicalStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}
