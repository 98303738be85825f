package callback

import (
	"strings"

	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
)

var defaultAliases = map[domain.CanonicalStatus][]string{
	domain.CanonicalPaid:      {"PAID", "SUCCESS", "SUCCEEDED", "COMPLETED", "DONE", "SETTLED", "00"},
	domain.CanonicalCancelled: {"CANCELLED", "CANCELED", "CANCEL", "USER_CANCEL"},
	domain.CanonicalExpired:   {"EXPIRED", "TIMEOUT"},
	domain.CanonicalFailed:    {"FAILED", "FAILURE", "ERROR", "DECLINED", "REJECTED"},
}

// StatusTable maps vendor status strings onto canonical statuses. Extra
// aliases are read from the settlement config on every lookup so reloads
// apply without a restart.
type StatusTable struct {
	settings *config.SettlementConfigHolder
	defaults map[string]domain.CanonicalStatus
}

func NewStatusTable(settings *config.SettlementConfigHolder) *StatusTable {
	defaults := make(map[string]domain.CanonicalStatus)
	for canonical, aliases := range defaultAliases {
		for _, alias := range aliases {
			defaults[alias] = canonical
		}
	}
	return &StatusTable{settings: settings, defaults: defaults}
}

// Canonical returns the canonical status for raw, or "" when unmapped.
func (t *StatusTable) Canonical(raw string) domain.CanonicalStatus {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if t == nil {
		t = NewStatusTable(nil)
	}
	if canonical, ok := t.defaults[key]; ok {
		return canonical
	}
	for status, aliases := range t.settings.Get().StatusAliases {
		for _, alias := range aliases {
			if alias == key {
				return domain.CanonicalStatus(strings.ToUpper(status))
			}
		}
	}
	return ""
}
