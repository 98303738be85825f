package config

import "testing"

func TestValidateSettlementConfigRejectsUnknownStatus(t *testing.T) {
	cfg := SettlementConfig{StatusAliases: map[string][]string{"refunded": {"RF"}}}
	if err := validateSettlementConfig(cfg); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestValidateSettlementConfigRejectsEmptyAlias(t *testing.T) {
	cfg := SettlementConfig{StatusAliases: map[string][]string{"paid": {" "}}}
	if err := validateSettlementConfig(cfg); err == nil {
		t.Fatalf("expected empty alias to be rejected")
	}
}

func TestStaticHolderNormalizesAliases(t *testing.T) {
	holder := NewStaticSettlementConfigHolder(SettlementConfig{
		StatusAliases: map[string][]string{"Paid": {" captured "}},
	})

	got := holder.Get().StatusAliases["paid"]
	if len(got) != 1 || got[0] != "CAPTURED" {
		t.Fatalf("expected normalized alias CAPTURED, got %v", got)
	}
}

func TestNilHolderReturnsDefaults(t *testing.T) {
	var holder *SettlementConfigHolder
	if holder.Get().RequireSignature {
		t.Fatalf("expected default config to not require signatures")
	}
}
