package router

import (
	"testing"

	"github.com/switchboard-cli/switchboard/internal/config"
)

func TestBuildAutoOrderDomainKeywords(t *testing.T) {
	order := BuildAutoOrder("please review this architecture design doc")
	if order[0] != config.P5 {
		t.Fatalf("expected design keyword to prioritize P5 first, got %v", order)
	}

	order = BuildAutoOrder("can you help benchmark this research paper")
	if order[0] != config.P1 {
		t.Fatalf("expected research keyword to prioritize P1 first, got %v", order)
	}

	order = BuildAutoOrder("fix this bug in the function")
	if order[0] != config.P6 {
		t.Fatalf("expected coding keyword to prioritize P6 first, got %v", order)
	}

	order = BuildAutoOrder("what's the weather like today")
	if order[0] != config.P3 {
		t.Fatalf("expected balanced default to lead with P3, got %v", order)
	}
}

func TestCooldownMapSetExpireClear(t *testing.T) {
	cd := newCooldownMap()
	cd.set(config.P1, 1000)
	if !cd.isCooling(config.P1, 500) {
		t.Fatal("expected P1 to be cooling before the cooldown timestamp")
	}
	if cd.isCooling(config.P1, 1500) {
		t.Fatal("expected cooldown to expire after its timestamp")
	}
	cd.clear(config.P1)
	if cd.isCooling(config.P1, 500) {
		t.Fatal("expected clear to remove the cooldown entry")
	}
}

func TestResolveOrderPrefersOverrideThenDefaultThenAuto(t *testing.T) {
	r := &Router{}

	cfg := config.RouterConfig{
		DefaultProvider: config.ProviderAuto,
		SelectedOverride: config.SelectedOverride{
			Enabled:  true,
			Provider: config.P4,
		},
	}
	order := r.resolveOrder("anything", cfg)
	if len(order) != 1 || order[0] != config.P4 {
		t.Fatalf("expected override to win, got %v", order)
	}

	cfg = config.RouterConfig{DefaultProvider: config.P2}
	order = r.resolveOrder("anything", cfg)
	if len(order) != 1 || order[0] != config.P2 {
		t.Fatalf("expected defaultProvider to win when no override, got %v", order)
	}

	cfg = config.RouterConfig{DefaultProvider: config.ProviderAuto}
	order = r.resolveOrder("fix this bug", cfg)
	if order[0] != config.P6 {
		t.Fatalf("expected autoOrder fallback, got %v", order)
	}
}
