package provider

import (
	"strings"

	"github.com/switchboard-cli/switchboard/internal/config"
)

// PricePer1k is the cost-per-1k-tokens constant each ProviderId carries,
// per the Data Model's ProviderId tagged variant.
var PricePer1k = map[config.ProviderId]float64{
	config.P1: 0.50,
	config.P2: 0.15,
	config.P3: 3.00,
	config.P4: 3.00,
	config.P5: 1.25,
	config.P6: 0.0,
}

// BaseQuality is the scheduler's base_quality(provider) term.
var BaseQuality = map[config.ProviderId]float64{
	config.P1: 0.55,
	config.P2: 0.45,
	config.P3: 0.80,
	config.P4: 0.85,
	config.P5: 0.70,
	config.P6: 0.60,
}

// ProviderKindOf maps a ProviderId to its wire-protocol Kind.
var ProviderKindOf = map[config.ProviderId]Kind{
	config.P1: KindOAICompat,
	config.P2: KindOAICompat,
	config.P3: KindOAICompat,
	config.P6: KindOAICompat,
	config.P4: KindMessages,
	config.P5: KindGenerative,
}

// ProviderName is a short human label used in live-activity actor strings.
var ProviderName = map[config.ProviderId]string{
	config.P1: "P1",
	config.P2: "P2",
	config.P3: "P3",
	config.P4: "P4",
	config.P5: "P5",
	config.P6: "P6",
}

// StaticModels is the fixed model catalog each adapter serves from
// ListModels; it is built in and never refreshed from the backends. Providers in this spec are generic (P1…P6); the model
// lists are representative entries an operator's config selects from.
var StaticModels = map[config.ProviderId][]ModelDescriptor{
	config.P1: {
		{ID: "p1-fast", Name: "P1 Fast", ContextWindow: 128000, MaxTokens: 8192, InputModalities: []string{"text"}},
		{ID: "p1-large", Name: "P1 Large", ContextWindow: 128000, MaxTokens: 8192, InputModalities: []string{"text"}},
	},
	config.P2: {
		{ID: "p2-mini", Name: "P2 Mini", ContextWindow: 64000, MaxTokens: 4096, InputModalities: []string{"text"}},
	},
	config.P3: {
		{ID: "p3-sonnet", Name: "P3 Sonnet", ContextWindow: 200000, MaxTokens: 8192, InputModalities: []string{"text", "image"}},
		{ID: "p3-haiku", Name: "P3 Haiku", ContextWindow: 200000, MaxTokens: 4096, InputModalities: []string{"text"}},
	},
	config.P4: {
		{ID: "p4-messages", Name: "P4 Messages", ContextWindow: 200000, MaxTokens: 8192, InputModalities: []string{"text", "image"}},
	},
	config.P5: {
		{ID: "p5-flash", Name: "P5 Flash", ContextWindow: 1000000, MaxTokens: 8192, InputModalities: []string{"text", "image"}},
		{ID: "p5-flash-thinking", Name: "P5 Flash Thinking", ContextWindow: 1000000, MaxTokens: 8192, InputModalities: []string{"text", "image"}},
	},
	config.P6: {
		{ID: "p6-exec", Name: "P6 Exec", ContextWindow: 256000, MaxTokens: 8192, InputModalities: []string{"text"}},
	},
}

// ModelBoost is the scheduler's model_boost(name) term: a small additive
// bump for names that advertise a "pro"/"large"/flagship tier.
func ModelBoost(name string) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "large") || strings.Contains(lower, "pro") || strings.Contains(lower, "sonnet"):
		return 0.10
	case strings.Contains(lower, "mini") || strings.Contains(lower, "haiku") || strings.Contains(lower, "fast"):
		return -0.05
	default:
		return 0
	}
}

// NewAdapter constructs the Adapter for a given ProviderId. P-exec is
// resolved to the process-spawn adapter keyed on KindProcExec instead of a
// ProviderId, since it is invoked directly rather than through the
// six-provider routing table.
func NewAdapter(id config.ProviderId, homeDir string, endpointsFor func(Credential) []string) Adapter {
	kind := ProviderKindOf[id]
	models := StaticModels[id]
	switch kind {
	case KindMessages:
		return NewMessagesAdapter(models)
	case KindGenerative:
		return NewGenerativeAdapter(models, endpointsFor)
	default:
		return NewOAICompatAdapter(models)
	}
}

// NewProcExecAdapterFor builds the P-exec adapter for the TODO orchestrator
// and the system-execution pipeline path.
func NewProcExecAdapterFor(homeDir string) Adapter {
	return NewProcExecAdapter([]ModelDescriptor{
		{ID: "exec-default", Name: "Process Runtime", ContextWindow: 256000, MaxTokens: 8192, InputModalities: []string{"text"}},
	}, homeDir)
}
