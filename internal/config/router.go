package config

// ProviderId is a tagged variant over the six supported providers.
type ProviderId string

const (
	ProviderAuto ProviderId = "auto"
	P1           ProviderId = "p1"
	P2           ProviderId = "p2"
	P3           ProviderId = "p3"
	P4           ProviderId = "p4"
	P5           ProviderId = "p5"
	P6           ProviderId = "p6"
)

// AllProviders lists every known ProviderId, in priority order when nothing
// else breaks a tie.
var AllProviders = []ProviderId{P1, P2, P3, P4, P5, P6}

func isKnownProvider(p ProviderId) bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// RouteMode selects whether a provider entry auto-picks its model or is
// pinned to one.
type RouteMode string

const (
	ModeAuto  RouteMode = "auto"
	ModeFixed RouteMode = "fixed"
)

// ProviderRouteConfig is the per-provider slice of RouterConfig.
type ProviderRouteConfig struct {
	Mode         RouteMode `json:"mode"`
	FixedModelId string    `json:"fixedModelId,omitempty"`
}

// SelectedOverride forces routing to one provider regardless of auto-order.
type SelectedOverride struct {
	Enabled      bool       `json:"enabled"`
	Provider     ProviderId `json:"provider,omitempty"`
	Mode         RouteMode  `json:"mode"`
	FixedModelId string     `json:"fixedModelId,omitempty"`
}

// LastUsed records the most recent successful (provider, model) pair.
type LastUsed struct {
	Provider ProviderId `json:"provider,omitempty"`
	ModelId  string     `json:"modelId,omitempty"`
}

// RouterConfig is the persistent routing configuration (ai-router.json).
type RouterConfig struct {
	DefaultProvider  ProviderId                     `json:"defaultProvider"`
	Providers        map[ProviderId]ProviderRouteConfig `json:"providers"`
	SelectedOverride SelectedOverride               `json:"selectedOverride"`
	LastUsed         LastUsed                       `json:"lastUsed"`
}

// DefaultRouterConfig returns a fresh, already-normalized RouterConfig.
func DefaultRouterConfig() *RouterConfig {
	c := &RouterConfig{
		DefaultProvider: ProviderAuto,
		Providers:       map[ProviderId]ProviderRouteConfig{},
	}
	c.Normalize()
	return c
}

// Normalize is idempotent: unknown providers collapse to auto, nil maps are
// allocated, and every known provider gets a map entry defaulted to auto mode.
// Calling Normalize twice yields the same result as calling it once.
func (c *RouterConfig) Normalize() {
	if c.Providers == nil {
		c.Providers = map[ProviderId]ProviderRouteConfig{}
	}
	if c.DefaultProvider != ProviderAuto && !isKnownProvider(c.DefaultProvider) {
		c.DefaultProvider = ProviderAuto
	}
	for _, p := range AllProviders {
		entry, ok := c.Providers[p]
		if !ok {
			entry = ProviderRouteConfig{Mode: ModeAuto}
		}
		if entry.Mode != ModeAuto && entry.Mode != ModeFixed {
			entry.Mode = ModeAuto
		}
		if entry.Mode == ModeAuto {
			entry.FixedModelId = ""
		}
		c.Providers[p] = entry
	}
	// Drop entries for unknown/legacy provider ids.
	for p := range c.Providers {
		if !isKnownProvider(p) {
			delete(c.Providers, p)
		}
	}
	if c.SelectedOverride.Enabled && !isKnownProvider(c.SelectedOverride.Provider) {
		c.SelectedOverride = SelectedOverride{}
	}
	if c.SelectedOverride.Mode != ModeAuto && c.SelectedOverride.Mode != ModeFixed {
		c.SelectedOverride.Mode = ModeAuto
	}
	if c.LastUsed.Provider != "" && !isKnownProvider(c.LastUsed.Provider) {
		c.LastUsed = LastUsed{}
	}
}
