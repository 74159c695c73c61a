// Package router builds the per-prompt candidate list and drives adapters
// through cooldown-aware, scheduler-ordered failover.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/provider"
	"github.com/switchboard-cli/switchboard/internal/scheduler"
	"github.com/switchboard-cli/switchboard/internal/telemetry"
)

// CredentialResolver is the router's external collaborator seam for
// credential storage (menu-driven credential UIs are explicitly out of
// scope for this spec): it only needs to hand back a resolved handle.
type CredentialResolver interface {
	Resolve(id config.ProviderId) (provider.Credential, bool)
}

// EndpointResolver supplies the generative adapter's multi-endpoint fallback
// list (user-selected/daily/prod), itself sourced from configuration.
type EndpointResolver interface {
	EndpointsFor(cred provider.Credential) []string
}

const cooldownDuration = 2 * time.Minute

var fallbackWorthy = regexp.MustCompile(`(?i)rate limit|quota|context length|429|overloaded|temporarily unavailable|model not available`)

// domainKeywordPriority is the domain-keyword → provider-priority table used
// to build autoOrder. Checked in order; the first matching domain wins.
var domainKeywordPriority = []struct {
	pattern  *regexp.Regexp
	priority []config.ProviderId
}{
	{regexp.MustCompile(`(?i)\b(design|ui|ux|logo|diagram)\b`), []config.ProviderId{config.P5, config.P6, config.P3, config.P1, config.P2, config.P4}},
	{regexp.MustCompile(`(?i)\b(research|paper|cite|benchmark|survey)\b`), []config.ProviderId{config.P1, config.P3, config.P4, config.P5, config.P6, config.P2}},
	{regexp.MustCompile(`(?i)\b(code|bug|function|refactor|compile|stack trace)\b`), []config.ProviderId{config.P6, config.P3, config.P1, config.P4, config.P5, config.P2}},
}

var balancedDefault = []config.ProviderId{config.P3, config.P1, config.P5, config.P4, config.P2, config.P6}

// BuildAutoOrder implements §4.5 step 1.
func BuildAutoOrder(prompt string) []config.ProviderId {
	for _, entry := range domainKeywordPriority {
		if entry.pattern.MatchString(prompt) {
			return entry.priority
		}
	}
	return balancedDefault
}

// cooldownMap is the concurrent provider→unixMs cooldown tracker. Writer
// wins: a concurrent clear and set race to the same key leave whichever
// write landed last, which is acceptable since cooldown is advisory only.
type cooldownMap struct {
	mu    sync.RWMutex
	until map[config.ProviderId]int64
}

func newCooldownMap() *cooldownMap {
	return &cooldownMap{until: map[config.ProviderId]int64{}}
}

func (c *cooldownMap) set(id config.ProviderId, untilMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[id] = untilMs
}

func (c *cooldownMap) clear(id config.ProviderId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, id)
}

func (c *cooldownMap) isCooling(id config.ProviderId, nowMs int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	until, ok := c.until[id]
	return ok && until > nowMs
}

// ActivityReporter narrates "<ProviderName>: <modelName>" live activity as
// the router iterates candidates; the TUI/messenger layer implements this.
type ActivityReporter interface {
	StartActivity(actor string)
}

type noopActivity struct{}

func (noopActivity) StartActivity(string) {}

// Router builds candidate lists and drives failover.
type Router struct {
	routerStore    *config.Store[config.RouterConfig, *config.RouterConfig]
	schedulerStore *config.Store[config.SchedulerConfig, *config.SchedulerConfig]
	credentials    CredentialResolver
	endpoints      EndpointResolver
	telemetry      *telemetry.Store
	homeDir        string
	cooldown       *cooldownMap
}

func New(
	routerStore *config.Store[config.RouterConfig, *config.RouterConfig],
	schedulerStore *config.Store[config.SchedulerConfig, *config.SchedulerConfig],
	credentials CredentialResolver,
	endpoints EndpointResolver,
	telemetryStore *telemetry.Store,
	homeDir string,
) *Router {
	return &Router{
		routerStore:    routerStore,
		schedulerStore: schedulerStore,
		credentials:    credentials,
		endpoints:      endpoints,
		telemetry:      telemetryStore,
		homeDir:        homeDir,
		cooldown:       newCooldownMap(),
	}
}

// AuthError is surfaced when no candidate resolves a credential.
type AuthError struct{}

func (AuthError) Error() string { return "No authenticated provider" }

// Result is what Route returns once a candidate has produced a full answer.
type Result struct {
	Provider config.ProviderId
	Model    string
	Text     string
	Usage    provider.Usage
}

// Route implements §4.5: build the candidate list, order it, and iterate
// candidates with streaming deltas forwarded to onDelta until one succeeds.
// opts is forwarded to each candidate's Invoke call (e.g. a low MaxTokens
// cap for the TODO orchestrator's planning request).
func (r *Router) Route(ctx context.Context, prompt string, opts provider.InvokeOptions, activity ActivityReporter, onDelta func(delta string)) (Result, error) {
	if activity == nil {
		activity = noopActivity{}
	}

	routerCfg := r.routerStore.Get()
	schedulerCfg := r.schedulerStore.Get()

	order := r.resolveOrder(prompt, routerCfg)

	candidates := r.resolveCandidates(order, routerCfg)
	if len(candidates) == 0 {
		return Result{}, AuthError{}
	}

	candidates = r.moveCoolingToTail(candidates)
	candidates = scheduler.Reorder(candidates, prompt, schedulerCfg)

	var lastErr error
	for _, cand := range candidates {
		pid := config.ProviderId(cand.ProviderId)
		activity.StartActivity(providerActor(cand))

		start := time.Now()
		text, usage, err := cand.Adapter.Invoke(ctx, cand.Credential, cand.Model, prompt, opts, onDelta)
		latency := time.Since(start).Milliseconds()

		cost := scheduler.EstimateCost(pid, usage)
		_ = r.telemetry.RecordTelemetry(telemetry.Entry{
			At:               telemetry.NowMillis(),
			Provider:         string(pid),
			Model:            cand.Model,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			EstUsdCost:       cost,
			LatencyMs:        latency,
			Success:          err == nil,
		})

		if err == nil {
			r.cooldown.clear(pid)
			r.persistLastUsed(pid, cand.Model)
			return Result{Provider: pid, Model: cand.Model, Text: text, Usage: usage}, nil
		}

		lastErr = err
		autoRouting := !routerCfg.SelectedOverride.Enabled && routerCfg.DefaultProvider == config.ProviderAuto
		if fallbackWorthy.MatchString(err.Error()) || autoRouting {
			r.cooldown.set(pid, time.Now().Add(cooldownDuration).UnixMilli())
			continue
		}
		return Result{}, err
	}

	return Result{}, lastErr
}

func providerActor(cand provider.RouteCandidate) string {
	return fmt.Sprintf("%s: %s", strings.ToUpper(cand.ProviderId), cand.Model)
}

// resolveOrder implements §4.5 step 2.
func (r *Router) resolveOrder(prompt string, cfg config.RouterConfig) []config.ProviderId {
	if cfg.SelectedOverride.Enabled {
		return []config.ProviderId{cfg.SelectedOverride.Provider}
	}
	if cfg.DefaultProvider != config.ProviderAuto {
		return []config.ProviderId{cfg.DefaultProvider}
	}
	return BuildAutoOrder(prompt)
}

// resolveCandidates implements §4.5 step 3: resolve credentials and models,
// dropping unresolvable entries (no candidate is ever lost silently —
// callers see AuthError only when the whole list comes back empty).
func (r *Router) resolveCandidates(order []config.ProviderId, cfg config.RouterConfig) []provider.RouteCandidate {
	var out []provider.RouteCandidate
	for _, id := range order {
		cred, ok := r.credentials.Resolve(id)
		if !ok || cred.Expired() {
			continue
		}
		model := r.resolveModel(id, cfg)
		if model == "" {
			continue
		}
		adapter := provider.NewAdapter(id, r.homeDir, r.endpoints.EndpointsFor)
		out = append(out, provider.RouteCandidate{
			ProviderId: string(id),
			Model:      model,
			Credential: cred,
			BaseUrl:    adapter.ResolveBaseUrl(cred),
			Adapter:    adapter,
		})
	}
	return out
}

func (r *Router) resolveModel(id config.ProviderId, cfg config.RouterConfig) string {
	if cfg.SelectedOverride.Enabled && cfg.SelectedOverride.Provider == id && cfg.SelectedOverride.Mode == config.ModeFixed {
		return cfg.SelectedOverride.FixedModelId
	}
	if entry, ok := cfg.Providers[id]; ok && entry.Mode == config.ModeFixed && entry.FixedModelId != "" {
		return entry.FixedModelId
	}
	models := provider.StaticModels[id]
	if len(models) == 0 {
		return ""
	}
	return models[0].ID
}

// moveCoolingToTail implements §4.5 step 4: stable partition, cooling
// candidates last, relative order preserved within each partition.
func (r *Router) moveCoolingToTail(candidates []provider.RouteCandidate) []provider.RouteCandidate {
	nowMs := time.Now().UnixMilli()
	var fresh, cooling []provider.RouteCandidate
	for _, c := range candidates {
		if r.cooldown.isCooling(config.ProviderId(c.ProviderId), nowMs) {
			cooling = append(cooling, c)
		} else {
			fresh = append(fresh, c)
		}
	}
	return append(fresh, cooling...)
}

func (r *Router) persistLastUsed(id config.ProviderId, model string) {
	_ = r.routerStore.Update(func(c *config.RouterConfig) {
		c.LastUsed = config.LastUsed{Provider: id, ModelId: model}
	})
}
