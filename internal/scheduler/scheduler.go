// Package scheduler scores and reorders router candidates by expected cost
// and quality, and computes the cost estimate telemetry records use.
package scheduler

import (
	"math"
	"strings"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/provider"
)

type weights struct{ cost, quality float64 }

var weightsByTarget = map[config.QualityTarget]weights{
	config.QualityEconomy:  {0.72, 0.28},
	config.QualityBalanced: {0.5, 0.5},
	config.QualityHigh:     {0.25, 0.75},
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EstimatedTokens implements estimated_tokens = max(120, ceil(len(prompt)/4)·1.4).
func EstimatedTokens(prompt string) float64 {
	base := math.Ceil(float64(len(prompt)) / 4.0)
	est := base * 1.4
	if est < 120 {
		est = 120
	}
	return est
}

// NormalizedCost implements normalized_cost = clamp(estimated_tokens·price_per_1k/0.08, 0.00125, 1.0).
func NormalizedCost(estimatedTokens, pricePer1k float64) float64 {
	return clamp(estimatedTokens*pricePer1k/0.08, 0.00125, 1.0)
}

// Complexity is the weighted signal-flag sum in [0,1] used by EffectiveQuality.
func Complexity(prompt string) float64 {
	lower := strings.ToLower(prompt)
	c := 0.25
	if containsAny(lower, "debug", "security", "architecture") {
		c += 0.2
	}
	if containsAny(lower, "system", "deploy", "incident") {
		c += 0.2
	}
	if containsAny(lower, "research", "benchmark") {
		c += 0.15
	}
	if len(prompt) > 500 {
		c += 0.1
	}
	if containsAny(lower, "image", "vision", "video") {
		c += 0.1
	}
	return clamp(c, 0, 1)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// EffectiveQuality implements effective_quality = clamp(base_quality(provider)
// + model_boost(name) − 0.12·max(0, complexity−0.6), 0, 1).
func EffectiveQuality(baseQuality, modelBoost, complexity float64) float64 {
	penalty := 0.12 * math.Max(0, complexity-0.6)
	return clamp(baseQuality+modelBoost-penalty, 0, 1)
}

// scored pairs a candidate with its ranking value: lower is better.
type scored struct {
	candidate provider.RouteCandidate
	inBudget  bool
	value     float64
	origIndex int
}

// Reorder scores and reorders candidates per the quality target's weights.
// In-budget candidates sort before out-of-budget ones; ties break by
// original order (stable). When cfg.Enabled is false, Reorder is the
// identity: the input list is returned unchanged, length and order intact.
func Reorder(candidates []provider.RouteCandidate, prompt string, cfg config.SchedulerConfig) []provider.RouteCandidate {
	if !cfg.Enabled || len(candidates) == 0 {
		out := make([]provider.RouteCandidate, len(candidates))
		copy(out, candidates)
		return out
	}

	w, ok := weightsByTarget[cfg.QualityTarget]
	if !ok {
		w = weightsByTarget[config.QualityBalanced]
	}

	estTokens := EstimatedTokens(prompt)
	complexity := Complexity(prompt)

	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		pid := config.ProviderId(c.ProviderId)
		price := provider.PricePer1k[pid]
		normCost := NormalizedCost(estTokens, price)
		quality := EffectiveQuality(provider.BaseQuality[pid], provider.ModelBoost(c.Model), complexity)

		value := w.cost*normCost + w.quality*(1-quality)

		inBudget := true
		if cfg.MaxUsdPerTask != nil {
			estCost := estTokens / 1000.0 * price
			inBudget = estCost <= *cfg.MaxUsdPerTask
		}

		scoredList[i] = scored{candidate: c, inBudget: inBudget, value: value, origIndex: i}
	}

	stableSort(scoredList)

	out := make([]provider.RouteCandidate, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.candidate
	}
	return out
}

// stableSort sorts in-budget-first, then by ascending score, preserving
// relative order for ties (a manual stable insertion sort keeps this
// intention explicit rather than relying on sort.SliceStable semantics
// across two tiers).
func stableSort(list []scored) {
	for i := 1; i < len(list); i++ {
		j := i
		for j > 0 && less(list[j], list[j-1]) {
			list[j], list[j-1] = list[j-1], list[j]
			j--
		}
	}
}

func less(a, b scored) bool {
	if a.inBudget != b.inBudget {
		return a.inBudget
	}
	if a.value != b.value {
		return a.value < b.value
	}
	return a.origIndex < b.origIndex
}

// EstimateCost implements EstimateCost(provider, usage) = usage.total/1000 ·
// price_per_1k, rounded to 6 decimals.
func EstimateCost(pid config.ProviderId, usage provider.Usage) float64 {
	cost := float64(usage.TotalTokens) / 1000.0 * provider.PricePer1k[pid]
	return math.Round(cost*1e6) / 1e6
}
