package router

import (
	"slices"

	"github.com/promptpilot/ai-router/internal/provider"
	"github.com/promptpilot/ai-router/internal/tier"
)

const (
	lowCostProvider        = provider.OpenAI
	highCapabilityProvider = provider.Claude
)

// Task types heavy enough to justify the high-capability provider.
var complexTasks = map[string]bool{
	"document_generation": true,
	"template_generation": true,
	"legal_analysis":      true,
	"growth_analysis":     true,
}

// SelectProvider picks exactly one provider id. Pure and deterministic:
// identical inputs always yield the same id.
//
//  1. A permitted caller preference always wins.
//  2. Free tier goes to the low-cost provider.
//  3. Paid tiers send complex task types to the high-capability provider
//     when it is permitted, everything else to the low-cost one.
//  4. If the heuristic picks a provider outside the allowed set (a policy
//     misconfiguration), fall back to the lexicographically-first allowed
//     id instead of erroring.
func SelectProvider(allowed []string, preferred, taskType, tierName string) (string, error) {
	if len(allowed) == 0 {
		return "", ErrNoProviderAvailable
	}

	if preferred != "" && slices.Contains(allowed, preferred) {
		return preferred, nil
	}

	choice := lowCostProvider
	if tierName != tier.Free && complexTasks[taskType] && slices.Contains(allowed, highCapabilityProvider) {
		choice = highCapabilityProvider
	}

	if !slices.Contains(allowed, choice) {
		return slices.Min(allowed), nil
	}
	return choice, nil
}
