// Package tier holds the static subscription policy table. It is pure
// lookup: no I/O, no errors, recomputed per request.
package tier

import "github.com/promptpilot/ai-router/internal/provider"

const (
	Free       = "free"
	Pro        = "pro"
	Enterprise = "enterprise"
)

// Unlimited marks a tier with no monthly request cap.
const Unlimited = -1

type Limits struct {
	RequestLimit     int // requests per calendar month, Unlimited for no cap
	AllowedProviders []string
}

var table = map[string]Limits{
	Free: {
		RequestLimit:     10,
		AllowedProviders: []string{provider.OpenAI},
	},
	Pro: {
		RequestLimit:     1000,
		AllowedProviders: []string{provider.OpenAI, provider.Claude},
	},
	Enterprise: {
		RequestLimit:     Unlimited,
		AllowedProviders: []string{provider.OpenAI, provider.Claude},
	},
}

// Normalize maps an unknown or empty tier name to Free. Callers must never
// be denied outright because of a tier the table does not know.
func Normalize(name string) string {
	if _, ok := table[name]; ok {
		return name
	}
	return Free
}

// LimitsFor returns the limits for a tier, treating unknown tiers as Free.
func LimitsFor(name string) Limits {
	return table[Normalize(name)]
}
