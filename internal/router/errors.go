package router

import (
	"errors"
	"fmt"

	"github.com/promptpilot/ai-router/internal/tier"
)

var (
	// ErrEmptyPrompt rejects a request before any store or provider I/O.
	ErrEmptyPrompt = errors.New("router: prompt must not be empty")

	// ErrNoProviderAvailable means no credential is configured for any
	// provider permitted at the caller's tier. Operator-fixable.
	ErrNoProviderAvailable = errors.New("router: no provider available for this subscription")
)

// QuotaExceededError carries the usage snapshot that triggered denial so
// the caller can render an upgrade prompt.
type QuotaExceededError struct {
	Used   int
	Limit  int
	Tier   string
	Reason string
}

func (e *QuotaExceededError) Error() string {
	if e.Limit == tier.Unlimited {
		return fmt.Sprintf("router: quota denied for tier %s: %s", e.Tier, e.Reason)
	}
	return fmt.Sprintf("router: quota exceeded: %d/%d requests used on tier %s", e.Used, e.Limit, e.Tier)
}
