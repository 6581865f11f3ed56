package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptpilot/ai-router/internal/provider"
)

func TestLimitsFor_KnownTiers(t *testing.T) {
	free := LimitsFor(Free)
	assert.Equal(t, 10, free.RequestLimit)
	assert.Equal(t, []string{provider.OpenAI}, free.AllowedProviders)

	pro := LimitsFor(Pro)
	assert.Equal(t, 1000, pro.RequestLimit)
	assert.Equal(t, []string{provider.OpenAI, provider.Claude}, pro.AllowedProviders)

	enterprise := LimitsFor(Enterprise)
	assert.Equal(t, Unlimited, enterprise.RequestLimit)
	assert.Equal(t, []string{provider.OpenAI, provider.Claude}, enterprise.AllowedProviders)
}

func TestLimitsFor_UnknownTierFallsBackToFree(t *testing.T) {
	for _, name := range []string{"", "platinum", "FREE", "Pro "} {
		assert.Equal(t, LimitsFor(Free), LimitsFor(name), "tier %q", name)
	}
}

func TestLimitsFor_AllTiersHaveProviders(t *testing.T) {
	for _, name := range []string{Free, Pro, Enterprise} {
		require.NotEmpty(t, LimitsFor(name).AllowedProviders, "tier %q", name)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, Pro, Normalize(Pro))
	assert.Equal(t, Free, Normalize("unknown"))
	assert.Equal(t, Free, Normalize(""))
}
