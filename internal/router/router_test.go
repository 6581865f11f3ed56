package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/internal/ledger"
	"github.com/promptpilot/ai-router/internal/provider"
	"github.com/promptpilot/ai-router/internal/quota"
	"github.com/promptpilot/ai-router/internal/tier"
)

type memQuotaStore struct {
	mu     sync.Mutex
	counts map[string]int
	reads  int
	getErr error
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{counts: make(map[string]int)}
}

func (s *memQuotaStore) GetUsage(ctx context.Context, callerID, periodKey string) (*quota.UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &quota.UsagePeriod{
		CallerID:     callerID,
		PeriodKey:    periodKey,
		RequestsUsed: s.counts[callerID],
	}, nil
}

func (s *memQuotaStore) IncrementUsage(ctx context.Context, callerID, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[callerID]++
	return nil
}

func (s *memQuotaStore) used(callerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[callerID]
}

func (s *memQuotaStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type stubProvider struct {
	name      string
	content   string
	invokeErr error
}

func (p *stubProvider) Invoke(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if p.invokeErr != nil {
		return nil, p.invokeErr
	}
	return &provider.Response{
		Content:  p.content,
		Model:    "stub-model",
		Provider: p.name,
	}, nil
}

func (p *stubProvider) Name() string { return p.name }

type captureRecorder struct {
	mu      sync.Mutex
	entries []*ledger.Entry
}

func (r *captureRecorder) Record(entry *ledger.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *captureRecorder) all() []*ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ledger.Entry(nil), r.entries...)
}

func setupRouter(t *testing.T, store *memQuotaStore, providers ...provider.Provider) (*Router, *captureRecorder) {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		require.NoError(t, registry.Register(p))
	}
	recorder := &captureRecorder{}
	guard := quota.NewGuard(store, zap.NewNop())
	return New(guard, registry, recorder, zap.NewNop()), recorder
}

func TestRoute_FreeTierExhaustsAtTen(t *testing.T) {
	store := newMemQuotaStore()
	rt, recorder := setupRouter(t, store, &stubProvider{name: provider.OpenAI, content: "ok"})

	req := &Request{CallerID: "caller-1", SubscriptionTier: tier.Free, Prompt: "hello"}

	for i := 0; i < 10; i++ {
		result, err := rt.Route(context.Background(), req)
		require.NoError(t, err, "request %d", i+1)
		assert.Equal(t, i+1, result.Usage.Current)
		assert.Equal(t, 10, result.Usage.Limit)
	}

	_, err := rt.Route(context.Background(), req)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 10, quotaErr.Used)
	assert.Equal(t, 10, quotaErr.Limit)
	assert.Equal(t, tier.Free, quotaErr.Tier)

	// Denied requests are neither charged nor logged.
	assert.Equal(t, 10, store.used("caller-1"))
	assert.Len(t, recorder.all(), 10)
}

func TestRoute_EnterpriseIsUnlimited(t *testing.T) {
	store := newMemQuotaStore()
	rt, recorder := setupRouter(t, store,
		&stubProvider{name: provider.OpenAI, content: "ok"},
		&stubProvider{name: provider.Claude, content: "ok"},
	)

	req := &Request{CallerID: "big-co", SubscriptionTier: tier.Enterprise, Prompt: "hello"}
	for i := 0; i < 5000; i++ {
		result, err := rt.Route(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, tier.Unlimited, result.Usage.Limit)
	}

	assert.Equal(t, 5000, store.used("big-co"))
	assert.Len(t, recorder.all(), 5000)
}

func TestRoute_EmptyPromptRejectedBeforeAnyIO(t *testing.T) {
	store := newMemQuotaStore()
	rt, recorder := setupRouter(t, store, &stubProvider{name: provider.OpenAI})

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := rt.Route(context.Background(), &Request{
			CallerID:         "caller-1",
			SubscriptionTier: tier.Free,
			Prompt:           prompt,
		})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	}

	assert.Equal(t, 0, store.readCount(), "quota store must not be read for invalid prompts")
	assert.Empty(t, recorder.all())
}

func TestRoute_ProviderFailureStillCharges(t *testing.T) {
	store := newMemQuotaStore()
	upstream := provider.NewError(provider.OpenAI, 502, "bad gateway")
	rt, recorder := setupRouter(t, store, &stubProvider{name: provider.OpenAI, invokeErr: upstream})

	_, err := rt.Route(context.Background(), &Request{
		CallerID:         "caller-1",
		SubscriptionTier: tier.Free,
		Prompt:           "hello",
	})

	var provErr *provider.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, provider.OpenAI, provErr.Provider)

	// Charge on attempt: exactly one increment and one ledger entry.
	assert.Equal(t, 1, store.used("caller-1"))
	entries := recorder.all()
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.OutcomeProviderError, entries[0].Outcome)
	assert.Equal(t, provider.OpenAI, entries[0].Provider)
}

func TestRoute_NoProviderConfigured(t *testing.T) {
	store := newMemQuotaStore()
	rt, _ := setupRouter(t, store) // empty registry

	_, err := rt.Route(context.Background(), &Request{
		CallerID:         "caller-1",
		SubscriptionTier: tier.Pro,
		Prompt:           "hello",
	})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	// Selection failure happens before any provider attempt: no charge.
	assert.Equal(t, 0, store.used("caller-1"))
}

func TestRoute_PreferredProviderHonored(t *testing.T) {
	store := newMemQuotaStore()
	rt, _ := setupRouter(t, store,
		&stubProvider{name: provider.OpenAI, content: "from openai"},
		&stubProvider{name: provider.Claude, content: "from claude"},
	)

	result, err := rt.Route(context.Background(), &Request{
		CallerID:          "caller-1",
		SubscriptionTier:  tier.Pro,
		Prompt:            "hello",
		PreferredProvider: provider.Claude,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Claude, result.Provider)
	assert.Equal(t, "from claude", result.Content)
}

func TestRoute_ComplexTaskRoutesHighCapability(t *testing.T) {
	store := newMemQuotaStore()
	rt, recorder := setupRouter(t, store,
		&stubProvider{name: provider.OpenAI, content: "from openai"},
		&stubProvider{name: provider.Claude, content: "from claude"},
	)

	result, err := rt.Route(context.Background(), &Request{
		CallerID:         "caller-1",
		SubscriptionTier: tier.Pro,
		Prompt:           "analyze this contract",
		TaskType:         "legal_analysis",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Claude, result.Provider)

	result, err = rt.Route(context.Background(), &Request{
		CallerID:         "caller-1",
		SubscriptionTier: tier.Pro,
		Prompt:           "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.OpenAI, result.Provider)
	assert.Equal(t, DefaultTaskType, result.TaskType)

	entries := recorder.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "legal_analysis", entries[0].TaskType)
	assert.Equal(t, DefaultTaskType, entries[1].TaskType)
	assert.WithinDuration(t, time.Now(), entries[0].RequestedAt, time.Minute)
}

func TestRoute_StoreOutageFailsClosed(t *testing.T) {
	store := newMemQuotaStore()
	store.getErr = errors.New("connection refused")
	rt, recorder := setupRouter(t, store, &stubProvider{name: provider.OpenAI})

	_, err := rt.Route(context.Background(), &Request{
		CallerID:         "caller-1",
		SubscriptionTier: tier.Pro,
		Prompt:           "hello",
	})

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "unable to verify subscription status", quotaErr.Reason)
	assert.Empty(t, recorder.all())
}
