// Package router orchestrates a single generation request: quota check,
// provider selection, the upstream call, and usage/audit recording.
package router

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/internal/ledger"
	"github.com/promptpilot/ai-router/internal/provider"
	"github.com/promptpilot/ai-router/internal/quota"
	"github.com/promptpilot/ai-router/internal/tier"
)

const DefaultTaskType = "general"

// Request is the canonical inbound unit. CallerID and SubscriptionTier are
// resolved upstream; the router trusts them.
type Request struct {
	CallerID          string
	SubscriptionTier  string
	Prompt            string
	TaskType          string
	PreferredProvider string
	RequestID         string
}

type Usage struct {
	Current int
	Limit   int // tier.Unlimited when the tier has no cap
	Tier    string
}

type Result struct {
	Content  string
	Provider string
	TaskType string
	Usage    Usage
}

// UsageRecorder receives ledger entries fire-and-forget.
type UsageRecorder interface {
	Record(entry *ledger.Entry)
}

type Router struct {
	guard    *quota.Guard
	registry *provider.Registry
	recorder UsageRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func New(guard *quota.Guard, registry *provider.Registry, recorder UsageRecorder, logger *zap.Logger) *Router {
	return &Router{
		guard:    guard,
		registry: registry,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Route runs the full pipeline. Once a provider has been attempted the
// request is charged and logged, whether or not the provider succeeded.
func (r *Router) Route(ctx context.Context, req *Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = DefaultTaskType
	}
	tierName := tier.Normalize(req.SubscriptionTier)

	decision := r.guard.Check(ctx, req.CallerID, tierName)
	if !decision.Allowed {
		return nil, &QuotaExceededError{
			Used:   decision.CurrentUsage,
			Limit:  decision.Limit,
			Tier:   decision.Tier,
			Reason: decision.Reason,
		}
	}

	// Only providers with a configured credential count as allowed.
	var allowed []string
	for _, id := range tier.LimitsFor(tierName).AllowedProviders {
		if _, ok := r.registry.Get(id); ok {
			allowed = append(allowed, id)
		}
	}

	providerID, err := SelectProvider(allowed, req.PreferredProvider, taskType, tierName)
	if err != nil {
		return nil, err
	}
	p, _ := r.registry.Get(providerID)

	start := r.now()
	resp, invokeErr := p.Invoke(ctx, &provider.Request{
		Prompt:    req.Prompt,
		TaskType:  taskType,
		CallerID:  req.CallerID,
		RequestID: req.RequestID,
	})

	// Charge on attempt. A disconnected caller must not skip the charge,
	// so the write outlives the request context.
	recordCtx := context.WithoutCancel(ctx)
	r.guard.Record(recordCtx, req.CallerID)

	entry := &ledger.Entry{
		CallerID:    req.CallerID,
		TaskType:    taskType,
		Provider:    providerID,
		RequestedAt: start.UTC(),
		LatencyMs:   time.Since(start).Milliseconds(),
	}

	if invokeErr != nil {
		entry.Outcome = ledger.OutcomeProviderError
		r.recorder.Record(entry)
		r.logger.Warn("provider call failed",
			zap.String("caller_id", req.CallerID),
			zap.String("provider", providerID),
			zap.Error(invokeErr))
		return nil, invokeErr
	}

	entry.Outcome = ledger.OutcomeSuccess
	entry.Model = resp.Model
	r.recorder.Record(entry)

	return &Result{
		Content:  resp.Content,
		Provider: providerID,
		TaskType: taskType,
		Usage: Usage{
			Current: decision.CurrentUsage + 1,
			Limit:   decision.Limit,
			Tier:    decision.Tier,
		},
	}, nil
}
