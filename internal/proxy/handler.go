package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/internal/auth"
	"github.com/promptpilot/ai-router/internal/ledger"
	"github.com/promptpilot/ai-router/internal/provider"
	"github.com/promptpilot/ai-router/internal/quota"
	"github.com/promptpilot/ai-router/internal/router"
	"github.com/promptpilot/ai-router/internal/tier"
	"github.com/promptpilot/ai-router/pkg/ratelimit"
)

type Handler struct {
	router   *router.Router
	quota    quota.Store
	ledger   ledger.Store
	limiter  *ratelimit.Limiter
	tracer   trace.Tracer
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(rt *router.Router, quotaStore quota.Store, ledgerStore ledger.Store, limiter *ratelimit.Limiter, tracer trace.Tracer, logger *zap.Logger) *Handler {
	return &Handler{
		router:   rt,
		quota:    quotaStore,
		ledger:   ledgerStore,
		limiter:  limiter,
		tracer:   tracer,
		logger:   logger,
		validate: validator.New(),
	}
}

type generateRequest struct {
	Prompt            string `json:"prompt" validate:"required"`
	TaskType          string `json:"taskType"`
	PreferredProvider string `json:"preferredProvider"`
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := auth.GetCallerID(ctx)
	if callerID == "" {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt must not be empty")
		return
	}

	_, span := h.tracer.Start(ctx, "router.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("caller_id", callerID),
		attribute.String("task_type", body.TaskType),
	)

	allowed, err := h.limiter.Allow(ctx, callerID)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry in 60s")
		return
	}

	result, err := h.router.Route(ctx, &router.Request{
		CallerID:          callerID,
		SubscriptionTier:  auth.GetSubscriptionTier(ctx),
		Prompt:            body.Prompt,
		TaskType:          body.TaskType,
		PreferredProvider: body.PreferredProvider,
		RequestID:         auth.GetRequestID(ctx),
	})
	if err != nil {
		h.writeRouteError(w, err)
		return
	}

	span.SetAttributes(attribute.String("provider", result.Provider))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": result.Content,
		"provider": result.Provider,
		"taskType": result.TaskType,
		"usage": map[string]any{
			"current":           result.Usage.Current,
			"limit":             renderLimit(result.Usage.Limit),
			"subscription_tier": result.Usage.Tier,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeRouteError(w http.ResponseWriter, err error) {
	var quotaErr *router.QuotaExceededError
	var providerErr *provider.Error

	switch {
	case errors.Is(err, router.ErrEmptyPrompt):
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt must not be empty")

	case errors.As(err, &quotaErr):
		message := quotaErr.Reason
		if message == "" {
			message = "monthly request limit reached"
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error": map[string]any{
				"code":              "USAGE_LIMIT_EXCEEDED",
				"message":           message,
				"usage":             quotaErr.Used,
				"limit":             quotaErr.Limit,
				"subscription_tier": quotaErr.Tier,
			},
		})

	case errors.Is(err, router.ErrNoProviderAvailable):
		h.writeError(w, http.StatusInternalServerError, "AI_ROUTER_ERROR", "no AI provider is configured for this subscription")

	case errors.As(err, &providerErr):
		h.writeError(w, http.StatusInternalServerError, "AI_ROUTER_ERROR",
			fmt.Sprintf("provider %s request failed: %s", providerErr.Provider, providerErr.Message))

	default:
		h.logger.Error("unexpected routing failure", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "AI_ROUTER_ERROR", "request could not be routed")
	}
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := auth.GetCallerID(ctx)
	if callerID == "" {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid 'from' date format (use RFC3339)")
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	periodKey := quota.PeriodKey(now)
	usage, err := h.quota.GetUsage(ctx, callerID, periodKey)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "AI_ROUTER_ERROR", "unable to read usage")
		return
	}

	entries, err := h.ledger.ListByCaller(ctx, callerID, from, to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "AI_ROUTER_ERROR", "unable to read routing logs")
		return
	}

	tierName := tier.Normalize(auth.GetSubscriptionTier(ctx))
	limits := tier.LimitsFor(tierName)

	writeJSON(w, http.StatusOK, map[string]any{
		"caller_id":         callerID,
		"subscription_tier": tierName,
		"period":            periodKey,
		"usage": map[string]any{
			"current": usage.RequestsUsed,
			"limit":   renderLimit(limits.RequestLimit),
		},
		"total_requests": len(entries),
		"logs":           renderEntries(entries),
		"from":           from,
		"to":             to,
	})
}

func renderLimit(limit int) any {
	if limit == tier.Unlimited {
		return "unlimited"
	}
	return limit
}

func renderEntries(entries []*ledger.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"task_type":    e.TaskType,
			"provider":     e.Provider,
			"outcome":      e.Outcome,
			"model":        e.Model,
			"latency_ms":   e.LatencyMs,
			"requested_at": e.RequestedAt,
		})
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
