package seeder

import (
	"context"

	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/internal/auth"
	"github.com/promptpilot/ai-router/internal/tier"
)

const TestAPIKey = "test-api-key-12345"

// SeedTestCaller creates a pro-tier caller for local development.
func SeedTestCaller(ctx context.Context, store auth.Store, logger *zap.Logger) {
	caller := &auth.Caller{
		SubscriptionTier: tier.Pro,
		Active:           true,
	}

	if err := store.Create(ctx, caller, TestAPIKey); err != nil {
		logger.Info("test caller may already exist, skipping", zap.Error(err))
		return
	}
	logger.Info("test caller created",
		zap.String("key", TestAPIKey),
		zap.String("caller_id", caller.ID),
		zap.String("tier", caller.SubscriptionTier))
}
