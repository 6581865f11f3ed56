package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/config"
	"github.com/promptpilot/ai-router/internal/auth"
	"github.com/promptpilot/ai-router/internal/ledger"
	"github.com/promptpilot/ai-router/internal/provider"
	"github.com/promptpilot/ai-router/internal/provider/claude"
	"github.com/promptpilot/ai-router/internal/provider/openai"
	"github.com/promptpilot/ai-router/internal/proxy"
	"github.com/promptpilot/ai-router/internal/quota"
	"github.com/promptpilot/ai-router/internal/router"
	"github.com/promptpilot/ai-router/internal/seeder"
	"github.com/promptpilot/ai-router/internal/telemetry"
	"github.com/promptpilot/ai-router/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("ai-router", cfg)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to ping redis", zap.Error(err))
	}
	logger.Info("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb, logger)

	// 6. Init quota guard
	quotaStore := quota.NewPostgresStore(pool)
	guard := quota.NewGuard(quotaStore, logger)

	// 7. Init usage ledger
	ledgerStore := ledger.NewPostgresStore(pool)
	recorder := ledger.NewRecorder(ledgerStore, logger, cfg.LedgerBufferSize, cfg.LedgerWorkers)
	recorder.Start()

	// 8. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 9. Register providers with configured credentials
	registry := provider.NewRegistry()
	if cfg.OpenAIAPIKey != "" {
		if err := registry.Register(openai.New(cfg.OpenAIAPIKey)); err != nil {
			logger.Fatal("failed to register openai", zap.Error(err))
		}
	}
	if cfg.AnthropicAPIKey != "" {
		if err := registry.Register(claude.New(cfg.AnthropicAPIKey)); err != nil {
			logger.Fatal("failed to register claude", zap.Error(err))
		}
	}
	logger.Info("providers registered", zap.Strings("ids", registry.IDs()))

	// 10. Init router + handler
	rt := router.New(guard, registry, recorder, logger)
	tracer := otel.GetTracerProvider().Tracer("ai-router")
	handler := proxy.NewHandler(rt, quotaStore, ledgerStore, limiter, tracer, logger)

	// 11. Seed test caller if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestCaller(ctx, authStore, logger)
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"ai-router"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/generate", handler.HandleGenerate)
		r.Get("/v1/usage", handler.HandleUsage)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("AI router starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	// Drain pending ledger writes after in-flight requests finish.
	recorder.Stop(5 * time.Second)
	logger.Info("server stopped")
}
