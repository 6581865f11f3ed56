package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCallerNotFound = errors.New("caller not found")

// Caller is the authenticated principal the router acts for. The tier is
// resolved here, once, and carried on the request context.
type Caller struct {
	ID               string    `json:"id"`
	KeyHash          string    `json:"key_hash"`
	SubscriptionTier string    `json:"subscription_tier"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (c *Caller) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (c *Caller) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*Caller, error)
	Create(ctx context.Context, caller *Caller, key string) error
	Revoke(ctx context.Context, callerID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	callerIDKey  contextKey = "caller_id"
	tierKey      contextKey = "subscription_tier"
	requestIDKey contextKey = "request_id"
)

const cacheTTL = 5 * time.Minute

func NewMiddleware(store Store, cache *redis.Client, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")

			redisKey := fmt.Sprintf("auth:%s", hashKey(key))

			var caller Caller
			err := cache.Get(ctx, redisKey).Scan(&caller)
			if err == nil {
				// Cache hit
				next.ServeHTTP(w, r.WithContext(withCaller(ctx, &caller)))
				return
			} else if err != redis.Nil {
				logger.Warn("auth cache error", zap.Error(err))
			}

			// Cache miss or error: lookup in store
			resolved, err := store.GetByKey(ctx, key)
			if err != nil {
				if errors.Is(err, ErrCallerNotFound) {
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			_ = cache.Set(ctx, redisKey, resolved, cacheTTL).Err()

			next.ServeHTTP(w, r.WithContext(withCaller(ctx, resolved)))
		})
	}
}

func hashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func withCaller(ctx context.Context, c *Caller) context.Context {
	ctx = context.WithValue(ctx, callerIDKey, c.ID)
	return context.WithValue(ctx, tierKey, c.SubscriptionTier)
}

// Helpers to extract from context
func GetCallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerIDKey).(string); ok {
		return id
	}
	return ""
}

func GetSubscriptionTier(ctx context.Context) string {
	if tier, ok := ctx.Value(tierKey).(string); ok {
		return tier
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDKey, callerID)
}

func WithSubscriptionTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, tierKey, tier)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
