package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/promptpilot/ai-router/internal/tier"
)

// UsagePeriod is one caller's request counter for a calendar month.
type UsagePeriod struct {
	CallerID      string
	PeriodKey     string // "YYYY-MM", UTC
	RequestsUsed  int
	LastRequestAt time.Time
}

type Store interface {
	// GetUsage returns the counter for (callerID, periodKey). An absent row
	// means zero usage, not an error.
	GetUsage(ctx context.Context, callerID, periodKey string) (*UsagePeriod, error)

	// IncrementUsage adds one request to the counter, creating the row on
	// first use. The increment itself must be atomic.
	IncrementUsage(ctx context.Context, callerID, periodKey string) error
}

// PeriodKey buckets a timestamp into its UTC calendar month.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Decision is the outcome of a pre-call quota check.
type Decision struct {
	Allowed      bool
	CurrentUsage int
	Limit        int // tier.Unlimited when the tier has no cap
	Tier         string
	Reason       string
}

// Guard decides whether a request may proceed and records that it did.
// The check and the later increment are deliberately not atomic with each
// other: concurrent requests for the same caller can both pass the check,
// so a finite limit is a soft cap under bursts.
type Guard struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewGuard(store Store, logger *zap.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Check reads current-period usage and applies the tier policy. A store
// read failure fails closed: the request is denied with the free-tier limit
// reported, and the raw store error never reaches the caller.
func (g *Guard) Check(ctx context.Context, callerID, tierName string) *Decision {
	tierName = tier.Normalize(tierName)
	limits := tier.LimitsFor(tierName)

	usage, err := g.store.GetUsage(ctx, callerID, PeriodKey(g.now()))
	if err != nil {
		g.logger.Error("quota read failed, denying request",
			zap.String("caller_id", callerID),
			zap.Error(err))
		return &Decision{
			Allowed:      false,
			CurrentUsage: 0,
			Limit:        tier.LimitsFor(tier.Free).RequestLimit,
			Tier:         tierName,
			Reason:       "unable to verify subscription status",
		}
	}

	d := &Decision{
		CurrentUsage: usage.RequestsUsed,
		Limit:        limits.RequestLimit,
		Tier:         tierName,
	}
	d.Allowed = limits.RequestLimit == tier.Unlimited || usage.RequestsUsed < limits.RequestLimit
	if !d.Allowed {
		d.Reason = "monthly request limit reached"
	}
	return d
}

// Record charges one request against the caller's current period. It is
// called once per provider attempt, success or not, and its own failure is
// logged and swallowed: the caller's response is already decided.
func (g *Guard) Record(ctx context.Context, callerID string) {
	if err := g.store.IncrementUsage(ctx, callerID, PeriodKey(g.now())); err != nil {
		g.logger.Error("failed to record usage",
			zap.String("caller_id", callerID),
			zap.Error(err))
	}
}
