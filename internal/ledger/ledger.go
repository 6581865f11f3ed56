// Package ledger keeps the append-only record of routed requests. Writes
// are off the response path: the router enqueues and moves on.
package ledger

import (
	"context"
	"time"
)

const (
	OutcomeSuccess       = "success"
	OutcomeProviderError = "provider_error"
)

type Entry struct {
	ID          string
	CallerID    string
	TaskType    string
	Provider    string
	Outcome     string
	Model       string
	LatencyMs   int64
	RequestedAt time.Time
}

type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListByCaller(ctx context.Context, callerID string, from, to time.Time) ([]*Entry, error)
	CountByCaller(ctx context.Context, callerID string, from, to time.Time) (int, error)
}
