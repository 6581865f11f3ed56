package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetUsage(ctx context.Context, callerID, periodKey string) (*UsagePeriod, error) {
	query := `
		SELECT requests_used, last_request_at
		FROM usage_periods
		WHERE caller_id = $1 AND period_key = $2
	`

	u := UsagePeriod{CallerID: callerID, PeriodKey: periodKey}
	err := s.db.QueryRow(ctx, query, callerID, periodKey).Scan(&u.RequestsUsed, &u.LastRequestAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// First request of the period: no row yet, zero usage.
			return &u, nil
		}
		return nil, fmt.Errorf("failed to get usage period: %w", err)
	}

	return &u, nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, callerID, periodKey string) error {
	query := `
		INSERT INTO usage_periods (caller_id, period_key, requests_used, last_request_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (caller_id, period_key)
		DO UPDATE SET requests_used = usage_periods.requests_used + 1, last_request_at = now()
	`
	if _, err := s.db.Exec(ctx, query, callerID, periodKey); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}
