package auth

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

func (s *PostgresStore) GetByKey(ctx context.Context, key string) (*Caller, error) {
	query := `
		SELECT id, key_hash, subscription_tier, active, created_at
		FROM callers
		WHERE key_hash = $1 AND active = true
	`

	var c Caller
	err := s.db.QueryRow(ctx, query, hashKey(key)).Scan(
		&c.ID, &c.KeyHash, &c.SubscriptionTier, &c.Active, &c.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallerNotFound
		}
		return nil, fmt.Errorf("failed to get caller: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, caller *Caller, key string) error {
	if key == "" {
		return fmt.Errorf("api key is required")
	}
	caller.KeyHash = hashKey(key)

	query := `
		INSERT INTO callers (key_hash, subscription_tier, active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		caller.KeyHash, caller.SubscriptionTier, caller.Active,
	).Scan(&caller.ID, &caller.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create caller: %w", err)
	}

	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, callerID string) error {
	query := `UPDATE callers SET active = false WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, callerID)
	if err != nil {
		return fmt.Errorf("failed to revoke caller: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCallerNotFound
	}

	return nil
}
