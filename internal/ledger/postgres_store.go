package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry.RequestedAt.IsZero() {
		entry.RequestedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO routing_logs (caller_id, task_type, provider, outcome, model, latency_ms, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query,
		entry.CallerID, entry.TaskType, entry.Provider, entry.Outcome,
		entry.Model, entry.LatencyMs, entry.RequestedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to append routing log: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListByCaller(ctx context.Context, callerID string, from, to time.Time) ([]*Entry, error) {
	query := `
		SELECT id, caller_id, task_type, provider, outcome, model, latency_ms, requested_at
		FROM routing_logs
		WHERE caller_id = $1 AND requested_at BETWEEN $2 AND $3
		ORDER BY requested_at DESC
	`
	rows, err := s.db.Query(ctx, query, callerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing logs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.CallerID, &e.TaskType, &e.Provider, &e.Outcome,
			&e.Model, &e.LatencyMs, &e.RequestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing log: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing logs: %w", err)
	}

	return entries, nil
}

func (s *PostgresStore) CountByCaller(ctx context.Context, callerID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM routing_logs
		WHERE caller_id = $1 AND requested_at BETWEEN $2 AND $3
	`
	var count int
	if err := s.db.QueryRow(ctx, query, callerID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count routing logs: %w", err)
	}

	return count, nil
}
