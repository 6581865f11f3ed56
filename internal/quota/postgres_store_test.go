package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	queryRow func(sql string, args ...any) pgx.Row
	exec     func(sql string, args ...any) (pgconn.CommandTag, error)
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.queryRow(sql, args...)
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.exec(sql, args...)
}

func TestGetUsage_AbsentRowMeansZero(t *testing.T) {
	db := &fakeDB{
		queryRow: func(sql string, args ...any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	store := NewPostgresStore(db)

	u, err := store.GetUsage(context.Background(), "caller-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, u.RequestsUsed)
	assert.Equal(t, "caller-1", u.CallerID)
	assert.Equal(t, "2026-08", u.PeriodKey)
}

func TestGetUsage_ScansRow(t *testing.T) {
	last := time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{
		queryRow: func(sql string, args ...any) pgx.Row {
			assert.Equal(t, []any{"caller-1", "2026-08"}, args)
			return fakeRow{scan: func(dest ...any) error {
				*dest[0].(*int) = 4
				*dest[1].(*time.Time) = last
				return nil
			}}
		},
	}
	store := NewPostgresStore(db)

	u, err := store.GetUsage(context.Background(), "caller-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 4, u.RequestsUsed)
	assert.Equal(t, last, u.LastRequestAt)
}

func TestGetUsage_WrapsStoreErrors(t *testing.T) {
	db := &fakeDB{
		queryRow: func(sql string, args ...any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error { return errors.New("connection refused") }}
		},
	}
	store := NewPostgresStore(db)

	_, err := store.GetUsage(context.Background(), "caller-1", "2026-08")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIncrementUsage_UsesAtomicUpsert(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	db := &fakeDB{
		exec: func(sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.CommandTag{}, nil
		},
	}
	store := NewPostgresStore(db)

	require.NoError(t, store.IncrementUsage(context.Background(), "caller-1", "2026-08"))
	assert.Contains(t, gotSQL, "ON CONFLICT (caller_id, period_key)")
	assert.Contains(t, strings.ToLower(gotSQL), "requests_used = usage_periods.requests_used + 1")
	assert.Equal(t, []any{"caller-1", "2026-08"}, gotArgs)
}
