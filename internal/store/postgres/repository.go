// Package postgres stores activity rows in a hosted Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpriesta/mds-form/internal/store"
)

// Schema creates the activities table. The data column is json rather than jsonb
// so member order survives a round trip.
const Schema = `CREATE TABLE IF NOT EXISTS activities (
    activity_id TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    status      TEXT NOT NULL,
    data        JSON NOT NULL DEFAULT '{}',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS activities_user_updated_idx ON activities (user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS activities_status_updated_idx ON activities (status, updated_at DESC);`

const selectColumns = `activity_id, user_id, status, data::text, updated_at`

// Repository provides Postgres-backed persistence for activity rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Name implements store.Backend.
func (r *Repository) Name() string { return "postgres" }

// EnsureSchema creates the table and indexes when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Upsert implements store.Backend.
func (r *Repository) Upsert(ctx context.Context, row store.Row) (store.Row, error) {
	const stmt = `INSERT INTO activities (activity_id, user_id, status, data, updated_at)
        VALUES ($1, $2, $3, $4::text::json, $5)
        ON CONFLICT (activity_id) DO UPDATE SET
            status = EXCLUDED.status,
            data = EXCLUDED.data,
            updated_at = GREATEST(activities.updated_at, EXCLUDED.updated_at)
        RETURNING ` + selectColumns

	data := row.Data
	if data == "" {
		data = "{}"
	}

	var stored store.Row
	err := r.pool.QueryRow(ctx, stmt, row.ActivityID, row.UserID, row.Status, data, row.UpdatedAt).
		Scan(&stored.ActivityID, &stored.UserID, &stored.Status, &stored.Data, &stored.UpdatedAt)
	if err != nil {
		return store.Row{}, fmt.Errorf("postgres: upsert %s: %w", row.ActivityID, err)
	}
	stored.UpdatedAt = stored.UpdatedAt.UTC()
	return stored, nil
}

// Get implements store.Backend.
func (r *Repository) Get(ctx context.Context, activityID string) (*store.Row, error) {
	const query = `SELECT ` + selectColumns + ` FROM activities WHERE activity_id = $1`

	var row store.Row
	err := r.pool.QueryRow(ctx, query, activityID).
		Scan(&row.ActivityID, &row.UserID, &row.Status, &row.Data, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get %s: %w", activityID, err)
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
	return &row, nil
}

// List implements store.Backend. Rows are ordered newest-updated first.
func (r *Repository) List(ctx context.Context, f store.Filter) ([]store.Row, error) {
	const query = `SELECT ` + selectColumns + ` FROM activities
        WHERE ($1 = '' OR btrim(user_id) = btrim($1))
          AND ($2 = '' OR lower(btrim(status)) = lower(btrim($2)))
        ORDER BY updated_at DESC, activity_id DESC
        LIMIT NULLIF($3::int, 0)`

	limit := f.Limit
	if limit < 0 {
		limit = 0
	}

	rows, err := r.pool.Query(ctx, query, f.Owner, f.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	results := make([]store.Row, 0)
	for rows.Next() {
		var row store.Row
		if err := rows.Scan(&row.ActivityID, &row.UserID, &row.Status, &row.Data, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list scan: %w", err)
		}
		row.UpdatedAt = row.UpdatedAt.UTC()
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	return results, nil
}

// UpdateStatus implements store.Backend.
func (r *Repository) UpdateStatus(ctx context.Context, activityID, status string, at time.Time) (bool, error) {
	const stmt = `UPDATE activities
        SET status = $2, updated_at = GREATEST(updated_at, $3)
        WHERE activity_id = $1`

	tag, err := r.pool.Exec(ctx, stmt, activityID, status, at)
	if err != nil {
		return false, fmt.Errorf("postgres: update status %s: %w", activityID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete implements store.Backend.
func (r *Repository) Delete(ctx context.Context, activityID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activities WHERE activity_id = $1`, activityID)
	if err != nil {
		return false, fmt.Errorf("postgres: delete %s: %w", activityID, err)
	}
	return tag.RowsAffected() > 0, nil
}
