// Package store persists activity records behind a single backend selected at
// startup. Backends report failures as Go errors; RecordStore absorbs them into
// boolean and nil results.
package store

import (
	"context"
	"strings"
	"time"
)

// Row is the persisted shape shared by every backend.
type Row struct {
	ActivityID string
	UserID     string
	Status     string
	Data       string // JSON document
	UpdatedAt  time.Time
}

// Filter narrows a List call. Zero values match everything; Limit <= 0 means
// no limit.
type Filter struct {
	Owner  string
	Status string
	Limit  int
}

// Backend is a flat activity table.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Upsert inserts row or replaces status, data and updated_at of the existing
	// row. The stored owner is never changed and updated_at never decreases.
	// It returns the row as stored.
	Upsert(ctx context.Context, row Row) (Row, error)
	// Get returns nil without error when the id is unknown.
	Get(ctx context.Context, activityID string) (*Row, error)
	// List returns the rows matching f in backend order.
	List(ctx context.Context, f Filter) ([]Row, error)
	// UpdateStatus changes status and updated_at only. It reports false when the
	// id is unknown.
	UpdateStatus(ctx context.Context, activityID, status string, at time.Time) (bool, error)
	// Delete reports false when the id is unknown.
	Delete(ctx context.Context, activityID string) (bool, error)
}

// Match reports whether row satisfies the owner and status parts of f. Owners
// compare after trimming whitespace, statuses case-insensitively.
func (f Filter) Match(row Row) bool {
	if owner := strings.TrimSpace(f.Owner); owner != "" && strings.TrimSpace(row.UserID) != owner {
		return false
	}
	if f.Status != "" && !strings.EqualFold(strings.TrimSpace(row.Status), strings.TrimSpace(f.Status)) {
		return false
	}
	return true
}

// Apply filters rows in order and truncates the result to f.Limit.
func (f Filter) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !f.Match(row) {
			continue
		}
		out = append(out, row)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Clamp returns next unless it is before prev, keeping updated_at
// monotonically non-decreasing.
func Clamp(prev, next time.Time) time.Time {
	if next.Before(prev) {
		return prev
	}
	return next
}
