// Package memory keeps activity rows in process memory for tests and local development.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vpriesta/mds-form/internal/store"
)

type entry struct {
	row store.Row
	seq uint64
}

// Backend stores rows in a map guarded by a RWMutex.
type Backend struct {
	mu   sync.RWMutex
	rows map[string]entry
	seq  uint64
}

// New constructs an empty Backend.
func New() *Backend {
	return &Backend{rows: make(map[string]entry)}
}

// Name implements store.Backend.
func (b *Backend) Name() string { return "memory" }

// Upsert implements store.Backend.
func (b *Backend) Upsert(_ context.Context, row store.Row) (store.Row, error) {
	if strings.TrimSpace(row.ActivityID) == "" {
		return store.Row{}, errors.New("memory: activity_id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	if existing, ok := b.rows[row.ActivityID]; ok {
		row.UserID = existing.row.UserID
		row.UpdatedAt = store.Clamp(existing.row.UpdatedAt, row.UpdatedAt)
	}
	b.rows[row.ActivityID] = entry{row: row, seq: b.seq}
	return row, nil
}

// Get implements store.Backend.
func (b *Backend) Get(_ context.Context, activityID string) (*store.Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.rows[activityID]
	if !ok {
		return nil, nil
	}
	row := e.row
	return &row, nil
}

// List implements store.Backend. Rows are ordered newest-updated first.
func (b *Backend) List(_ context.Context, f store.Filter) ([]store.Row, error) {
	b.mu.RLock()
	entries := make([]entry, 0, len(b.rows))
	for _, e := range b.rows {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].row.UpdatedAt.Equal(entries[j].row.UpdatedAt) {
			return entries[i].row.UpdatedAt.After(entries[j].row.UpdatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	rows := make([]store.Row, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	return f.Apply(rows), nil
}

// UpdateStatus implements store.Backend.
func (b *Backend) UpdateStatus(_ context.Context, activityID, status string, at time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.rows[activityID]
	if !ok {
		return false, nil
	}
	b.seq++
	e.row.Status = status
	e.row.UpdatedAt = store.Clamp(e.row.UpdatedAt, at)
	e.seq = b.seq
	b.rows[activityID] = e
	return true, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(_ context.Context, activityID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rows[activityID]; !ok {
		return false, nil
	}
	delete(b.rows, activityID)
	return true, nil
}
