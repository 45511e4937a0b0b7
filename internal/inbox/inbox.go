// Package inbox keeps per-owner notifications about reviewer decisions.
package inbox

import (
	"context"
	"sync"
	"time"
)

// MaxPerOwner bounds how many notifications are kept for one owner.
const MaxPerOwner = 100

// Notification tells an owner what happened to one of their activities.
type Notification struct {
	ActivityID string    `json:"activity_id"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status"`
	Actor      string    `json:"actor,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store records notifications, newest first.
type Store interface {
	Push(ctx context.Context, owner string, n Notification) error
	List(ctx context.Context, owner string, limit int) ([]Notification, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]Notification
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]Notification)}
}

// Push implements Store.
func (m *MemoryStore) Push(_ context.Context, owner string, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]Notification{n}, m.items[owner]...)
	if len(list) > MaxPerOwner {
		list = list[:MaxPerOwner]
	}
	m.items[owner] = list
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, owner string, limit int) ([]Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.items[owner]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Notification, limit)
	copy(out, list[:limit])
	return out, nil
}
