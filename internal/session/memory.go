package session

import (
	"context"
	"sync"
	"time"

	"github.com/vpriesta/mds-form/internal/formbind"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped on read.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryStore constructs a MemoryStore; ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, username, role string) (*Session, error) {
	s, err := newSession(username, role, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store. The returned session is a copy.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	out := entry.session
	out.Form = cloneForm(entry.session.Form)
	return &out, nil
}

// Save implements Store and refreshes the expiry.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{session: *s}
	entry.session.Form = cloneForm(s.Form)
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[s.ID] = entry
	return nil
}

// Delete implements Store. Deleting an unknown session is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func cloneForm(f *formbind.Form) *formbind.Form {
	if f == nil {
		return nil
	}
	return f.Clone()
}
