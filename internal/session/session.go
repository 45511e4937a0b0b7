// Package session holds the per-login state of a submitter or verifier:
// who they are and the form they are currently editing.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vpriesta/mds-form/internal/formbind"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is created at login and discarded at logout.
type Session struct {
	ID        string
	Username  string
	Role      string
	CreatedAt time.Time
	// Form is the activity being edited, nil until one is opened.
	Form *formbind.Form
}

// Open binds f as the session's current form.
func (s *Session) Open(f *formbind.Form) {
	s.Form = f
}

// Editing reports whether the session's current form is activityID.
func (s *Session) Editing(activityID string) bool {
	return s.Form != nil && s.Form.ActivityID == activityID
}

// Store persists sessions between requests.
type Store interface {
	Create(ctx context.Context, username, role string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

func newSession(username, role string, now time.Time) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("session: username is required")
	}
	return &Session{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      strings.TrimSpace(role),
		CreatedAt: now,
	}, nil
}
