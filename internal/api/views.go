package api

import (
	"errors"
	"strings"
	"time"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/inbox"
)

// LoginRequest is the payload for POST /v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate ensures request correctness.
func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse carries the bearer token for later requests.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// CreateActivityRequest is the optional payload for POST /v1/activities.
type CreateActivityRequest struct {
	Payload *document.Value `json:"payload"`
}

// SaveDraftRequest is the payload for PUT /v1/activities/{id}.
type SaveDraftRequest struct {
	Payload *document.Value `json:"payload"`
}

// Validate ensures request correctness.
func (r SaveDraftRequest) Validate() error {
	if r.Payload == nil || r.Payload.IsNull() {
		return errors.New("payload is required")
	}
	return nil
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID string         `json:"activity_id"`
	Owner      string         `json:"owner"`
	Status     string         `json:"status"`
	Title      string         `json:"title"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Payload    document.Value `json:"payload"`
}

// ActivitySummary is one dashboard row.
type ActivitySummary struct {
	ActivityID string    `json:"activity_id"`
	Owner      string    `json:"owner"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	LastSaved  string    `json:"last_saved,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []ActivitySummary `json:"items"`
}

// FieldView is one editable leaf offered to a reviewer.
type FieldView struct {
	Path    string         `json:"path"`
	Label   string         `json:"label"`
	Control string         `json:"control"`
	Value   document.Value `json:"value"`
}

// FieldsResponse lists the editable leaves of one activity.
type FieldsResponse struct {
	ActivityID string      `json:"activity_id"`
	Status     string      `json:"status"`
	Fields     []FieldView `json:"fields"`
}

// NotificationsResponse lists the caller's inbox, newest first.
type NotificationsResponse struct {
	Items []inbox.Notification `json:"items"`
}

func toView(rec domain.Record) ActivityView {
	return ActivityView{
		ActivityID: rec.ID,
		Owner:      rec.Owner,
		Status:     string(rec.Status),
		Title:      formbind.Title(rec.Payload),
		UpdatedAt:  rec.UpdatedAt,
		Payload:    rec.Payload,
	}
}

func toSummaries(records []domain.Record) []ActivitySummary {
	out := make([]ActivitySummary, 0, len(records))
	for _, rec := range records {
		summary := ActivitySummary{
			ActivityID: rec.ID,
			Owner:      rec.Owner,
			Status:     string(rec.Status),
			Title:      formbind.Title(rec.Payload),
			UpdatedAt:  rec.UpdatedAt,
		}
		if v, ok := rec.Payload.Get(domain.KeyLastSaved); ok {
			summary.LastSaved = v.Text()
		}
		out = append(out, summary)
	}
	return out
}
