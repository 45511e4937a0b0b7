// Package events defines the activity status-change event and its publishers.
package events

import (
	"context"
	"time"
)

// TypeStatusChanged is the event_type header value for ActivityStatusChanged.
const TypeStatusChanged = "activity.status_changed"

// ActivityStatusChanged is emitted after every applied lifecycle transition.
// From is empty for newly created records.
type ActivityStatusChanged struct {
	ActivityID string    `json:"activity_id"`
	Owner      string    `json:"owner"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Actor      string    `json:"actor"`
	Note       string    `json:"note,omitempty"`
	Title      string    `json:"title,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers status-change events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt ActivityStatusChanged) error
}

// NoopPublisher drops events. It is used when no brokers are configured.
type NoopPublisher struct{}

// PublishStatusChanged implements Publisher.
func (NoopPublisher) PublishStatusChanged(context.Context, ActivityStatusChanged) error { return nil }
