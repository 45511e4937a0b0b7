package consumer

import (
	"context"
	"time"

	"github.com/vpriesta/mds-form/internal/inbox"
)

// notifyOn lists the statuses an owner hears about.
var notifyOn = map[string]struct{}{
	"revision_requested": {},
	"rejected":           {},
	"verified":           {},
}

// InboxHandler turns reviewer decisions into owner notifications.
type InboxHandler struct {
	inbox inbox.Store
}

// NewInboxHandler constructs a handler writing to store.
func NewInboxHandler(store inbox.Store) *InboxHandler {
	return &InboxHandler{inbox: store}
}

// Handle implements Handler. Other transitions are acknowledged without a notification.
func (h *InboxHandler) Handle(ctx context.Context, msg Message) error {
	evt := msg.Event
	if _, ok := notifyOn[evt.To]; !ok {
		return nil
	}
	if evt.Owner == "" {
		return nil
	}

	created := evt.OccurredAt
	if created.IsZero() {
		created = msg.Timestamp
	}
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return h.inbox.Push(ctx, evt.Owner, inbox.Notification{
		ActivityID: evt.ActivityID,
		Title:      evt.Title,
		Status:     evt.To,
		Actor:      evt.Actor,
		Note:       evt.Note,
		CreatedAt:  created,
	})
}
