package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/events"
	"github.com/vpriesta/mds-form/internal/inbox"
)

func statusMessage(t *testing.T, evt events.ActivityStatusChanged) kafka.Message {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{
		Topic:     "activity_status_changed",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Key:       []byte(evt.ActivityID),
		Value:     body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeStatusChanged)},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		statusMessage(t, events.ActivityStatusChanged{ActivityID: "a1", Owner: "alice", From: "submitted", To: "verified", Actor: "vera"}),
	}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeStatusChanged, handler.last.EventType)
	require.Equal(t, "a1", handler.last.Event.ActivityID)
	require.Equal(t, "verified", handler.last.Event.To)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		statusMessage(t, events.ActivityStatusChanged{ActivityID: "a1", Owner: "alice", To: "rejected"}),
	}}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	noHeader := statusMessage(t, events.ActivityStatusChanged{ActivityID: "a1", To: "verified"})
	noHeader.Headers = nil
	badJSON := statusMessage(t, events.ActivityStatusChanged{ActivityID: "a2", To: "verified"})
	badJSON.Value = []byte("{not json")
	noTarget := statusMessage(t, events.ActivityStatusChanged{ActivityID: "a3"})

	reader := &stubReader{messages: []kafka.Message{noHeader, badJSON, noTarget}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
}

func TestInboxHandlerNotifiesOwnerOfDecisions(t *testing.T) {
	ctx := context.Background()
	store := inbox.NewMemoryStore()
	handler := NewInboxHandler(store)
	at := time.Date(2024, time.August, 2, 8, 0, 0, 0, time.UTC)

	for _, to := range []string{"draft", "submitted", "revision_requested"} {
		require.NoError(t, handler.Handle(ctx, Message{Event: events.ActivityStatusChanged{
			ActivityID: "a1", Owner: "alice", To: to, Actor: "vera", Note: "fix dates", Title: "Sakernas", OccurredAt: at,
		}}))
	}

	got, err := store.List(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "revision_requested", got[0].Status)
	require.Equal(t, "fix dates", got[0].Note)
	require.Equal(t, "Sakernas", got[0].Title)
	require.Equal(t, at, got[0].CreatedAt)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	last  Message
	err   error
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
