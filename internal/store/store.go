package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/observability"
)

// Default list limits.
const (
	DefaultOwnerLimit  = 200
	DefaultStatusLimit = 500
)

// Record is a decoded activity row.
type Record struct {
	ActivityID string
	Owner      string
	Status     string
	Payload    document.Value
	UpdatedAt  time.Time
}

// RecordStore wraps one Backend. It converts payloads to JSON, stamps
// updated_at and turns every backend error into a logged false/nil result.
type RecordStore struct {
	backend     Backend
	log         *logging.Logger
	tracer      trace.Tracer
	now         func() time.Time
	ownerLimit  int
	statusLimit int
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithLogger overrides the logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *RecordStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultLimits sets the limits used when callers pass limit <= 0.
func WithDefaultLimits(owner, status int) Option {
	return func(s *RecordStore) {
		if owner > 0 {
			s.ownerLimit = owner
		}
		if status > 0 {
			s.statusLimit = status
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *RecordStore {
	s := &RecordStore{
		backend:     backend,
		log:         logging.Nop(),
		tracer:      observability.Tracer(),
		now:         func() time.Time { return time.Now().UTC() },
		ownerLimit:  DefaultOwnerLimit,
		statusLimit: DefaultStatusLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "record_store", "backend", backend.Name())
	return s
}

// Backend returns the wrapped backend name.
func (s *RecordStore) Backend() string {
	return s.backend.Name()
}

// Upsert converts payload to a JSON-safe document and writes it with status. It
// reports false on any failure.
func (s *RecordStore) Upsert(ctx context.Context, activityID, owner string, payload any, status string) (bool, *Record) {
	ctx, done := s.begin(ctx, "upsert", activityID)

	doc, err := toDocument(payload)
	if err != nil {
		done(err, false)
		return false, nil
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		done(fmt.Errorf("encode payload: %w", err), false)
		return false, nil
	}

	stored, err := s.backend.Upsert(ctx, Row{
		ActivityID: activityID,
		UserID:     owner,
		Status:     status,
		Data:       string(data),
		UpdatedAt:  s.now(),
	})
	if err != nil {
		done(err, false)
		return false, nil
	}
	if strings.TrimSpace(stored.UserID) != strings.TrimSpace(owner) {
		s.log.Warn("owner mismatch on upsert; stored owner kept",
			"activity_id", activityID,
			"stored_owner", stored.UserID,
			"requested_owner", owner,
		)
	}
	done(nil, false)
	observability.RecordWrite(stored.UpdatedAt)

	return true, &Record{
		ActivityID: stored.ActivityID,
		Owner:      stored.UserID,
		Status:     stored.Status,
		Payload:    doc,
		UpdatedAt:  stored.UpdatedAt,
	}
}

// Get returns the record or nil when it is missing or cannot be read.
func (s *RecordStore) Get(ctx context.Context, activityID string) *Record {
	ctx, done := s.begin(ctx, "get", activityID)

	row, err := s.backend.Get(ctx, activityID)
	if err != nil {
		done(err, false)
		return nil
	}
	if row == nil {
		done(nil, true)
		return nil
	}
	rec, err := decodeRow(*row)
	if err != nil {
		done(err, false)
		return nil
	}
	done(nil, false)
	return &rec
}

// ListAll returns every record in backend order.
func (s *RecordStore) ListAll(ctx context.Context) []Record {
	return s.list(ctx, "list_all", Filter{})
}

// ListByOwner returns the owner's records, optionally narrowed by status.
func (s *RecordStore) ListByOwner(ctx context.Context, owner, status string, limit int) []Record {
	if limit <= 0 {
		limit = s.ownerLimit
	}
	return s.list(ctx, "list_by_owner", Filter{Owner: owner, Status: status, Limit: limit})
}

// ListByStatus returns records in the given status.
func (s *RecordStore) ListByStatus(ctx context.Context, status string, limit int) []Record {
	if limit <= 0 {
		limit = s.statusLimit
	}
	return s.list(ctx, "list_by_status", Filter{Status: status, Limit: limit})
}

// UpdateStatus changes only status and updated_at.
func (s *RecordStore) UpdateStatus(ctx context.Context, activityID, status string) bool {
	ctx, done := s.begin(ctx, "update_status", activityID)

	at := s.now()
	ok, err := s.backend.UpdateStatus(ctx, activityID, status, at)
	if err != nil {
		done(err, false)
		return false
	}
	done(nil, !ok)
	if ok {
		observability.RecordWrite(at)
	}
	return ok
}

// Delete removes the record.
func (s *RecordStore) Delete(ctx context.Context, activityID string) bool {
	ctx, done := s.begin(ctx, "delete", activityID)

	ok, err := s.backend.Delete(ctx, activityID)
	if err != nil {
		done(err, false)
		return false
	}
	done(nil, !ok)
	return ok
}

func (s *RecordStore) list(ctx context.Context, op string, f Filter) []Record {
	ctx, done := s.begin(ctx, op, "")

	rows, err := s.backend.List(ctx, f)
	if err != nil {
		done(err, false)
		return []Record{}
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			s.log.Warn("skipping malformed row", "op", op, "activity_id", row.ActivityID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	done(nil, false)
	return out
}

// begin opens a span for op and returns a function that closes it, logs
// failures and counts the outcome.
func (s *RecordStore) begin(ctx context.Context, op, activityID string) (context.Context, func(err error, missing bool)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("store.backend", s.backend.Name()),
		attribute.String("store.op", op),
	}
	if activityID != "" {
		attrs = append(attrs, attribute.String("activity.id", activityID))
	}
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error, missing bool) {
		defer span.End()
		result := observability.ResultOK
		switch {
		case err != nil:
			result = observability.ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error("store operation failed", "op", op, "activity_id", activityID, "error", err)
		case missing:
			result = observability.ResultMissing
		}
		observability.RecordStoreOperation(s.backend.Name(), op, result, time.Since(start))
	}
}

func toDocument(payload any) (document.Value, error) {
	doc, err := document.FromGo(payload)
	if err != nil {
		return document.Value{}, fmt.Errorf("convert payload: %w", err)
	}
	if doc.IsNull() {
		return document.Object(), nil
	}
	return document.Normalize(doc)
}

// ErrMalformedRow wraps payload decoding failures.
var ErrMalformedRow = errors.New("malformed row")

func decodeRow(row Row) (Record, error) {
	payload := document.Object()
	if strings.TrimSpace(row.Data) != "" {
		parsed, err := document.Parse([]byte(row.Data))
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, row.ActivityID, err)
		}
		payload = parsed
	}
	return Record{
		ActivityID: row.ActivityID,
		Owner:      row.UserID,
		Status:     row.Status,
		Payload:    payload,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
