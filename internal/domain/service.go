// Package domain implements the activity lifecycle: ownership rules, the status
// state machine and the reviewer actions.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/events"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/observability"
	"github.com/vpriesta/mds-form/internal/store"
)

// RecordStore captures the persistence operations the service relies on.
// Failures are reported as false or nil, never as errors.
type RecordStore interface {
	Upsert(ctx context.Context, activityID, owner string, payload any, status string) (bool, *store.Record)
	Get(ctx context.Context, activityID string) *store.Record
	ListAll(ctx context.Context) []store.Record
	ListByOwner(ctx context.Context, owner, status string, limit int) []store.Record
	ListByStatus(ctx context.Context, status string, limit int) []store.Record
	UpdateStatus(ctx context.Context, activityID, status string) bool
	Delete(ctx context.Context, activityID string) bool
}

// Service orchestrates activity workflows.
type Service struct {
	store     RecordStore
	publisher events.Publisher
	log       *logging.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the status-change event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides activity id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs a Service.
func NewService(st RecordStore, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: events.NoopPublisher{},
		log:       logging.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "lifecycle")
	return s
}

// Create saves payload as a new draft owned by the caller. A payload carrying an
// activity_id member gets the generated id written into it.
func (s *Service) Create(ctx context.Context, caller Caller, payload document.Value) (*Record, error) {
	if strings.TrimSpace(caller.Username) == "" {
		return nil, invalid("owner", "caller is required")
	}
	id := s.newID()
	if _, ok := payload.Get("activity_id"); ok {
		payload = payload.Clone()
		payload.Set("activity_id", document.String(id))
	}
	rec, err := s.write(ctx, id, caller.Username, payload, StatusDraft)
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, rec, "", caller, "")
	return rec, nil
}

// SaveDraft replaces the payload of the caller's editable record, creating the
// draft when the id is new. Records owned by someone else are reported as not found.
func (s *Service) SaveDraft(ctx context.Context, caller Caller, activityID string, payload document.Value) error {
	if err := requireID(activityID); err != nil {
		return err
	}
	existing, err := s.editable(ctx, caller, activityID)
	if err != nil {
		return err
	}
	return s.saveDraft(ctx, caller, activityID, existing, payload)
}

// SaveSection replaces one top-level section of the caller's record and stamps
// last_saved. A new id starts from an empty document.
func (s *Service) SaveSection(ctx context.Context, caller Caller, activityID, section string, value document.Value) error {
	if err := requireID(activityID); err != nil {
		return err
	}
	if strings.TrimSpace(section) == "" {
		return invalid("section", "section name is required")
	}
	existing, err := s.editable(ctx, caller, activityID)
	if err != nil {
		return err
	}

	payload := document.Object()
	if existing != nil {
		payload = existing.Payload.Clone()
	}
	payload.Set(section, value.Clone())
	payload.Set(KeyLastSaved, document.String(s.now().Format(time.RFC3339)))
	return s.saveDraft(ctx, caller, activityID, existing, payload)
}

// LoadForEdit returns the caller's own record. Another user's record is
// reported as not found.
func (s *Service) LoadForEdit(ctx context.Context, caller Caller, activityID string) (*Record, error) {
	if err := requireID(activityID); err != nil {
		return nil, err
	}
	rec := s.get(ctx, activityID)
	if rec == nil || !caller.owns(rec) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Get returns a record to its owner or to a verifier.
func (s *Service) Get(ctx context.Context, caller Caller, activityID string) (*Record, error) {
	if err := requireID(activityID); err != nil {
		return nil, err
	}
	rec := s.get(ctx, activityID)
	if rec == nil || (!caller.owns(rec) && !caller.IsVerifier()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Submit moves the caller's draft or revised record to submitted.
func (s *Service) Submit(ctx context.Context, caller Caller, activityID string) error {
	if err := requireID(activityID); err != nil {
		return err
	}
	rec := s.get(ctx, activityID)
	if rec == nil || !caller.owns(rec) {
		return ErrNotFound
	}
	if rec.Status == StatusSubmitted || !CanTransition(rec.Status, StatusSubmitted) {
		return &TransitionError{From: rec.Status, To: StatusSubmitted}
	}
	if !s.store.UpdateStatus(ctx, activityID, string(StatusSubmitted)) {
		return ErrStoreFailure
	}

	from := rec.Status
	rec.Status = StatusSubmitted
	s.transitioned(ctx, rec, from, caller, "")
	return nil
}

// MarkOptions carries the optional parts of a reviewer status change.
type MarkOptions struct {
	// Verifier is recorded as verified_by when set.
	Verifier string
	// Comment is recorded as verifier_comment when set.
	Comment string
	// Edited replaces the stored payload when non-nil.
	Edited *document.Value
	// Metadata members are written into the payload.
	Metadata []document.Member
	// Note travels with the published event.
	Note string
}

// MarkStatus applies a reviewer status change. The payload is rewritten when
// it changes, otherwise only the status is updated.
func (s *Service) MarkStatus(ctx context.Context, caller Caller, activityID string, status Status, opts MarkOptions) error {
	if !caller.IsVerifier() {
		return ErrForbidden
	}
	if err := requireID(activityID); err != nil {
		return err
	}
	if _, ok := ParseStatus(string(status)); !ok {
		return invalid("status", "unknown status "+string(status))
	}
	if opts.Edited != nil {
		if opts.Edited.Kind() != document.KindObject {
			return invalid("payload", "edited payload must be an object, got "+opts.Edited.Kind().String())
		}
		if _, err := document.Normalize(*opts.Edited); err != nil {
			return invalid("payload", err.Error())
		}
	}

	rec := s.get(ctx, activityID)
	if rec == nil {
		return ErrNotFound
	}
	if rec.Status == status || !CanTransition(rec.Status, status) {
		return &TransitionError{From: rec.Status, To: status}
	}

	payload := rec.Payload
	changed := false
	if opts.Edited != nil {
		payload = opts.Edited.Clone()
		changed = true
	}
	if payload.Kind() != document.KindObject {
		payload = document.Object()
	}
	if v := strings.TrimSpace(opts.Verifier); v != "" {
		payload.Set(KeyVerifiedBy, document.String(v))
		changed = true
	}
	if c := strings.TrimSpace(opts.Comment); c != "" {
		payload.Set(KeyVerifierComment, document.String(c))
		changed = true
	}
	for _, m := range opts.Metadata {
		payload.Set(m.Key, m.Value)
		changed = true
	}

	from := rec.Status
	if changed {
		updated, err := s.write(ctx, activityID, rec.Owner, payload, status)
		if err != nil {
			return err
		}
		rec = updated
	} else {
		if !s.store.UpdateStatus(ctx, activityID, string(status)) {
			return ErrStoreFailure
		}
		rec.Status = status
	}

	s.transitioned(ctx, rec, from, caller, opts.Note)
	return nil
}

// Accept verifies a submitted record. edited, when non-nil, replaces the payload.
func (s *Service) Accept(ctx context.Context, caller Caller, activityID, comment string, edited *document.Value) error {
	if !caller.IsVerifier() {
		return ErrForbidden
	}
	return s.MarkStatus(ctx, caller, activityID, StatusVerified, MarkOptions{
		Verifier: caller.Username,
		Comment:  comment,
		Edited:   edited,
		Metadata: []document.Member{document.M(KeyVerifiedAt, s.stamp())},
		Note:     strings.TrimSpace(comment),
	})
}

// RequestRevision sends a submitted record back to its owner with a note.
func (s *Service) RequestRevision(ctx context.Context, caller Caller, activityID, note string, edited *document.Value) error {
	if !caller.IsVerifier() {
		return ErrForbidden
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return invalid("note", "a revision note is required")
	}
	return s.MarkStatus(ctx, caller, activityID, StatusRevisionRequested, MarkOptions{
		Edited: edited,
		Metadata: []document.Member{
			document.M(KeyRevisionNote, document.String(note)),
			document.M(KeyRevisionRequestedAt, s.stamp()),
		},
		Note: note,
	})
}

// Reject closes a submitted record with a reason.
func (s *Service) Reject(ctx context.Context, caller Caller, activityID, reason string, edited *document.Value) error {
	if !caller.IsVerifier() {
		return ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalid("reason", "a rejection reason is required")
	}
	return s.MarkStatus(ctx, caller, activityID, StatusRejected, MarkOptions{
		Edited: edited,
		Metadata: []document.Member{
			document.M(KeyRejectionReason, document.String(reason)),
			document.M(KeyRejectedAt, s.stamp()),
		},
		Note: reason,
	})
}

// Delete removes a record. Owners may delete their own drafts; verifiers may
// delete records in any status.
func (s *Service) Delete(ctx context.Context, caller Caller, activityID string) error {
	if err := requireID(activityID); err != nil {
		return err
	}
	rec := s.get(ctx, activityID)
	if rec == nil {
		return ErrNotFound
	}
	switch {
	case caller.IsVerifier():
	case !caller.owns(rec):
		return ErrNotFound
	case rec.Status != StatusDraft:
		return ErrForbidden
	}
	if !s.store.Delete(ctx, activityID) {
		return ErrStoreFailure
	}
	s.log.Info("activity deleted", "activity_id", activityID, "actor", caller.Username, "status", rec.Status)
	return nil
}

// Dashboard lists every record for verifiers and the caller's own records
// otherwise, optionally narrowed by status.
func (s *Service) Dashboard(ctx context.Context, caller Caller, status string) ([]Record, error) {
	var filter Status
	if strings.TrimSpace(status) != "" {
		parsed, ok := ParseStatus(status)
		if !ok {
			return nil, invalid("status", "unknown status "+status)
		}
		filter = parsed
	}

	if !caller.IsVerifier() {
		return toRecords(s.store.ListByOwner(ctx, caller.Username, string(filter), 0)), nil
	}

	all := toRecords(s.store.ListAll(ctx))
	if filter == "" {
		return all, nil
	}
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.Status == filter {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReviewQueue lists submitted records for verifiers.
func (s *Service) ReviewQueue(ctx context.Context, caller Caller, limit int) ([]Record, error) {
	if !caller.IsVerifier() {
		return nil, ErrForbidden
	}
	return toRecords(s.store.ListByStatus(ctx, string(StatusSubmitted), limit)), nil
}

// editable loads the record for an owner save. It returns nil for a new id.
func (s *Service) editable(ctx context.Context, caller Caller, activityID string) (*Record, error) {
	if strings.TrimSpace(caller.Username) == "" {
		return nil, invalid("owner", "caller is required")
	}
	existing := s.get(ctx, activityID)
	if existing == nil {
		return nil, nil
	}
	if !caller.owns(existing) {
		return nil, ErrNotFound
	}
	if !existing.Status.Editable() {
		return nil, ErrNotEditable
	}
	return existing, nil
}

func (s *Service) saveDraft(ctx context.Context, caller Caller, activityID string, existing *Record, payload document.Value) error {
	status := StatusDraft
	if existing != nil {
		status = existing.Status
	}
	rec, err := s.write(ctx, activityID, caller.Username, payload, status)
	if err != nil {
		return err
	}
	if existing == nil {
		s.transitioned(ctx, rec, "", caller, "")
	}
	return nil
}

func (s *Service) write(ctx context.Context, activityID, owner string, payload document.Value, status Status) (*Record, error) {
	if payload.IsNull() {
		payload = document.Object()
	}
	ok, stored := s.store.Upsert(ctx, activityID, owner, payload, string(status))
	if !ok || stored == nil {
		return nil, ErrStoreFailure
	}
	rec := fromStore(*stored)
	return &rec, nil
}

func (s *Service) get(ctx context.Context, activityID string) *Record {
	stored := s.store.Get(ctx, activityID)
	if stored == nil {
		return nil
	}
	rec := fromStore(*stored)
	return &rec
}

func (s *Service) transitioned(ctx context.Context, rec *Record, from Status, caller Caller, note string) {
	observability.RecordTransition(string(from), string(rec.Status))
	evt := events.ActivityStatusChanged{
		ActivityID: rec.ID,
		Owner:      rec.Owner,
		From:       string(from),
		To:         string(rec.Status),
		Actor:      caller.Username,
		Note:       note,
		Title:      formbind.Title(rec.Payload),
		OccurredAt: s.now(),
	}
	if err := s.publisher.PublishStatusChanged(ctx, evt); err != nil {
		s.log.Warn("publish status change failed", "activity_id", rec.ID, "to", rec.Status, "error", err)
	}
}

func (s *Service) stamp() document.Value {
	return document.String(s.now().Format(time.RFC3339))
}

func requireID(activityID string) error {
	if strings.TrimSpace(activityID) == "" {
		return invalid("activity_id", "activity id is required")
	}
	return nil
}

func fromStore(r store.Record) Record {
	status, ok := ParseStatus(r.Status)
	if !ok {
		status = Status(strings.TrimSpace(r.Status))
	}
	return Record{
		ID:        r.ActivityID,
		Owner:     r.Owner,
		Status:    status,
		Payload:   r.Payload,
		UpdatedAt: r.UpdatedAt,
	}
}

func toRecords(in []store.Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = fromStore(r)
	}
	return out
}
