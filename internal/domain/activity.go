package domain

import (
	"strings"
	"time"

	"github.com/vpriesta/mds-form/internal/document"
)

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusSubmitted         Status = "submitted"
	StatusVerified          Status = "verified"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusSubmitted, StatusVerified, StatusRejected, StatusRevisionRequested}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Editable reports whether the owner may still save the record.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRevisionRequested
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransition reports whether the lifecycle allows moving from one status to
// another. Saving a draft or a record under revision keeps its status.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusDraft || to == StatusSubmitted
	case StatusRevisionRequested:
		return to == StatusRevisionRequested || to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusVerified || to == StatusRevisionRequested || to == StatusRejected
	default:
		return false
	}
}

// Roles known to the service.
const (
	RoleUser     = "user"
	RoleVerifier = "verifier"
)

// Caller identifies who performs an operation.
type Caller struct {
	Username string
	Role     string
}

// IsVerifier reports whether the caller holds the verifier role.
func (c Caller) IsVerifier() bool {
	return strings.EqualFold(strings.TrimSpace(c.Role), RoleVerifier)
}

func (c Caller) owns(rec *Record) bool {
	return strings.TrimSpace(rec.Owner) == strings.TrimSpace(c.Username)
}

// Record is an activity as seen by the lifecycle service.
type Record struct {
	ID        string
	Owner     string
	Status    Status
	Payload   document.Value
	UpdatedAt time.Time
}

// Payload keys written by reviewer actions.
const (
	KeyLastSaved           = "last_saved"
	KeyRevisionNote        = "revision_note"
	KeyRevisionRequestedAt = "revision_requested_at"
	KeyRejectionReason     = "rejection_reason"
	KeyRejectedAt          = "rejected_at"
	KeyVerifiedBy          = "verified_by"
	KeyVerifierComment     = "verifier_comment"
	KeyVerifiedAt          = "verified_at"
)
