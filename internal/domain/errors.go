package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an activity does not exist or belongs to someone else.
	ErrNotFound = errors.New("activity not found")
	// ErrForbidden is returned when the caller lacks the role for an action.
	ErrForbidden = errors.New("action not permitted")
	// ErrNotEditable is returned when the owner saves a record that is no longer a draft.
	ErrNotEditable = errors.New("activity is not editable")
	// ErrInvalidTransition is returned when the lifecycle does not allow a status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation is the kind of every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrStoreFailure is returned when the record store reports a failed write.
	ErrStoreFailure = errors.New("record store unavailable")
)

// ValidationError reports a rejected input field. It is returned before any
// store call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError names the rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition.Error(), e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
