package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoTaskAvailable          = errors.New("no document available for review")
	ErrLeaseUnavailable         = errors.New("document lease is held by another reviewer")
	ErrLeaseExpired             = errors.New("lease expired or not held")
	ErrValidationFailed         = errors.New("review submission failed validation")
	ErrConflictNotFound         = errors.New("assertion is not in pending conflict")
	ErrAlreadyArbitrated        = errors.New("assertion already arbitrated with a different decision")
	ErrAuthRequired             = errors.New("authentication required")
	ErrForbidden                = errors.New("admin role required")
	ErrDocumentNotFound         = errors.New("document not found")
	ErrAssertionNotFound        = errors.New("assertion not found")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidDocument          = errors.New("invalid document")
	ErrIdempotencyKeyConflict   = errors.New("idempotency key reused with different request")
	ErrConfirmationRequired     = errors.New("snapshot export requires explicit confirmation")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)

type ViolationLevel string

const (
	ViolationLevelError   ViolationLevel = "error"
	ViolationLevelWarning ViolationLevel = "warning"
)

// Violation is one field-anchored validation finding. AssertionIndex is nil for
// newly added assertions that have no index yet; Addition marks those.
type Violation struct {
	Level          ViolationLevel
	Code           string
	Message        string
	Field          string
	SentenceIndex  int
	AssertionIndex *int
	AdditionIndex  *int
	Addition       bool
	Suggestion     *FuzzySuggestion
}

type FuzzySuggestion struct {
	Text  string
	Score float64
}

// ValidationError carries the full itemized violation list and matches
// ErrValidationFailed through errors.Is.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d violation(s)", ErrValidationFailed.Error(), len(e.Errors()))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// Errors returns only blocking violations.
func (e *ValidationError) Errors() []Violation {
	out := make([]Violation, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Level == ViolationLevelError {
			out = append(out, v)
		}
	}
	return out
}
