package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrSubmissionInFlight   = errors.New("a submission is already in progress")
	ErrTermsNotAccepted     = errors.New("terms of service not accepted")
	ErrPlaceWithoutGeometry = errors.New("selected place has no coordinates")
	ErrNotSignedIn          = errors.New("not signed in")
)

// FieldName identifies a required draft field.
type FieldName string

const (
	FieldImage    FieldName = "image"
	FieldLocation FieldName = "location"
)

func RatingField(c Category) FieldName { return FieldName("rating:" + string(c)) }

// ValidationError lists every missing required field. It blocks submission.
type ValidationError struct {
	Missing []FieldName
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return "missing required fields: " + strings.Join(names, ", ")
}

// PolicyWarning is a soft content-policy hit the user may override.
type PolicyWarning struct {
	Field string `json:"field"`
	Term  string `json:"term"`
}

// PolicyError is returned when warnings exist and the caller has not confirmed.
type PolicyError struct {
	Warnings []PolicyWarning
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("content policy: %d term(s) flagged, confirmation required", len(e.Warnings))
}

// TransportError is any failed backend exchange. Message is user-facing.
type TransportError struct {
	Status  int // 0 when no response was received
	Message string
	Err     error
}

func (e *TransportError) Error() string { return e.Message }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the bearer token is missing, invalid or expired.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication required: " + e.Reason }
