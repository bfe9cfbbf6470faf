package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by ArtifactStore.CompareAndSwap when the
// stored version no longer matches the expected one.
var ErrVersionConflict = errors.New("artifact version conflict")

// AuthenticationError means the credential could not be resolved to a caller.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not authenticated: %s: %v", e.Reason, e.Err)
	}
	return "not authenticated: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// PermissionError means the caller is authenticated but not allowed.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Reason
}

// NotEnrolledError means the student has no enrollment for the course.
type NotEnrolledError struct {
	StudentID string
	CourseID  string
}

func (e *NotEnrolledError) Error() string {
	return fmt.Sprintf("student '%s' is not enrolled in course '%s'", e.StudentID, e.CourseID)
}

// TemplateMissingError means no template was configured for the course and kind yet.
type TemplateMissingError struct {
	CourseID string
	Kind     Kind
}

func (e *TemplateMissingError) Error() string {
	return fmt.Sprintf("no %s template configured for course '%s'", e.Kind, e.CourseID)
}

// MissingPhotoError means a card was requested and no portrait is available.
type MissingPhotoError struct {
	StudentID string
}

func (e *MissingPhotoError) Error() string {
	return fmt.Sprintf("no photo available for student '%s', upload a photo first", e.StudentID)
}

// NotYetAvailableError is the normal "come back later" outcome of the eligibility gate.
type NotYetAvailableError struct {
	AvailableAt   time.Time
	DaysRemaining int
}

func (e *NotYetAvailableError) Error() string {
	return fmt.Sprintf("artifact available at %s (%d day(s) remaining)",
		e.AvailableAt.UTC().Format(time.RFC3339), e.DaysRemaining)
}

// CompositionError indicates a template/data mismatch.
// It is a server-side defect, not caused by the user.
type CompositionError struct {
	Field  string
	Reason string
	Err    error
}

func (e *CompositionError) Error() string {
	msg := "composition failed"
	if e.Field != "" {
		msg += fmt.Sprintf(" (field '%s')", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// ValidationError rejects malformed input such as an invalid template.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a commit kept losing against concurrent writers.
// The caller may retry the whole operation.
type ConflictError struct {
	Key ArtifactKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update of artifact '%s', retry later", e.Key)
}

// RateLimitedError is returned when a caller exceeded the request budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

// UnavailableError wraps transient I/O failures of collaborators.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
