package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContent is returned when ingestion produced no chunks.
	ErrEmptyContent = errors.New("no content extracted")

	// ErrEmbeddingMismatch is returned when a provider's output does not line up with its input.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")

	ErrCollectionNotFound = errors.New("collection not found")
)

// UpstreamError reports a failed call to an external collaborator.
type UpstreamError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Service, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return e.Service + ": unavailable"
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError is a malformed request caught before any upstream call.
type ValidationError struct {
	Message string
	Details []FieldIssue
}

// FieldIssue describes a single failed check.
type FieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError with an optional single issue.
func NewValidationError(msg, path, issue string) *ValidationError {
	v := &ValidationError{Message: msg}
	if path != "" || issue != "" {
		v.Details = append(v.Details, FieldIssue{Path: path, Message: issue})
	}
	return v
}
