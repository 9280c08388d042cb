package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransitionInFlight is returned while another transition of the same
	// session is waiting on the network.
	ErrTransitionInFlight = errors.New("another action is still in progress")
	// ErrInvalidTransition is returned when an action is not available in the
	// current phase.
	ErrInvalidTransition = errors.New("action not available in the current state")
)

// Error kinds surfaced in SessionView.ErrorKind
const (
	KindCatalogLoad        = "catalog_load"
	KindAssignment         = "assignment"
	KindSubmit             = "submit"
	KindValidation         = "validation"
	KindAssignmentNotFound = "assignment_not_found"
	KindInternal           = "internal"
)

// CatalogLoadError means texts.json could not be fetched or decoded
type CatalogLoadError struct {
	Status int
	Err    error
}

func (e *CatalogLoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to load texts: HTTP %d", e.Status)
	}
	return fmt.Sprintf("failed to load texts: %v", e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// AssignmentError means the allocation request failed or was refused
type AssignmentError struct {
	Message string
	Err     error
}

func (e *AssignmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assignment error: %s: %v", e.Message, e.Err)
	}
	return "assignment error: " + e.Message
}

func (e *AssignmentError) Unwrap() error { return e.Err }

// SubmitError means a questionnaire or skip submission was not acknowledged
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to submit responses: %s: %v", e.Message, e.Err)
	}
	return "failed to submit responses: " + e.Message
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ValidationError lists what the participant still has to fill in
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

// AssignmentNotFoundError means the assignment names a text the loaded
// catalog does not have, usually a stale texts.json.
type AssignmentNotFoundError struct {
	TextID string
}

func (e *AssignmentNotFoundError) Error() string {
	return fmt.Sprintf("text not found in texts.json for text_id=%s; the cached texts are probably older than the assignment, reload to fetch the current catalog", e.TextID)
}

// ErrorKind classifies err for SessionView
func ErrorKind(err error) string {
	var (
		catErr  *CatalogLoadError
		asgErr  *AssignmentError
		subErr  *SubmitError
		valErr  *ValidationError
		missErr *AssignmentNotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &catErr):
		return KindCatalogLoad
	case errors.As(err, &asgErr):
		return KindAssignment
	case errors.As(err, &subErr):
		return KindSubmit
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &missErr):
		return KindAssignmentNotFound
	}
	return KindInternal
}
