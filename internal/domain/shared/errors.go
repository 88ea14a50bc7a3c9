// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrConflict        = errors.New("conflict")
	ErrCancelled       = errors.New("cancelled")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "risk", "student", "intervention"
	Op      string // Operation that failed, e.g., "Classify", "Assign"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the error's Kind, the underlying error, or another DomainError
// with the same Domain, Op and Kind.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Kind == t.Kind
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *DomainError) WithMessage(msg string) *DomainError {
	c := *e
	c.Message = msg
	return &c
}

// Wrap returns a copy of e wrapping err.
func (e *DomainError) Wrap(err error) *DomainError {
	c := *e
	c.Err = err
	return &c
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field details alongside a domain error.
type ValidationError struct {
	*DomainError
	Fields []FieldError
}

// Unwrap exposes the embedded DomainError to errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.DomainError
}

// Risk domain errors
var (
	ErrInvalidMetric     = NewDomainError("risk", "Classify", ErrValueOutOfRange, "invalid student metric")
	ErrInvalidThresholds = NewDomainError("risk", "NewClassifier", ErrValidation, "invalid risk thresholds")
	ErrInvalidTier       = NewDomainError("risk", "NormalizeTier", ErrInvalidInput, "unrecognized risk tier")
	ErrPolicyNotFound    = NewDomainError("risk", "LoadPolicy", ErrNotFound, "no persisted risk policy")
)

// Student domain errors
var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrRegistryEmpty   = NewDomainError("student", "Snapshot", ErrInvalidState, "registry has not been loaded")
)

// Intervention domain errors
var (
	ErrInterventionNotFound = NewDomainError("intervention", "Find", ErrNotFound, "intervention not found")
	ErrUnknownStudent       = NewDomainError("intervention", "Assign", ErrNotFound, "unknown student")
	ErrInvalidAssignment    = NewDomainError("intervention", "Assign", ErrInvalidInput, "invalid intervention input")
	ErrInvalidStatus        = NewDomainError("intervention", "UpdateStatus", ErrInvalidInput, "invalid intervention status")
	ErrReopenNotAllowed     = NewDomainError("intervention", "UpdateStatus", ErrStateTransition, "completed interventions cannot be reopened")
	ErrDocumentNotFound     = NewDomainError("intervention", "OpenDocument", ErrNotFound, "document not found")
)

// Report errors
var (
	ErrReportGenerationFailed = NewDomainError("report", "Generate", ErrExternalService, "Failed to generate report")
	ErrInvalidReportKind      = NewDomainError("report", "Request", ErrInvalidInput, "unknown report kind")
	ErrReportInFlight         = NewDomainError("report", "Request", ErrConflict, "a report of this kind is already being generated")
	ErrReportCancelled        = NewDomainError("report", "Request", ErrCancelled, "report request was cancelled")
	ErrReportNotReady         = NewDomainError("report", "Download", ErrNotFound, "no generated report available")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsConflict checks if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStateTransition)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
