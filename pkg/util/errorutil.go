package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes for the queue engine. STALE_TRANSITION and NO_CANDIDATE are
// expected outcomes, not faults; callers must branch on the code rather
// than treat every DomainError as a failure.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeInvalidPriority   = "INVALID_PRIORITY"
	CodeUnknownEncounter  = "UNKNOWN_ENCOUNTER"
	CodeNotInProgress     = "NOT_IN_PROGRESS"
	CodePhysicianMismatch = "PHYSICIAN_MISMATCH"
	CodeStaleTransition   = "STALE_TRANSITION"
	CodeContention        = "CONTENTION"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternalError     = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInvalidToken() error {
	return NewDomainError(CodeInvalidToken, "validation token not recognized", http.StatusNotFound, nil)
}

func NewInvalidPriority(value string) error {
	return NewDomainError(CodeInvalidPriority, "priority must be one of LOW, NORMAL, HIGH, URGENT", http.StatusBadRequest, map[string]any{"priority": value})
}

func NewUnknownEncounter(encounterRef string) error {
	return NewDomainError(CodeUnknownEncounter, "encounter reference could not be resolved", http.StatusUnprocessableEntity, map[string]any{"encounter_ref": encounterRef})
}

func NewNotInProgress(currentStatus string) error {
	return NewDomainError(CodeNotInProgress, "ticket is not in progress", http.StatusConflict, map[string]any{"status": currentStatus})
}

func NewPhysicianMismatch() error {
	return NewDomainError(CodePhysicianMismatch, "ticket was called by a different physician", http.StatusForbidden, nil)
}

// NewStaleTransition marks a compare-and-swap that lost its race. It is
// recoverable by design; callers decide whether to retry or treat the
// other path's win as success.
func NewStaleTransition(id string, expected, actual string) error {
	return &DomainError{
		Code:       CodeStaleTransition,
		Message:    "ticket status changed concurrently",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"id": id, "expected_status": expected, "actual_status": actual},
	}
}

// NewContention signals an exhausted call-next retry budget. The external
// caller retries with backoff.
func NewContention(attempts int) error {
	return NewDomainError(CodeContention, "call-next retry budget exhausted", http.StatusConflict, map[string]any{"attempts": attempts})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// IsStaleTransition reports whether err is a lost compare-and-swap.
func IsStaleTransition(err error) bool {
	return HasCode(err, CodeStaleTransition)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
