package integration

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Request errors
	ErrInvalidRequest  = errors.New("integration: invalid request")
	ErrCallbackMissing = errors.New("integration: a callback function was not provided")
	ErrCallbackFailed  = errors.New("integration: the callback function returned an error")
	ErrUnknownFunction = errors.New("integration: unknown connector function")

	// Platform errors
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")

	// Reconciliation errors
	ErrMultipleMatches = errors.New("integration: multiple matching records")
	ErrRecordNotFound  = errors.New("integration: matching record not found")
	ErrMissingDetail   = errors.New("integration: detail missing from bulk response")
)

// ---------------------------------------------------------------------------
// ValidationError
// ---------------------------------------------------------------------------

// ValidationError reports structural or semantic defects in the call arguments.
// It is raised before any network call and always maps to 400.
type ValidationError struct {
	Messages []string
}

// NewValidationError creates a ValidationError from the collected messages.
func NewValidationError(messages []string) *ValidationError {
	return &ValidationError{Messages: append([]string(nil), messages...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid request [%s]", strings.Join(e.Messages, " "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// ---------------------------------------------------------------------------
// RemoteStatusError
// ---------------------------------------------------------------------------

// RemoteStatusError is returned when the remote platform answers with a non-2xx status.
type RemoteStatusError struct {
	StatusCode int
	Message    string
	Method     string
	URL        string
	Body       any
}

func (e *RemoteStatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %s %s returned %d: %s", ErrPlatformRequestFailed, e.Method, e.URL, e.StatusCode, msg)
}

func (e *RemoteStatusError) Unwrap() error { return ErrPlatformRequestFailed }

// Is reports throttled responses as ErrPlatformRateLimited.
func (e *RemoteStatusError) Is(target error) bool {
	return target == ErrPlatformRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// ---------------------------------------------------------------------------
// SchemaError
// ---------------------------------------------------------------------------

// SchemaError means a remote response body did not have the expected shape.
type SchemaError struct {
	Reason string
	Body   any
}

// NewSchemaError creates a SchemaError describing the offending body.
func NewSchemaError(reason string, body any) *SchemaError {
	return &SchemaError{Reason: reason, Body: body}
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPlatformInvalidResponse, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrPlatformInvalidResponse }

// ---------------------------------------------------------------------------
// ConflictError
// ---------------------------------------------------------------------------

// ConflictError reports an ambiguous identity: more than one record matched.
// Records carries the whole conflicting set for diagnosis.
type ConflictError struct {
	Subject string
	Records []any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %d %s matched", ErrMultipleMatches, len(e.Records), e.Subject)
}

func (e *ConflictError) Unwrap() error { return ErrMultipleMatches }

// ---------------------------------------------------------------------------
// MissingDetailError
// ---------------------------------------------------------------------------

// MissingDetailError names an id that a bulk detail response did not return.
type MissingDetailError struct {
	ID string
}

func (e *MissingDetailError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingDetail, e.ID)
}

func (e *MissingDetailError) Unwrap() error { return ErrMissingDetail }

// ---------------------------------------------------------------------------
// CallbackError
// ---------------------------------------------------------------------------

// CallbackError wraps a failure returned by the caller's callback.
// It is the only error a connector function returns after validation has begun.
type CallbackError struct {
	Function string
	Err      error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCallbackFailed, e.Function, e.Err)
}

func (e *CallbackError) Unwrap() []error { return []error{ErrCallbackFailed, e.Err} }
