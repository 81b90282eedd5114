// Package apperrors provides the structured error taxonomy for export operations.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrTransport        = errors.New("transport error")
	ErrAuth             = errors.New("authentication rejected")
	ErrAPI              = errors.New("api error")
	ErrTimedOut         = errors.New("export timed out")
	ErrExportFailed     = errors.New("export failed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Error provides a structured error with context.
type Error struct {
	Sentinel   error  // Wrapped sentinel for errors.Is() classification
	Message    string // Human-readable message
	Op         string // Operation that failed (e.g. "powerbi.submit")
	StatusCode int    // HTTP status for auth/API errors
	Body       string // Response body excerpt for API errors
	Cause      error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Transport creates a transport error for a connectivity or timeout fault.
func Transport(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Auth creates an authentication error for a 401/403 response.
func Auth(op string, status int) error {
	return &Error{
		Sentinel:   ErrAuth,
		Message:    fmt.Sprintf("%s: credentials rejected (HTTP %d)", op, status),
		Op:         op,
		StatusCode: status,
	}
}

// API creates an error for a well-formed rejection by the service.
func API(op string, status int, body string) error {
	return &Error{
		Sentinel:   ErrAPI,
		Message:    fmt.Sprintf("%s: HTTP %d", op, status),
		Op:         op,
		StatusCode: status,
		Body:       body,
	}
}

// TimedOut creates an error for a polling window that elapsed without a
// terminal status.
func TimedOut(reportID string, window time.Duration) error {
	return &Error{
		Sentinel: ErrTimedOut,
		Message:  fmt.Sprintf("export of report %s saw no terminal status within %s", reportID, window),
	}
}

// ExportFailed creates an error for a Failed status with no retry eligibility.
func ExportFailed(reportID string) error {
	return &Error{
		Sentinel: ErrExportFailed,
		Message:  fmt.Sprintf("service reported export of report %s as failed", reportID),
	}
}

// RetriesExhausted creates an error for an export that consumed every attempt
// without succeeding. Distinct from a propagated client fault: the service kept
// answering, it just never produced an artifact.
func RetriesExhausted(reportID string, attempts int) error {
	return &Error{
		Sentinel: ErrRetriesExhausted,
		Message:  fmt.Sprintf("export of report %s did not succeed after %d attempts", reportID, attempts),
	}
}
