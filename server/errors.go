package server

import (
	"fmt"
	"net/http"

	"github.com/taskwarden/taskwarden/validate"
)

// API error codes as constants
const (
	ErrorCodeValidation        = "validation_error"
	ErrorCodeUnauthenticated   = "unauthenticated"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeConflict          = "conflict"
	ErrorCodeServerError       = "server_error"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// APIError represents a terminal request failure in the taskwarden taxonomy.
// Validation failures additionally carry field-addressable violations.
type APIError struct {
	Code        string                // taxonomy code (e.g. "validation_error")
	Description string                // human-readable error description
	Status      int                   // HTTP status code
	Fields      []validate.FieldError // per-field violations, validation only
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewAPIError creates a new API error
func NewAPIError(code, description string, status int) *APIError {
	return &APIError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common API errors as reusable constructors
var (
	// ErrValidation indicates malformed or out-of-policy input; always
	// user-correctable, never retried by the server.
	ErrValidation = func(errs validate.Errors) *APIError {
		return &APIError{
			Code:        ErrorCodeValidation,
			Description: "Validation failed",
			Status:      http.StatusUnprocessableEntity,
			Fields:      errs,
		}
	}

	// ErrUnauthenticated indicates a missing/invalid/expired token or bad
	// credentials
	ErrUnauthenticated = func(desc string) *APIError {
		return NewAPIError(ErrorCodeUnauthenticated, desc, http.StatusUnauthorized)
	}

	// ErrNotFound indicates a resource that is absent or not owned by the
	// requester; the two cases are indistinguishable by design
	ErrNotFound = func(desc string) *APIError {
		return NewAPIError(ErrorCodeNotFound, desc, http.StatusNotFound)
	}

	// ErrConflict indicates a duplicate username or email on registration
	ErrConflict = func(desc string) *APIError {
		return NewAPIError(ErrorCodeConflict, desc, http.StatusConflict)
	}

	// ErrServerError indicates an unexpected store or signing failure,
	// surfaced without internal detail
	ErrServerError = func(desc string) *APIError {
		return NewAPIError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimited indicates the client exceeded an authentication
	// endpoint's rate limit
	ErrRateLimited = func(desc string) *APIError {
		return NewAPIError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)
