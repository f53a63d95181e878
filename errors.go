package taskwarden

import "github.com/taskwarden/taskwarden/server"

// APIError is the service error taxonomy, re-exported so embedding callers
// can match failures without importing the server package.
type APIError = server.APIError

// Error taxonomy codes.
const (
	ErrorCodeValidation        = server.ErrorCodeValidation
	ErrorCodeUnauthenticated   = server.ErrorCodeUnauthenticated
	ErrorCodeNotFound          = server.ErrorCodeNotFound
	ErrorCodeConflict          = server.ErrorCodeConflict
	ErrorCodeServerError       = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded = server.ErrorCodeRateLimitExceeded
)
