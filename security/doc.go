// Package security provides the security surfaces of taskwarden: structured
// audit/security event recording, client IP extraction, request IDs, response
// security headers, and rate limiting for the authentication endpoints.
//
// The audit recorder is asynchronous and fire-and-forget relative to the main
// operation: a bounded buffer and a single writer goroutine serialize writes,
// and a logging fault can never fail the primary request.
package security
