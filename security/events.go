package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Authentication events

	// EventLoginSuccess is logged when a user authenticates successfully.
	EventLoginSuccess = "login_success"

	// EventLoginFailure is logged when a login attempt fails; the reason
	// (unknown user, bad password, internal fault) travels in the details.
	EventLoginFailure = "login_failure"

	// EventRegistrationSuccess is logged when a new account is created.
	EventRegistrationSuccess = "registration_success"

	// EventRegistrationFailure is logged when registration is rejected,
	// including validation failures and duplicate username/email conflicts.
	EventRegistrationFailure = "registration_failure"

	// EventUnauthorizedAccess is logged when a request carries a missing,
	// invalid, or expired bearer token, or targets another user's resource.
	EventUnauthorizedAccess = "unauthorized_access"

	// Resource mutation events

	// EventTaskCreated is logged when a task is created.
	EventTaskCreated = "task_created"

	// EventTaskUpdated is logged when a task is mutated; before/after field
	// values travel in the details.
	EventTaskUpdated = "task_updated"

	// EventTaskDeleted is logged when a task is deleted.
	EventTaskDeleted = "task_deleted"

	// Operational events

	// EventRateLimitExceeded is logged when an authentication endpoint
	// rejects a client for exceeding its rate limit.
	EventRateLimitExceeded = "rate_limit_exceeded"
)
