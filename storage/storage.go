// Package storage defines interfaces for persisting users and tasks.
// It supports various backend implementations including in-memory and SQLite.
package storage

import (
	"context"
	"errors"
	"time"
)

// MaxListLimit caps the number of tasks returned by a single ListByOwner call,
// regardless of what the caller requests.
const MaxListLimit = 1000

// Sentinel errors returned by store implementations. Callers match these with
// errors.Is and translate them into the API error taxonomy at the boundary.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateUsername indicates a unique-constraint violation on username.
	ErrDuplicateUsername = errors.New("storage: username already exists")

	// ErrDuplicateEmail indicates a unique-constraint violation on email.
	ErrDuplicateEmail = errors.New("storage: email already exists")
)

// User represents a registered account. The password hash is never serialized
// to clients; only stores and the credential codec see it.
type User struct {
	ID           string
	Username     string // stored lowercase, unique
	Email        string // stored lowercase, unique
	PasswordHash string
	CreatedAt    time.Time
}

// Task represents a single TODO item owned by exactly one user.
// Done is the internal two-valued completion state; the external
// representation is always the string "done" or "pending".
type Task struct {
	ID          string
	Title       string
	Description string // empty string means absent
	Done        bool
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserStore defines the interface for user persistence.
// All methods accept context.Context for tracing and cancellation.
type UserStore interface {
	// FindByUsername retrieves a user by lowercase username.
	// Returns ErrNotFound if no such user exists.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByEmail retrieves a user by lowercase email.
	// Returns ErrNotFound if no such user exists.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	// Returns ErrNotFound if no such user exists.
	FindByID(ctx context.Context, id string) (*User, error)

	// InsertUser persists a new user. Returns ErrDuplicateUsername or
	// ErrDuplicateEmail on unique-constraint violations.
	InsertUser(ctx context.Context, user *User) error
}

// TaskStore defines the interface for task persistence.
// All methods accept context.Context for tracing and cancellation.
type TaskStore interface {
	// InsertTask persists a new task.
	InsertTask(ctx context.Context, task *Task) error

	// FindTaskByID retrieves a task by ID.
	// Returns ErrNotFound if no such task exists.
	FindTaskByID(ctx context.Context, id string) (*Task, error)

	// ListTasksByOwner returns the owner's tasks ordered by creation time
	// descending. limit is capped at MaxListLimit; a non-positive limit
	// uses the cap.
	ListTasksByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*Task, error)

	// UpdateTask persists changes to an existing task. The read-then-write
	// pair for a mutation shares one transaction boundary inside the
	// implementation. Returns ErrNotFound if the task no longer exists.
	UpdateTask(ctx context.Context, task *Task) error

	// DeleteTask removes a task. Returns ErrNotFound if the task no longer
	// exists.
	DeleteTask(ctx context.Context, id string) error
}

// Store combines user and task persistence. Backends implement both so a
// single handle (and connection pool) serves the whole request path.
type Store interface {
	UserStore
	TaskStore
}

// ClampLimit applies the MaxListLimit cap shared by all backends.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
