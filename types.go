package taskwarden

import (
	"time"

	"github.com/taskwarden/taskwarden/storage"
	"github.com/taskwarden/taskwarden/validate"
)

// TokenResponse is the successful login response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserResponse is the external representation of an account. The password
// hash never appears here.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskResponse is the external representation of a task. State is always the
// string "done" or "pending"; description is omitted when absent.
type TaskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskListResponse wraps a task page with its pagination echo.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Count  int            `json:"count"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// FieldViolation is one field-addressable validation failure.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error envelope. Details is present only for
// validation failures.
type ErrorResponse struct {
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description"`
	Details          []FieldViolation `json:"details,omitempty"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status string `json:"status"`
}

func newUserResponse(u *storage.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func newTaskResponse(t *storage.Task) TaskResponse {
	state := "pending"
	if t.Done {
		state = "done"
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		State:       state,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func newTaskListResponse(tasks []*storage.Task, offset, limit int) TaskListResponse {
	out := TaskListResponse{
		Tasks:  make([]TaskResponse, 0, len(tasks)),
		Count:  len(tasks),
		Offset: offset,
		Limit:  limit,
	}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, newTaskResponse(t))
	}
	return out
}

func newViolations(errs []validate.FieldError) []FieldViolation {
	out := make([]FieldViolation, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldViolation{Field: e.Field, Message: e.Message})
	}
	return out
}
