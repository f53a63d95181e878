// Package server implements the taskwarden service operations: account
// registration and login, and per-user task management. Every operation runs
// the same pipeline: validate, authenticate, authorize, execute, audit.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskwarden/taskwarden/auth"
	"github.com/taskwarden/taskwarden/instrumentation"
	"github.com/taskwarden/taskwarden/security"
	"github.com/taskwarden/taskwarden/storage"
	"github.com/taskwarden/taskwarden/validate"
)

// Server implements the service operations over a storage backend. It is
// transport-agnostic: the HTTP layer decodes nothing, it hands the raw body
// and request provenance down so validation failures carry full audit context.
type Server struct {
	users storage.UserStore
	tasks storage.TaskStore

	hasher   *auth.Hasher
	codec    *auth.TokenCodec
	resolver *auth.Resolver

	auditor      *security.Auditor
	loginLimiter *security.RateLimiter

	config  Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	now func() time.Time
}

// New creates a server over the given store. It fails on fatal
// misconfiguration, most importantly a missing signing key.
func New(store storage.Store, config Config) (*Server, error) {
	config.applySecureDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	codec, err := auth.NewTokenCodec([]byte(config.SigningKey), config.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		users:   store,
		tasks:   store,
		hasher:  auth.NewHasher(config.BcryptCost),
		codec:   codec,
		config:  config,
		logger:  config.Logger,
		auditor: security.NewAuditorWithConfig(config.Logger, config.EnableAuditLogging, config.AuditBufferSize, security.DefaultEmitTimeout),
		now:     time.Now,
	}
	s.resolver = auth.NewResolver(codec, store)

	if config.LoginRateLimit > 0 {
		s.loginLimiter = security.NewRateLimiter(config.LoginRateLimit, config.LoginRateBurst, config.Logger)
	}

	return s, nil
}

// SetMetrics attaches an instrumentation metrics set. Safe to leave unset;
// all recorders are nil-tolerant.
func (s *Server) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// SetNow overrides the server's clock. Intended for tests.
func (s *Server) SetNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Codec exposes the token codec, used by tests to mint tokens directly.
func (s *Server) Codec() *auth.TokenCodec {
	return s.codec
}

// Auditor exposes the audit recorder so the transport layer can record
// unauthorized-access events with the same sink.
func (s *Server) Auditor() *security.Auditor {
	return s.auditor
}

// Close flushes the audit buffer and stops background workers.
func (s *Server) Close() {
	s.auditor.Close()
	if s.loginLimiter != nil {
		s.loginLimiter.Stop()
	}
}

// Authenticate resolves a bearer token to a user. Failures surface as
// unauthenticated regardless of whether the token or its subject was the
// problem.
func (s *Server) Authenticate(ctx context.Context, token string) (*storage.User, error) {
	user, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			s.metrics.RecordAuthFailure(ctx, "invalid_token")
			return nil, ErrUnauthenticated("Invalid or expired token")
		}
		s.logger.Error("identity resolution failed", "error", err)
		return nil, ErrServerError("Authentication failed")
	}
	return user, nil
}

// Register creates a new account from a raw registration payload. The
// username is unique case-insensitively; uniqueness is enforced by the store
// insert, never by a pre-check read, so concurrent registrations cannot race
// past each other.
func (s *Server) Register(ctx context.Context, body []byte, p security.Provenance) (*storage.User, error) {
	reg, errs := validate.ParseRegistration(body)
	if len(errs) > 0 {
		s.auditor.RecordRegistrationAttempt(probeField(body, "username"), probeField(body, "email"), false,
			"validation failed: "+joinFields(errs), p)
		s.metrics.RecordRegistration(ctx, "validation_failure")
		return nil, ErrValidation(errs)
	}

	// Hashing is the expensive step; it runs before any store call and
	// never under a lock.
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		s.auditor.RecordRegistrationAttempt(reg.Username, reg.Email, false, fmt.Sprintf("internal: %T", err), p)
		s.metrics.RecordRegistration(ctx, "error")
		return nil, ErrServerError("Registration failed")
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.InsertUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateUsername):
			s.auditor.RecordRegistrationAttempt(reg.Username, reg.Email, false, "username already exists", p)
			s.metrics.RecordRegistration(ctx, "conflict")
			return nil, ErrConflict("Username already registered")
		case errors.Is(err, storage.ErrDuplicateEmail):
			s.auditor.RecordRegistrationAttempt(reg.Username, reg.Email, false, "email already exists", p)
			s.metrics.RecordRegistration(ctx, "conflict")
			return nil, ErrConflict("Email already registered")
		default:
			s.logger.Error("user insert failed", "username", reg.Username, "error", err)
			s.auditor.RecordRegistrationAttempt(reg.Username, reg.Email, false, fmt.Sprintf("internal: %T", err), p)
			s.metrics.RecordRegistration(ctx, "error")
			return nil, ErrServerError("Registration failed")
		}
	}

	s.auditor.RecordRegistrationAttempt(user.Username, user.Email, true, "", p)
	s.metrics.RecordRegistration(ctx, "success")
	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown username and
// wrong password produce identical responses; the audit trail records the
// real cause.
func (s *Server) Login(ctx context.Context, body []byte, p security.Provenance) (string, error) {
	if s.loginLimiter != nil && !s.loginLimiter.Allow(p.IP) {
		s.auditor.RecordRateLimitExceeded("login", p)
		s.metrics.RecordRateLimitExceeded(ctx, "login")
		return "", ErrRateLimited("Too many login attempts, try again later")
	}

	login, errs := validate.ParseLogin(body)
	if len(errs) > 0 {
		s.auditor.RecordLoginAttempt(probeField(body, "username"), false, "validation failed: "+joinFields(errs), p)
		s.metrics.RecordLogin(ctx, "validation_failure")
		return "", ErrValidation(errs)
	}

	user, err := s.users.FindByUsername(ctx, login.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.auditor.RecordLoginAttempt(login.Username, false, "unknown username", p)
			s.metrics.RecordLogin(ctx, "failure")
			return "", ErrUnauthenticated("Invalid username or password")
		}
		s.logger.Error("user lookup failed", "username", login.Username, "error", err)
		s.auditor.RecordLoginAttempt(login.Username, false, fmt.Sprintf("internal: %T", err), p)
		s.metrics.RecordLogin(ctx, "error")
		return "", ErrServerError("Login failed")
	}

	if !s.hasher.Verify(login.Password, user.PasswordHash) {
		s.auditor.RecordLoginAttempt(login.Username, false, "wrong password", p)
		s.metrics.RecordLogin(ctx, "failure")
		return "", ErrUnauthenticated("Invalid username or password")
	}

	token, err := s.codec.Issue(user.Username)
	if err != nil {
		s.logger.Error("token issue failed", "username", user.Username, "error", err)
		s.auditor.RecordLoginAttempt(login.Username, false, fmt.Sprintf("internal: %T", err), p)
		s.metrics.RecordLogin(ctx, "error")
		return "", ErrServerError("Login failed")
	}

	s.auditor.RecordLoginAttempt(user.Username, true, "", p)
	s.metrics.RecordLogin(ctx, "success")
	return token, nil
}

// CreateTask validates and persists a new task owned by user.
func (s *Server) CreateTask(ctx context.Context, user *storage.User, body []byte, p security.Provenance) (*storage.Task, error) {
	create, errs := validate.ParseTaskCreate(body)
	if len(errs) > 0 {
		return nil, ErrValidation(errs)
	}

	now := s.now().UTC()
	task := &storage.Task{
		ID:          uuid.NewString(),
		Title:       create.Title,
		Description: create.Description,
		Done:        false,
		OwnerID:     user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tasks.InsertTask(ctx, task); err != nil {
		s.logger.Error("task insert failed", "user_id", user.ID, "error", err)
		return nil, ErrServerError("Could not create task")
	}

	s.auditor.RecordTaskCreated(user.Username, task.ID, task.Title, p)
	s.metrics.RecordTaskMutation(ctx, "create")
	return task, nil
}

// GetTask returns one of the user's tasks. A task owned by someone else is
// reported as not found, identically to a task that does not exist.
func (s *Server) GetTask(ctx context.Context, user *storage.User, id string, p security.Provenance) (*storage.Task, error) {
	return s.authorizeTask(ctx, user, id, p)
}

// ListTasks returns the user's tasks newest-first. The limit is capped;
// requesting more than the cap silently receives the cap.
func (s *Server) ListTasks(ctx context.Context, user *storage.User, offset, limit int) ([]*storage.Task, error) {
	if offset < 0 {
		offset = 0
	}
	tasks, err := s.tasks.ListTasksByOwner(ctx, user.ID, offset, storage.ClampLimit(limit))
	if err != nil {
		s.logger.Error("task list failed", "user_id", user.ID, "error", err)
		return nil, ErrServerError("Could not list tasks")
	}
	return tasks, nil
}

// UpdateTask applies a partial update to one of the user's tasks. Absent
// fields keep their value; updated_at always moves strictly forward.
func (s *Server) UpdateTask(ctx context.Context, user *storage.User, id string, body []byte, p security.Provenance) (*storage.Task, error) {
	update, errs := validate.ParseTaskUpdate(body)
	if len(errs) > 0 {
		return nil, ErrValidation(errs)
	}

	task, err := s.authorizeTask(ctx, user, id, p)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]any)
	if update.Title != nil && *update.Title != task.Title {
		changes["title"] = map[string]any{"from": task.Title, "to": *update.Title}
		task.Title = *update.Title
	}
	if update.Description != nil && *update.Description != task.Description {
		changes["description"] = map[string]any{"from": task.Description, "to": *update.Description}
		task.Description = *update.Description
	}
	if update.Done != nil && *update.Done != task.Done {
		changes["state"] = map[string]any{"from": stateString(task.Done), "to": stateString(*update.Done)}
		task.Done = *update.Done
	}

	now := s.now().UTC()
	if !now.After(task.UpdatedAt) {
		now = task.UpdatedAt.Add(time.Millisecond)
	}
	task.UpdatedAt = now

	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound("Task not found")
		}
		s.logger.Error("task update failed", "task_id", id, "error", err)
		return nil, ErrServerError("Could not update task")
	}

	s.auditor.RecordTaskUpdated(user.Username, task.ID, changes, p)
	s.metrics.RecordTaskMutation(ctx, "update")
	return task, nil
}

// DeleteTask removes one of the user's tasks.
func (s *Server) DeleteTask(ctx context.Context, user *storage.User, id string, p security.Provenance) error {
	task, err := s.authorizeTask(ctx, user, id, p)
	if err != nil {
		return err
	}

	if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound("Task not found")
		}
		s.logger.Error("task delete failed", "task_id", id, "error", err)
		return ErrServerError("Could not delete task")
	}

	s.auditor.RecordTaskDeleted(user.Username, task.ID, p)
	s.metrics.RecordTaskMutation(ctx, "delete")
	return nil
}

// authorizeTask loads a task and checks ownership. Missing and foreign tasks
// are indistinguishable to the caller; the ownership miss is still logged and
// audited for operators.
func (s *Server) authorizeTask(ctx context.Context, user *storage.User, id string, p security.Provenance) (*storage.Task, error) {
	if id == "" {
		return nil, ErrNotFound("Task not found")
	}

	task, err := s.tasks.FindTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound("Task not found")
		}
		s.logger.Error("task lookup failed", "task_id", id, "error", err)
		return nil, ErrServerError("Could not load task")
	}

	if task.OwnerID != user.ID {
		s.logger.Warn("cross-user task access denied",
			"task_id", id,
			"owner_id", task.OwnerID,
			"requester_id", user.ID)
		s.auditor.RecordUnauthorizedAccess("/tasks/"+id, user.Username, p)
		return nil, ErrNotFound("Task not found")
	}
	return task, nil
}

// stateString renders the external two-valued task state.
func stateString(done bool) string {
	if done {
		return "done"
	}
	return "pending"
}

// probeField best-effort extracts a string field from an unvalidated payload
// so failure audit events can still name the attempted identity.
func probeField(body []byte, field string) string {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	if s, ok := data[field].(string); ok {
		return s
	}
	return ""
}

// joinFields renders the violated field names for audit details.
func joinFields(errs validate.Errors) string {
	return strings.Join(errs.Fields(), ", ")
}
