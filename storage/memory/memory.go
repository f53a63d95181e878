// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/taskwarden/taskwarden/storage"
)

// Store is an in-memory implementation of storage.Store.
// A single RWMutex guards all maps, which gives each operation the same
// all-or-nothing visibility a per-request transaction provides in SQL
// backends.
type Store struct {
	mu sync.RWMutex

	users       map[string]*storage.User // user ID -> user
	byUsername  map[string]string        // lowercase username -> user ID
	byEmail     map[string]string        // lowercase email -> user ID
	tasks       map[string]*storage.Task // task ID -> task
	tasksByUser map[string][]string      // owner ID -> task IDs, insertion order

	logger *slog.Logger
}

// Compile-time interface checks to ensure Store implements both storage interfaces
var (
	_ storage.UserStore = (*Store)(nil)
	_ storage.TaskStore = (*Store)(nil)
	_ storage.Store     = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return NewWithLogger(slog.Default())
}

// NewWithLogger creates an empty in-memory store with a custom logger.
func NewWithLogger(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		users:       make(map[string]*storage.User),
		byUsername:  make(map[string]string),
		byEmail:     make(map[string]string),
		tasks:       make(map[string]*storage.Task),
		tasksByUser: make(map[string][]string),
		logger:      logger,
	}
}

// FindByUsername retrieves a user by lowercase username.
func (s *Store) FindByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// FindByEmail retrieves a user by lowercase email.
func (s *Store) FindByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// FindByID retrieves a user by ID.
func (s *Store) FindByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(user), nil
}

// InsertUser persists a new user, enforcing username and email uniqueness.
// The uniqueness checks and the insert happen under one lock so concurrent
// registrations cannot both succeed.
func (s *Store) InsertUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[user.Username]; exists {
		return storage.ErrDuplicateUsername
	}
	if _, exists := s.byEmail[user.Email]; exists {
		return storage.ErrDuplicateEmail
	}

	stored := copyUser(user)
	s.users[stored.ID] = stored
	s.byUsername[stored.Username] = stored.ID
	s.byEmail[stored.Email] = stored.ID
	return nil
}

// InsertTask persists a new task.
func (s *Store) InsertTask(_ context.Context, task *storage.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyTask(task)
	s.tasks[stored.ID] = stored
	s.tasksByUser[stored.OwnerID] = append(s.tasksByUser[stored.OwnerID], stored.ID)
	return nil
}

// FindTaskByID retrieves a task by ID.
func (s *Store) FindTaskByID(_ context.Context, id string) (*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTask(task), nil
}

// ListTasksByOwner returns the owner's tasks ordered by creation time
// descending, applying offset and the shared limit cap.
func (s *Store) ListTasksByOwner(_ context.Context, ownerID string, offset, limit int) ([]*storage.Task, error) {
	limit = storage.ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.tasksByUser[ownerID]
	tasks := make([]*storage.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}

	// Newest first; creation time ties broken by ID for a stable order.
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})

	if offset >= len(tasks) {
		return []*storage.Task{}, nil
	}
	end := offset + limit
	if end > len(tasks) {
		end = len(tasks)
	}

	page := make([]*storage.Task, 0, end-offset)
	for _, task := range tasks[offset:end] {
		page = append(page, copyTask(task))
	}
	return page, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(_ context.Context, task *storage.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return storage.ErrNotFound
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.tasks, id)

	ids := s.tasksByUser[task.OwnerID]
	for i, taskID := range ids {
		if taskID == id {
			s.tasksByUser[task.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// UserCount reports the number of stored users (for metrics and tests).
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// TaskCount reports the number of stored tasks (for metrics and tests).
func (s *Store) TaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// copyUser returns a defensive copy so callers cannot mutate stored state.
func copyUser(u *storage.User) *storage.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copyTask(t *storage.Task) *storage.Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
