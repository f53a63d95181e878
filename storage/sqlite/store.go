// Package sqlite provides a SQLite-backed implementation of the storage
// interfaces using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskwarden/taskwarden/instrumentation"
	"github.com/taskwarden/taskwarden/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	done        INTEGER NOT NULL DEFAULT 0,
	owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements storage.Store over a single SQLite file. One file backs
// both tables so user lookups and task mutations share the same transaction
// and visibility boundaries.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Compile-time interface checks
var (
	_ storage.UserStore = (*Store)(nil)
	_ storage.TaskStore = (*Store)(nil)
	_ storage.Store     = (*Store)(nil)
)

// Open opens a SQLite store at path and applies the schema. Journal mode WAL
// and a busy timeout keep concurrent request handlers from tripping over each
// other; foreign keys enforce task ownership at the engine level.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return s, nil
}

// SetMetrics attaches operation metrics. Without it every observation is a
// no-op; the recorders are nil-safe.
func (s *Store) SetMetrics(metrics *instrumentation.Metrics) {
	s.metrics = metrics
}

// observe records one storage call. Deferred with time.Now() so the start
// time is captured at registration, not at return.
func (s *Store) observe(ctx context.Context, operation string, start time.Time, err *error) {
	result := "success"
	if *err != nil {
		result = "error"
	}
	s.metrics.RecordStorageOperation(ctx, operation, result,
		float64(time.Since(start).Milliseconds()))
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectUser = `SELECT id, username, email, password_hash, created_at FROM users `

func (s *Store) findUser(ctx context.Context, where string, arg any) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+where, arg)

	var u storage.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// FindByUsername retrieves a user by lowercase username.
func (s *Store) FindByUsername(ctx context.Context, username string) (user *storage.User, err error) {
	defer s.observe(ctx, "find_user_by_username", time.Now(), &err)
	return s.findUser(ctx, "WHERE username = ?", username)
}

// FindByEmail retrieves a user by lowercase email.
func (s *Store) FindByEmail(ctx context.Context, email string) (user *storage.User, err error) {
	defer s.observe(ctx, "find_user_by_email", time.Now(), &err)
	return s.findUser(ctx, "WHERE email = ?", email)
}

// FindByID retrieves a user by ID.
func (s *Store) FindByID(ctx context.Context, id string) (user *storage.User, err error) {
	defer s.observe(ctx, "find_user_by_id", time.Now(), &err)
	return s.findUser(ctx, "WHERE id = ?", id)
}

// InsertUser persists a new user. Unique-constraint violations on username or
// email map to the storage sentinel errors so the service layer can surface a
// conflict without parsing driver messages elsewhere.
func (s *Store) InsertUser(ctx context.Context, user *storage.User) (err error) {
	defer s.observe(ctx, "insert_user", time.Now(), &err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, toMillis(user.CreatedAt),
	)
	if err != nil {
		if constraintErr := mapConstraintError(err); constraintErr != nil {
			return constraintErr
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// mapConstraintError translates SQLite unique-constraint failures into the
// storage sentinel errors. modernc.org/sqlite reports these as
// "constraint failed: UNIQUE constraint failed: users.username" style text.
func mapConstraintError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.username"):
		return storage.ErrDuplicateUsername
	case strings.Contains(msg, "users.email"):
		return storage.ErrDuplicateEmail
	}
	return nil
}

const selectTask = `SELECT id, title, description, done, owner_id, created_at, updated_at FROM tasks `

func scanTask(row interface{ Scan(...any) error }) (*storage.Task, error) {
	var t storage.Task
	var done int
	var createdAt, updatedAt int64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &done, &t.OwnerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Done = done != 0
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

// InsertTask persists a new task.
func (s *Store) InsertTask(ctx context.Context, task *storage.Task) (err error) {
	defer s.observe(ctx, "insert_task", time.Now(), &err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, done, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, boolToInt(task.Done), task.OwnerID,
		toMillis(task.CreatedAt), toMillis(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// FindTaskByID retrieves a task by ID.
func (s *Store) FindTaskByID(ctx context.Context, id string) (task *storage.Task, err error) {
	defer s.observe(ctx, "find_task_by_id", time.Now(), &err)
	task, err = scanTask(s.db.QueryRowContext(ctx, selectTask+"WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return task, nil
}

// ListTasksByOwner returns the owner's tasks ordered by creation time
// descending, applying offset and the shared limit cap.
func (s *Store) ListTasksByOwner(ctx context.Context, ownerID string, offset, limit int) (tasks []*storage.Task, err error) {
	defer s.observe(ctx, "list_tasks_by_owner", time.Now(), &err)
	limit = storage.ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		selectTask+"WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks = make([]*storage.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask persists changes to an existing task inside one transaction, so
// the existence check and the write cannot interleave with another request's
// mutation of the same row.
func (s *Store) UpdateTask(ctx context.Context, task *storage.Task) (err error) {
	defer s.observe(ctx, "update_task", time.Now(), &err)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, done = ?, updated_at = ? WHERE id = ?`,
		task.Title, task.Description, boolToInt(task.Done), toMillis(task.UpdatedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) (err error) {
	defer s.observe(ctx, "delete_task", time.Now(), &err)
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
