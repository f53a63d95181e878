// Package testutil provides testing utilities and fixtures shared by the
// taskwarden packages: a controllable clock, seeded users and tasks, and
// a captured slog logger for asserting on structured output.
package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskwarden/taskwarden/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// GenerateRandomString creates a URL-safe random string of the given byte
// length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("testutil: read random: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// TestSigningKey is a fixed signing key for token tests. Long enough to pass
// configuration validation, never used outside tests.
const TestSigningKey = "test-signing-key-0123456789abcdef-0123456789abcdef"

// NewTestUser creates a user fixture with a unique username and email.
func NewTestUser(suffix string) *storage.User {
	return &storage.User{
		ID:           uuid.NewString(),
		Username:     "user_" + suffix,
		Email:        fmt.Sprintf("user_%s@example.com", suffix),
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceha",
		CreatedAt:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// NewTestTask creates a task fixture owned by ownerID.
func NewTestTask(ownerID, title string) *storage.Task {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	return &storage.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Done:      false,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SeedUser inserts a user fixture into store, failing the test on error.
func SeedUser(t *testing.T, store storage.UserStore, user *storage.User) {
	t.Helper()
	if err := store.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("seed user %q: %v", user.Username, err)
	}
}

// SeedTask inserts a task fixture into store, failing the test on error.
func SeedTask(t *testing.T, store storage.TaskStore, task *storage.Task) {
	t.Helper()
	if err := store.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("seed task %q: %v", task.Title, err)
	}
}

// CapturedLogger returns a logger writing JSON records into the returned
// buffer, for asserting on structured log output.
func CapturedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, &buf
}
