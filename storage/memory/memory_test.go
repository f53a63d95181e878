package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/taskwarden/taskwarden/storage"
)

func testUser(id, username string) *storage.User {
	return &storage.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func testTask(id, ownerID string, createdAt time.Time) *storage.Task {
	return &storage.Task{
		ID:        id,
		Title:     "task " + id,
		OwnerID:   ownerID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestUserLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.InsertUser(ctx, testUser("u1", "alice")); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	byName, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	byEmail, err := store.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	byID, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byName.ID != "u1" || byEmail.ID != "u1" || byID.Username != "alice" {
		t.Error("lookups disagree on the inserted user")
	}

	if _, err := store.FindByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
}

func TestInsertUserUniqueness(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.InsertUser(ctx, testUser("u1", "alice")); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	dupName := testUser("u2", "alice")
	dupName.Email = "other@example.com"
	if err := store.InsertUser(ctx, dupName); !errors.Is(err, storage.ErrDuplicateUsername) {
		t.Errorf("duplicate username error = %v, want ErrDuplicateUsername", err)
	}

	dupEmail := testUser("u3", "bob")
	dupEmail.Email = "alice@example.com"
	if err := store.InsertUser(ctx, dupEmail); !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Errorf("duplicate email error = %v, want ErrDuplicateEmail", err)
	}

	if store.UserCount() != 1 {
		t.Errorf("UserCount = %d after failed inserts, want 1", store.UserCount())
	}
}

func TestReturnedUserIsACopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.InsertUser(ctx, testUser("u1", "alice")); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	first, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	first.Username = "mutated"

	second, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if second.Username != "alice" {
		t.Error("store record mutated through a returned pointer")
	}
}

func TestTaskCRUD(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	if err := store.InsertTask(ctx, testTask("t1", "u1", base)); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	task, err := store.FindTaskByID(ctx, "t1")
	if err != nil {
		t.Fatalf("FindTaskByID: %v", err)
	}

	task.Title = "renamed"
	task.Done = true
	task.UpdatedAt = base.Add(time.Hour)
	if err := store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	updated, err := store.FindTaskByID(ctx, "t1")
	if err != nil {
		t.Fatalf("FindTaskByID: %v", err)
	}
	if updated.Title != "renamed" || !updated.Done {
		t.Error("update not persisted")
	}

	if err := store.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := store.FindTaskByID(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted task error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTask(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("double delete error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateTask(ctx, task); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update of deleted task error = %v, want ErrNotFound", err)
	}
}

func TestListTasksByOwnerOrderAndIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	// Interleave two owners; creation times increase with the index.
	for i := 0; i < 6; i++ {
		owner := "alice"
		if i%2 == 1 {
			owner = "bob"
		}
		task := testTask(fmt.Sprintf("t%d", i), owner, base.Add(time.Duration(i)*time.Minute))
		if err := store.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}

	tasks, err := store.ListTasksByOwner(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatalf("ListTasksByOwner: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("alice has %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.OwnerID != "alice" {
			t.Errorf("foreign task %q in alice's list", task.ID)
		}
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].CreatedAt.After(tasks[i-1].CreatedAt) {
			t.Error("list not ordered newest-first")
		}
	}
}

func TestListTasksByOwnerPagination(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		task := testTask(fmt.Sprintf("t%d", i), "alice", base.Add(time.Duration(i)*time.Minute))
		if err := store.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}

	page, err := store.ListTasksByOwner(ctx, "alice", 1, 2)
	if err != nil {
		t.Fatalf("ListTasksByOwner: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest-first with offset 1 skips t4.
	if page[0].ID != "t3" || page[1].ID != "t2" {
		t.Errorf("page = [%s %s], want [t3 t2]", page[0].ID, page[1].ID)
	}

	// Offset past the end yields an empty page, not an error.
	empty, err := store.ListTasksByOwner(ctx, "alice", 100, 2)
	if err != nil {
		t.Fatalf("ListTasksByOwner: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("out-of-range page has %d tasks, want 0", len(empty))
	}
}

func TestListTasksUnknownOwnerEmpty(t *testing.T) {
	store := New()
	tasks, err := store.ListTasksByOwner(context.Background(), "nobody", 0, 10)
	if err != nil {
		t.Fatalf("ListTasksByOwner: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("unknown owner has %d tasks, want 0", len(tasks))
	}
}
