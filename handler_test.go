package taskwarden

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/taskwarden/taskwarden/internal/testutil"
	"github.com/taskwarden/taskwarden/server"
	"github.com/taskwarden/taskwarden/storage/memory"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	logger, _ := testutil.CapturedLogger()
	store := memory.NewWithLogger(logger)
	cfg := server.Config{
		SigningKey:         testutil.TestSigningKey,
		BcryptCost:         bcrypt.MinCost,
		EnableAuditLogging: true,
		Logger:             logger,
	}
	srv, err := server.New(store, cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(srv.Close)

	mux := http.NewServeMux()
	NewHandler(srv, cfg, logger).Routes(mux)
	return mux
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func registerAndLogin(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"Str0ng!pass"}`, username, username)
	if rec := doJSON(t, handler, http.MethodPost, "/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, rec.Code, rec.Body.String())
	}

	loginBody := fmt.Sprintf(`{"username":%q,"password":"Str0ng!pass"}`, username)
	rec := doJSON(t, handler, http.MethodPost, "/auth/login", "", loginBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var token TokenResponse
	decodeInto(t, rec, &token)
	if token.AccessToken == "" || token.TokenType != "Bearer" {
		t.Fatalf("token response = %+v", token)
	}
	return token.AccessToken
}

func TestRegisterLoginFlow(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register", "",
		`{"username":"Alice","email":"Alice@Example.com","password":"Str0ng!pass"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var user UserResponse
	decodeInto(t, rec, &user)
	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Errorf("user = %+v, want normalized identity", user)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("registration response leaks password material")
	}

	rec = doJSON(t, handler, http.MethodPost, "/auth/login", "",
		`{"username":"alice","password":"Str0ng!pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var token TokenResponse
	decodeInto(t, rec, &token)
	if token.ExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, want 1800", token.ExpiresIn)
	}

	rec = doJSON(t, handler, http.MethodGet, "/auth/me", token.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", rec.Code, rec.Body.String())
	}
	var me UserResponse
	decodeInto(t, rec, &me)
	if me.Username != "alice" {
		t.Errorf("me = %+v", me)
	}
}

func TestRegisterValidationResponse(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register", "",
		`{"username":"admin","email":"bad","password":"weak"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	if resp.Error != "validation_error" {
		t.Errorf("error = %q, want validation_error", resp.Error)
	}
	if len(resp.Details) == 0 {
		t.Error("validation response has no field details")
	}
}

func TestRegisterConflictResponse(t *testing.T) {
	handler := newTestHandler(t)
	registerAndLogin(t, handler, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/auth/register", "",
		`{"username":"alice","email":"second@example.com","password":"Str0ng!pass"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	if resp.Error != "conflict" {
		t.Errorf("error = %q, want conflict", resp.Error)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	handler := newTestHandler(t)
	registerAndLogin(t, handler, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/auth/login", "",
		`{"username":"alice","password":"Wrong!pass1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "alice")

	// Create.
	rec := doJSON(t, handler, http.MethodPost, "/tasks", token,
		`{"title":"Buy milk","description":"two liters"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var task TaskResponse
	decodeInto(t, rec, &task)
	if task.State != "pending" || task.Title != "Buy milk" {
		t.Errorf("task = %+v", task)
	}

	// List.
	rec = doJSON(t, handler, http.MethodGet, "/tasks", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list TaskListResponse
	decodeInto(t, rec, &list)
	if list.Count != 1 || len(list.Tasks) != 1 {
		t.Fatalf("list = %+v, want one task", list)
	}

	// Get.
	rec = doJSON(t, handler, http.MethodGet, "/tasks/"+task.ID, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Update with a state synonym.
	rec = doJSON(t, handler, http.MethodPatch, "/tasks/"+task.ID, token, `{"state":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated TaskResponse
	decodeInto(t, rec, &updated)
	if updated.State != "done" {
		t.Errorf("State = %q, want done", updated.State)
	}
	if updated.Description != "two liters" {
		t.Error("partial update dropped the description")
	}

	// Delete.
	rec = doJSON(t, handler, http.MethodDelete, "/tasks/"+task.ID, token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/tasks/"+task.ID, token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestTasksRequireAuthentication(t *testing.T) {
	handler := newTestHandler(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks/some-id"},
		{http.MethodPatch, "/tasks/some-id"},
		{http.MethodDelete, "/tasks/some-id"},
		{http.MethodGet, "/auth/me"},
	}
	for _, tt := range paths {
		rec := doJSON(t, handler, tt.method, tt.path, "", `{"title":"x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", tt.method, tt.path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/tasks", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestCrossUserTaskHiddenOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	aliceToken := registerAndLogin(t, handler, "alice")
	bobToken := registerAndLogin(t, handler, "bob")

	rec := doJSON(t, handler, http.MethodPost, "/tasks", aliceToken, `{"title":"private"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var task TaskResponse
	decodeInto(t, rec, &task)

	rec = doJSON(t, handler, http.MethodGet, "/tasks/"+task.ID, bobToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/auth/me/tasks", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me/tasks status = %d", rec.Code)
	}
	var list TaskListResponse
	decodeInto(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("bob sees %d tasks, want 0", list.Count)
	}
}

func TestHealthAndIndex(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	var health HealthResponse
	decodeInto(t, rec, &health)
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}

	rec = doJSON(t, handler, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("index status = %d", rec.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request ID header")
	}

	// A valid inbound request ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-1")
	echo := httptest.NewRecorder()
	handler.ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "caller-supplied-1" {
		t.Errorf("X-Request-ID = %q, want caller-supplied-1", got)
	}
}

func TestMalformedJSONResponse(t *testing.T) {
	handler := newTestHandler(t)
	token := registerAndLogin(t, handler, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/tasks", token, `{not json`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	if resp.Error != "validation_error" {
		t.Errorf("error = %q, want validation_error", resp.Error)
	}
}
