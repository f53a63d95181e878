// Package taskwarden provides a task-management web service: account
// registration and login with bearer-token sessions, and per-user task CRUD.
// The root package is the HTTP adapter; business logic lives in the server
// package.
package taskwarden

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskwarden/taskwarden/instrumentation"
	"github.com/taskwarden/taskwarden/security"
	"github.com/taskwarden/taskwarden/server"
	"github.com/taskwarden/taskwarden/storage"
)

const (
	tokenTypeBearer = "Bearer"

	// maxBodyBytes bounds request bodies well above any valid payload.
	maxBodyBytes = 1 << 20
)

// Handler is a thin HTTP adapter for the task service. It decodes nothing
// itself: raw bodies go down to the server so validation failures carry full
// request context.
type Handler struct {
	server  *server.Server
	config  server.Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instrumentation.Metrics

	slowThreshold time.Duration
}

// NewHandler creates an HTTP handler over the given service.
func NewHandler(srv *server.Server, config server.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	slow := config.SlowRequestThreshold
	if slow <= 0 {
		slow = 2 * time.Second
	}
	return &Handler{
		server:        srv,
		config:        config,
		logger:        logger,
		slowThreshold: slow,
	}
}

// SetInstrumentation attaches tracing and metrics. Safe to leave unset.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	h.tracer = inst.Tracer("http")
	h.metrics = inst.Metrics()
	h.server.SetMetrics(inst.Metrics())
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.wrap("register", h.serveRegister))
	mux.HandleFunc("POST /auth/login", h.wrap("login", h.serveLogin))
	mux.HandleFunc("GET /auth/me", h.wrap("me", h.authenticated(h.serveMe)))
	mux.HandleFunc("GET /auth/me/tasks", h.wrap("me_tasks", h.authenticated(h.serveListTasks)))

	mux.HandleFunc("POST /tasks", h.wrap("task_create", h.authenticated(h.serveCreateTask)))
	mux.HandleFunc("GET /tasks", h.wrap("task_list", h.authenticated(h.serveListTasks)))
	mux.HandleFunc("GET /tasks/{id}", h.wrap("task_get", h.authenticated(h.serveGetTask)))
	mux.HandleFunc("PATCH /tasks/{id}", h.wrap("task_update", h.authenticated(h.serveUpdateTask)))
	mux.HandleFunc("PUT /tasks/{id}", h.wrap("task_update", h.authenticated(h.serveUpdateTask)))
	mux.HandleFunc("DELETE /tasks/{id}", h.wrap("task_delete", h.authenticated(h.serveDeleteTask)))

	mux.HandleFunc("GET /healthz", h.wrap("healthz", h.serveHealth))
	mux.HandleFunc("GET /{$}", h.wrap("index", h.serveIndex))
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// wrap applies the per-request pipeline: request ID, security headers,
// tracing, access logging, and HTTP metrics.
func (h *Handler) wrap(endpoint string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := security.RequestIDFromRequest(r)
		ctx := security.WithRequestID(r.Context(), requestID)

		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "http."+endpoint)
			defer span.End()
			instrumentation.SetSpanAttributes(span,
				attribute.String(instrumentation.AttrHTTPEndpoint, endpoint),
				attribute.String(instrumentation.AttrHTTPMethod, r.Method),
			)
		}
		r = r.WithContext(ctx)

		security.SetSecurityHeaders(w)
		w.Header().Set(security.RequestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)

		fn(rec, r)

		elapsed := time.Since(start)
		if span != nil {
			instrumentation.SetSpanAttributes(span,
				attribute.Int(instrumentation.AttrHTTPStatusCode, rec.status))
		}
		h.metrics.RecordHTTPRequest(ctx, r.Method, endpoint, rec.status,
			float64(elapsed.Milliseconds()))

		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestID,
			"ip", security.ClientIP(r, h.config.TrustProxyHeaders, h.config.TrustedProxyCount))

		if elapsed > h.slowThreshold {
			h.logger.Warn("slow request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestID)
		}
	}
}

// handlerWithUser is an endpoint that requires a resolved identity.
type handlerWithUser func(w http.ResponseWriter, r *http.Request, user *storage.User)

// authenticated resolves the bearer token before invoking fn. Requests
// without a valid identity are rejected uniformly and recorded in the audit
// trail.
func (h *Handler) authenticated(fn handlerWithUser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.server.Auditor().RecordUnauthorizedAccess(r.URL.Path, "", h.provenance(r))
			h.writeAPIError(w, server.ErrUnauthenticated("Missing or malformed Authorization header"))
			return
		}

		user, err := h.server.Authenticate(r.Context(), token)
		if err != nil {
			instrumentation.RecordError(trace.SpanFromContext(r.Context()), err)
			h.server.Auditor().RecordUnauthorizedAccess(r.URL.Path, "", h.provenance(r))
			h.writeError(w, err)
			return
		}

		instrumentation.SetSpanAttributes(trace.SpanFromContext(r.Context()),
			attribute.String(instrumentation.AttrUsername, user.Username),
			attribute.String(instrumentation.AttrUserID, user.ID))
		fn(w, r, user)
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// provenance collects the request origin fields attached to audit events.
func (h *Handler) provenance(r *http.Request) security.Provenance {
	return security.Provenance{
		IP:        security.ClientIP(r, h.config.TrustProxyHeaders, h.config.TrustedProxyCount),
		UserAgent: r.UserAgent(),
		RequestID: security.GetRequestID(r.Context()),
	}
}

func (h *Handler) serveRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeAPIError(w, server.ErrValidation(nil))
		return
	}

	user, err := h.server.Register(r.Context(), body, h.provenance(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *Handler) serveLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeAPIError(w, server.ErrValidation(nil))
		return
	}

	token, err := h.server.Login(r.Context(), body, h.provenance(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(h.server.Codec().TTL().Seconds()),
	})
}

func (h *Handler) serveMe(w http.ResponseWriter, r *http.Request, user *storage.User) {
	h.writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) serveCreateTask(w http.ResponseWriter, r *http.Request, user *storage.User) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeAPIError(w, server.ErrValidation(nil))
		return
	}

	task, err := h.server.CreateTask(r.Context(), user, body, h.provenance(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newTaskResponse(task))
}

func (h *Handler) serveListTasks(w http.ResponseWriter, r *http.Request, user *storage.User) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", storage.MaxListLimit)
	limit = storage.ClampLimit(limit)

	tasks, err := h.server.ListTasks(r.Context(), user, offset, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTaskListResponse(tasks, offset, limit))
}

// spanTaskID tags the active span with the task the request addresses.
func spanTaskID(r *http.Request, id string) {
	instrumentation.SetSpanAttributes(trace.SpanFromContext(r.Context()),
		attribute.String(instrumentation.AttrTaskID, id))
}

func (h *Handler) serveGetTask(w http.ResponseWriter, r *http.Request, user *storage.User) {
	spanTaskID(r, r.PathValue("id"))
	task, err := h.server.GetTask(r.Context(), user, r.PathValue("id"), h.provenance(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTaskResponse(task))
}

func (h *Handler) serveUpdateTask(w http.ResponseWriter, r *http.Request, user *storage.User) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeAPIError(w, server.ErrValidation(nil))
		return
	}

	spanTaskID(r, r.PathValue("id"))
	task, err := h.server.UpdateTask(r.Context(), user, r.PathValue("id"), body, h.provenance(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTaskResponse(task))
}

func (h *Handler) serveDeleteTask(w http.ResponseWriter, r *http.Request, user *storage.User) {
	spanTaskID(r, r.PathValue("id"))
	if err := h.server.DeleteTask(r.Context(), user, r.PathValue("id"), h.provenance(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service": "taskwarden",
		"status":  "ok",
	})
}

// queryInt parses a non-negative integer query parameter, falling back on
// absence or garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// writeError translates any error into the uniform envelope. Non-taxonomy
// errors are surfaced as opaque server errors.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *server.APIError
	if !errors.As(err, &apiErr) {
		h.logger.Error("unclassified error", "error", err)
		apiErr = server.ErrServerError("Internal server error")
	}
	h.writeAPIError(w, apiErr)
}

func (h *Handler) writeAPIError(w http.ResponseWriter, apiErr *server.APIError) {
	resp := ErrorResponse{
		Error:            apiErr.Code,
		ErrorDescription: apiErr.Description,
	}
	if len(apiErr.Fields) > 0 {
		resp.Details = newViolations(apiErr.Fields)
	}
	if apiErr.Status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	h.writeJSON(w, apiErr.Status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
