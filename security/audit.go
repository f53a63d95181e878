package security

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultAuditBuffer is the default capacity of the audit event buffer.
	DefaultAuditBuffer = 256

	// DefaultEmitTimeout is how long an emitter blocks on a full buffer
	// before dropping the event. Block-with-timeout rather than drop-oldest:
	// a short stall is preferable to silent audit loss, and the timeout
	// bounds the stall so a wedged sink can never fail the primary request.
	DefaultEmitTimeout = 250 * time.Millisecond
)

// Provenance carries the request origin recorded with every audit event.
// All fields are free text supplied by the caller or its proxies.
type Provenance struct {
	IP        string
	UserAgent string
	RequestID string
}

// Event represents a security audit event.
type Event struct {
	Type      string
	Actor     string // username, when known
	Details   map[string]any
	Timestamp time.Time
	Provenance
}

// Auditor appends structured records of authentication and resource-mutation
// events. Emission is asynchronous: events go through a bounded buffer to a
// single writer goroutine, so writes are serialized and a logging fault never
// blocks or fails the operation being recorded.
type Auditor struct {
	logger      *slog.Logger
	enabled     bool
	emitTimeout time.Duration

	events  chan Event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	// mu fences Record against Close: senders hold the read side across the
	// buffer send, so Close can wait out in-flight sends before its final
	// sweep of the buffer.
	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewAuditor creates an auditor with the default buffer size and emit timeout.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	return NewAuditorWithConfig(logger, enabled, DefaultAuditBuffer, DefaultEmitTimeout)
}

// NewAuditorWithConfig creates an auditor with a custom buffer capacity and
// emit timeout. Non-positive values fall back to the defaults.
func NewAuditorWithConfig(logger *slog.Logger, enabled bool, buffer int, emitTimeout time.Duration) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultAuditBuffer
	}
	if emitTimeout <= 0 {
		emitTimeout = DefaultEmitTimeout
	}

	a := &Auditor{
		logger:      logger,
		enabled:     enabled,
		emitTimeout: emitTimeout,
		events:      make(chan Event, buffer),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues a security event. When the buffer is full it blocks up to the
// emit timeout, then drops the event and counts the drop.
func (a *Auditor) Record(event Event) {
	if a == nil || !a.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}

	timer := time.NewTimer(a.emitTimeout)
	defer timer.Stop()

	select {
	case a.events <- event:
	case <-a.closing:
		a.dropped.Add(1)
	case <-timer.C:
		a.dropped.Add(1)
		a.logger.Warn("audit event dropped: buffer full",
			"event_type", event.Type,
			"buffer", cap(a.events))
	}
}

// Close drains buffered events and stops the writer. Events recorded after
// Close are dropped; every event accepted into the buffer before that is
// written.
func (a *Auditor) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.closing)
	})
	<-a.done

	// An in-flight Record can land an event in the buffer after the writer's
	// final drain. Wait those senders out, then sweep what they left behind.
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		select {
		case event := <-a.events:
			a.write(event)
		default:
			return
		}
	}
}

// Dropped reports how many events were discarded because the buffer stayed
// full past the emit timeout.
func (a *Auditor) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Auditor) run() {
	defer close(a.done)
	for {
		select {
		case event := <-a.events:
			a.write(event)
		case <-a.closing:
			for {
				select {
				case event := <-a.events:
					a.write(event)
				default:
					return
				}
			}
		}
	}
}

func (a *Auditor) write(event Event) {
	a.logger.Info("security_audit",
		"event_type", event.Type,
		"actor", event.Actor,
		"ip_address", event.IP,
		"user_agent", event.UserAgent,
		"request_id", event.RequestID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// RecordLoginAttempt records a login attempt. reason is empty on success and
// carries the failure cause otherwise, including the internal error type name
// for faults that surface as server errors.
func (a *Auditor) RecordLoginAttempt(username string, success bool, reason string, p Provenance) {
	details := map[string]any{"success": success}
	if reason != "" {
		details["reason"] = reason
	}
	a.record(eventType(success, EventLoginSuccess, EventLoginFailure), username, details, p)
}

// RecordRegistrationAttempt records a registration attempt.
func (a *Auditor) RecordRegistrationAttempt(username, email string, success bool, reason string, p Provenance) {
	details := map[string]any{"success": success, "email": email}
	if reason != "" {
		details["reason"] = reason
	}
	a.record(eventType(success, EventRegistrationSuccess, EventRegistrationFailure), username, details, p)
}

// RecordTaskCreated records a task creation.
func (a *Auditor) RecordTaskCreated(actor, taskID, title string, p Provenance) {
	a.record(EventTaskCreated, actor, map[string]any{
		"task_id": taskID,
		"title":   title,
	}, p)
}

// RecordTaskUpdated records a task mutation with its before/after values.
func (a *Auditor) RecordTaskUpdated(actor, taskID string, changes map[string]any, p Provenance) {
	details := map[string]any{"task_id": taskID}
	for field, change := range changes {
		details[field] = change
	}
	a.record(EventTaskUpdated, actor, details, p)
}

// RecordTaskDeleted records a task deletion.
func (a *Auditor) RecordTaskDeleted(actor, taskID string, p Provenance) {
	a.record(EventTaskDeleted, actor, map[string]any{"task_id": taskID}, p)
}

// RecordUnauthorizedAccess records a request with a missing or invalid bearer
// identity, or an attempt to reach another user's resource.
func (a *Auditor) RecordUnauthorizedAccess(path, actor string, p Provenance) {
	a.record(EventUnauthorizedAccess, actor, map[string]any{"path": path}, p)
}

// RecordRateLimitExceeded records a rejected request on a rate-limited
// endpoint.
func (a *Auditor) RecordRateLimitExceeded(endpoint string, p Provenance) {
	a.record(EventRateLimitExceeded, "", map[string]any{"endpoint": endpoint}, p)
}

func (a *Auditor) record(eventType, actor string, details map[string]any, p Provenance) {
	a.Record(Event{
		Type:       eventType,
		Actor:      actor,
		Details:    details,
		Provenance: p,
	})
}

func eventType(success bool, onSuccess, onFailure string) string {
	if success {
		return onSuccess
	}
	return onFailure
}
