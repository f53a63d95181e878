package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span and metric attribute keys.
//
// SECURITY WARNING: never put actual credential values (passwords, password
// hashes, bearer tokens) into span attributes or metric labels. Traces are
// persisted, replicated, and readable by wider audiences than the production
// system. Only metadata belongs here.
const (
	// Identity attributes (identifiers, never credentials)
	AttrUsername      = "taskwarden.username"
	AttrUserID        = "taskwarden.user_id"
	AttrTaskID        = "taskwarden.task_id"
	AttrOutcome       = "taskwarden.outcome"
	AttrFailureReason = "taskwarden.failure_reason"
	AttrTaskOperation = "taskwarden.task.operation"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
