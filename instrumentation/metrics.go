package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for taskwarden
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authentication
	RegistrationsTotal metric.Int64Counter
	LoginsTotal        metric.Int64Counter
	AuthFailuresTotal  metric.Int64Counter

	// Tasks
	TaskMutationsTotal metric.Int64Counter

	// Security
	RateLimitExceeded  metric.Int64Counter
	AuditEventsDropped metric.Int64ObservableGauge

	// Storage
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"taskwarden.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"taskwarden.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.RegistrationsTotal, err = serverMeter.Int64Counter(
		"taskwarden.registrations.total",
		metric.WithDescription("Number of registration attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registrations.total counter: %w", err)
	}

	m.LoginsTotal, err = serverMeter.Int64Counter(
		"taskwarden.logins.total",
		metric.WithDescription("Number of login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins.total counter: %w", err)
	}

	m.AuthFailuresTotal, err = securityMeter.Int64Counter(
		"taskwarden.auth.failures.total",
		metric.WithDescription("Number of failed bearer authentications"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.failures.total counter: %w", err)
	}

	m.TaskMutationsTotal, err = serverMeter.Int64Counter(
		"taskwarden.tasks.mutations.total",
		metric.WithDescription("Number of task create/update/delete operations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks.mutations.total counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"taskwarden.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsDropped, err = securityMeter.Int64ObservableGauge(
		"taskwarden.audit.events.dropped",
		metric.WithDescription("Audit events discarded on buffer overflow"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.dropped gauge: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"taskwarden.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records a completed HTTP request (nil-safe).
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, status int, durationMS float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMS,
		metric.WithAttributes(attribute.String(AttrHTTPEndpoint, endpoint)))
}

// RecordRegistration records a registration attempt outcome (nil-safe).
func (m *Metrics) RecordRegistration(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordLogin records a login attempt outcome (nil-safe).
func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordAuthFailure records a failed bearer authentication (nil-safe).
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrFailureReason, reason)))
}

// RecordTaskMutation records a task create/update/delete (nil-safe).
func (m *Metrics) RecordTaskMutation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.TaskMutationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrTaskOperation, operation)))
}

// RecordRateLimitExceeded records a rate limit violation (nil-safe).
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrHTTPEndpoint, endpoint)))
}

// RecordStorageOperation records a storage call with its outcome (nil-safe).
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMS float64) {
	if m == nil {
		return
	}
	m.StorageOperationDuration.Record(ctx, durationMS,
		metric.WithAttributes(
			attribute.String(AttrStorageOperation, operation),
			attribute.String(AttrStorageResult, result)))
}
