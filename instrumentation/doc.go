// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for
// taskwarden.
//
// It exposes metrics (request counts and durations, authentication outcomes,
// task mutations, rate-limit violations) and distributed tracing for the HTTP,
// service, and storage layers. When disabled, no-op providers are used and the
// overhead is zero.
//
// Available metrics:
//   - taskwarden.http.requests.total{method, endpoint, status}
//   - taskwarden.http.request.duration{endpoint}
//   - taskwarden.registrations.total{outcome}
//   - taskwarden.logins.total{outcome}
//   - taskwarden.auth.failures.total{reason}
//   - taskwarden.tasks.mutations.total{operation}
//   - taskwarden.rate_limit.exceeded{endpoint}
//   - taskwarden.audit.events.dropped
//   - taskwarden.storage.operation.duration{operation}
//
// SECURITY: never record credential material (passwords, password hashes,
// bearer tokens) in metric labels or span attributes. Only metadata such as
// outcomes, durations, and identifiers belongs here.
package instrumentation
