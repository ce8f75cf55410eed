// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry tracing setup, and graceful shutdown
// coordination for the Telesis service.
package observability
