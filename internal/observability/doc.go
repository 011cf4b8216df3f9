// Package observability configures process-wide logging.
//
// Instrument installs a slog default logger writing text or JSON to stderr.
// When a telemetry exporter is selected, records are also sent through the
// OpenTelemetry log SDK, filtered to the same minimum level. Records logged
// with a context that carries a span get trace_id and span_id attributes.
package observability
