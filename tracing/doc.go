// Package tracing wraps OpenTelemetry for process and activity spans. Spans
// are no-ops until Init or InitWithExporter installs a provider.
package tracing
