// Package otel wires the span/counter surface this core emits
// (turn.duration, cron.tick.jobs_run, heartbeat.interval_ms) to
// OpenTelemetry's global providers. NewTracerProvider builds a real
// go.opentelemetry.io/otel/sdk/trace provider with no span processor
// registered, so spans are genuinely created and timed but dropped rather
// than exported — operators wire an exporter on top via
// sdktrace.WithBatcher for production use. Metrics use the bare
// go.opentelemetry.io/otel/metric API, which already falls back to a
// no-op implementation when no metric SDK provider is registered, matching
// the same "instrumented, not exported" default.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds a TracerProvider with no exporter wired in.
func NewTracerProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(opts...)
}

// Register installs tp as the global TracerProvider, so Tracer(name) below
// (and any other otel.Tracer call in the process) picks it up.
func Register(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

// Tracer returns the named tracer from the globally registered provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the named meter from the globally registered provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
