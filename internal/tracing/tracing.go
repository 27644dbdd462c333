// Package tracing provides access to the process tracer.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the global provider. The provider is
// installed once at startup by awsinit; before that this returns a no-op tracer,
// which keeps library code usable in tests without any OTel setup.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
