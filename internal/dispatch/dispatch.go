// Package dispatch routes parsed envelopes to registered action handlers and
// shapes every outcome into the wire response contract.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/tracing"
)

// Response is the JSON-shaped result returned for every action.
type Response map[string]any

// OK builds a success response carrying the operation name and its result
// fields.
func OK(operation string, fields map[string]any) Response {
	resp := Response{
		"statusCode": 200,
		"operation":  operation,
	}
	for k, v := range fields {
		resp[k] = v
	}
	return resp
}

// Error builds an error response from a structured action error. The cause
// chain stays server-side.
func Error(err *apierr.Error) Response {
	return Response{
		"statusCode": err.Status,
		"error": map[string]any{
			"code":    err.Code,
			"message": err.Message,
		},
	}
}

// HandlerFunc implements one action. Handlers return either a Response or an
// error; the dispatcher converts errors into the response contract.
type HandlerFunc func(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (Response, error)

// Registry maps action names to handlers. Registration happens at cold start;
// Dispatch is safe for concurrent use afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for the action name. Registering the same name
// twice is a wiring bug and returns an error.
func (r *Registry) Register(action string, h HandlerFunc) error {
	if action == "" {
		return fmt.Errorf("action name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q must not be nil", action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[action]; exists {
		return fmt.Errorf("action %q already registered", action)
	}
	r.handlers[action] = h
	return nil
}

// MustRegister is Register that panics on error, for cold-start wiring.
func (r *Registry) MustRegister(action string, h HandlerFunc) {
	if err := r.Register(action, h); err != nil {
		panic(err)
	}
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for the envelope's action. The second return is
// false when no handler is registered for the action, so callers can route
// unknown actions elsewhere. Handler panics and errors are converted at this
// single boundary; internal causes are logged, never returned.
func (r *Registry) Dispatch(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (resp Response, ok bool) {
	r.mu.RLock()
	h, found := r.handlers[env.Action]
	r.mu.RUnlock()
	if !found {
		return nil, false
	}

	ctx, span := tracing.Tracer("waba-actions").Start(ctx, "Dispatch")
	span.SetAttributes(
		attribute.String("waba.action", env.Action),
		attribute.String("waba.source", string(env.Source)),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			logger(d).Error("handler panicked",
				slog.String("action", env.Action),
				slog.String("requestId", env.RequestID),
				slog.Any("panic", rec))
			resp = Error(apierr.Internal(fmt.Errorf("panic: %v", rec)))
			ok = true
		}
	}()

	result, err := h(ctx, env, d)
	if err != nil {
		ae := apierr.FromError(err)
		logger(d).Error("action failed",
			slog.String("action", env.Action),
			slog.String("requestId", env.RequestID),
			slog.Int("status", ae.Status),
			slog.String("error", ae.Error()))
		return Error(ae), true
	}
	return result, true
}

func logger(d *deps.Deps) *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
