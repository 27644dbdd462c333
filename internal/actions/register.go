// Package actions implements the operator-facing action handlers, grouped by
// topic. Each file registers its handlers into the shared registry; wiring
// happens once at cold start via RegisterAll.
package actions

import (
	"github.com/halcyonops/waba-actions/internal/dispatch"
)

// RegisterAll registers every action handler into the registry.
func RegisterAll(r *dispatch.Registry) {
	registerMessaging(r)
	registerQueries(r)
	registerTemplates(r)
	registerMedia(r)
	registerPayments(r)
	registerProfiles(r)
	registerWebhooks(r)
	registerNotifications(r)
}

// NewRegistry builds a registry with every handler registered.
func NewRegistry() *dispatch.Registry {
	r := dispatch.NewRegistry()
	RegisterAll(r)
	return r
}
