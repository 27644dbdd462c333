package actions

import (
	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/envelope"
)

// tenant resolves the owning WABA id for a request. The wire contract carries
// it as metaWabaId, which parsing copies onto the envelope; wabaId and
// tenantId are accepted as aliases for direct callers.
func tenant(env *envelope.Envelope) string {
	if env.TenantID != "" {
		return env.TenantID
	}
	if v := optString(env.Payload, "metaWabaId"); v != "" {
		return v
	}
	if v := optString(env.Payload, "wabaId"); v != "" {
		return v
	}
	return optString(env.Payload, "tenantId")
}

func requireTenant(env *envelope.Envelope) (string, error) {
	if v := tenant(env); v != "" {
		return v, nil
	}
	return "", apierr.MissingField("metaWabaId")
}

// originationPhone resolves the sending phone number id, falling back to the
// deployment's default number when the request names none.
func originationPhone(env *envelope.Envelope, d *deps.Deps) (string, error) {
	if v := optString(env.Payload, "phoneNumberId"); v != "" {
		return v, nil
	}
	if d.Config.DefaultPhoneID != "" {
		return d.Config.DefaultPhoneID, nil
	}
	return "", apierr.MissingField("phoneNumberId")
}
