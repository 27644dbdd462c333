package actions

import (
	"context"
	"time"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/profile"
)

func registerProfiles(r *dispatch.Registry) {
	r.MustRegister("set_business_profile", setBusinessProfile)
	r.MustRegister("apply_business_profile", applyBusinessProfile)
	r.MustRegister("get_business_profile", getBusinessProfile)
	r.MustRegister("set_welcome_message", setWelcomeMessage)
	r.MustRegister("get_welcome_message", getWelcomeMessage)
	r.MustRegister("set_menu", setMenu)
	r.MustRegister("get_menu", getMenu)
	r.MustRegister("set_payment_config", setPaymentConfig)
}

func setBusinessProfile(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}

	p := &profile.BusinessProfile{
		TenantID:    tenantID,
		About:       optString(env.Payload, "about"),
		Address:     optString(env.Payload, "address"),
		Description: optString(env.Payload, "description"),
		Email:       optString(env.Payload, "email"),
		Websites:    optStringSlice(env.Payload, "websites"),
		Vertical:    optString(env.Payload, "vertical"),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := d.Profiles().PutBusinessProfile(ctx, p); err != nil {
		return nil, err
	}
	return dispatch.OK("set_business_profile", map[string]any{
		"tenantId": tenantID,
		"applied":  false,
	}), nil
}

func applyBusinessProfile(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	ackBy, err := requireString(env.Payload, "ackBy")
	if err != nil {
		return nil, err
	}

	if err := d.Profiles().ApplyBusinessProfile(ctx, tenantID, ackBy); err != nil {
		switch err {
		case profile.ErrAckRequired:
			return nil, apierr.MissingField("ackBy")
		case profile.ErrNothingToApply:
			return nil, apierr.Conflict("no pending profile changes for tenant " + tenantID)
		}
		return nil, err
	}
	return dispatch.OK("apply_business_profile", map[string]any{
		"tenantId":  tenantID,
		"appliedBy": ackBy,
	}), nil
}

func getBusinessProfile(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}

	p, err := d.Profiles().GetBusinessProfile(ctx, tenantID)
	if err != nil {
		if err == profile.ErrNotFound {
			return nil, apierr.NotFound("no business profile for tenant " + tenantID)
		}
		return nil, err
	}
	return dispatch.OK("get_business_profile", map[string]any{
		"profile": map[string]any{
			"tenantId":    p.TenantID,
			"about":       p.About,
			"address":     p.Address,
			"description": p.Description,
			"email":       p.Email,
			"websites":    p.Websites,
			"vertical":    p.Vertical,
			"applied":     p.Applied,
			"appliedBy":   p.AppliedBy,
			"updatedAt":   p.UpdatedAt.Format(time.RFC3339),
		},
	}), nil
}

func setWelcomeMessage(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	text, err := requireString(env.Payload, "text")
	if err != nil {
		return nil, err
	}

	w := &profile.WelcomeMessage{
		TenantID:  tenantID,
		Text:      text,
		Enabled:   optBool(env.Payload, "enabled"),
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.Profiles().PutWelcomeMessage(ctx, w); err != nil {
		return nil, err
	}
	return dispatch.OK("set_welcome_message", map[string]any{
		"tenantId": tenantID,
		"enabled":  w.Enabled,
	}), nil
}

func getWelcomeMessage(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}

	w, err := d.Profiles().GetWelcomeMessage(ctx, tenantID)
	if err != nil {
		if err == profile.ErrNotFound {
			return nil, apierr.NotFound("no welcome message for tenant " + tenantID)
		}
		return nil, err
	}
	return dispatch.OK("get_welcome_message", map[string]any{
		"tenantId": w.TenantID,
		"text":     w.Text,
		"enabled":  w.Enabled,
	}), nil
}

func setMenu(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	name, err := requireString(env.Payload, "name")
	if err != nil {
		return nil, err
	}

	rawItems, ok := env.Payload["items"].([]any)
	if !ok || len(rawItems) == 0 {
		return nil, apierr.InvalidArguments("field \"items\" must be a non-empty array")
	}
	items := make([]profile.MenuItem, 0, len(rawItems))
	for _, raw := range rawItems {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, apierr.InvalidArguments("field \"items\" must contain objects")
		}
		id, err := requireString(entry, "id")
		if err != nil {
			return nil, err
		}
		title, err := requireString(entry, "title")
		if err != nil {
			return nil, err
		}
		items = append(items, profile.MenuItem{ID: id, Title: title})
	}

	m := &profile.Menu{
		TenantID:  tenantID,
		Name:      name,
		Title:     optString(env.Payload, "title"),
		Items:     items,
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.Profiles().PutMenu(ctx, m); err != nil {
		return nil, err
	}
	return dispatch.OK("set_menu", map[string]any{
		"tenantId": tenantID,
		"name":     name,
		"items":    len(items),
	}), nil
}

func getMenu(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	name, err := requireString(env.Payload, "name")
	if err != nil {
		return nil, err
	}

	m, err := d.Profiles().GetMenu(ctx, tenantID, name)
	if err != nil {
		if err == profile.ErrNotFound {
			return nil, apierr.NotFound("no menu " + name + " for tenant " + tenantID)
		}
		return nil, err
	}

	items := make([]map[string]any, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, map[string]any{"id": item.ID, "title": item.Title})
	}
	return dispatch.OK("get_menu", map[string]any{
		"tenantId": m.TenantID,
		"name":     m.Name,
		"title":    m.Title,
		"items":    items,
	}), nil
}

func setPaymentConfig(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	tenantID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	provider, err := requireString(env.Payload, "provider")
	if err != nil {
		return nil, err
	}
	merchantID, err := requireString(env.Payload, "merchantId")
	if err != nil {
		return nil, err
	}

	c := &profile.PaymentConfig{
		TenantID:   tenantID,
		Provider:   provider,
		MerchantID: merchantID,
		Enabled:    optBool(env.Payload, "enabled"),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := d.Profiles().PutPaymentConfig(ctx, c); err != nil {
		return nil, err
	}
	return dispatch.OK("set_payment_config", map[string]any{
		"tenantId": tenantID,
		"provider": provider,
		"enabled":  c.Enabled,
	}), nil
}
