package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/template"
)

func registerTemplates(r *dispatch.Registry) {
	r.MustRegister("create_template", createTemplate)
	r.MustRegister("update_template_status", updateTemplateStatus)
	r.MustRegister("list_templates", listTemplates)
	r.MustRegister("delete_template", deleteTemplate)
}

func templateView(t *template.Item) map[string]any {
	view := map[string]any{
		"wabaId":    t.WabaID,
		"name":      t.Name,
		"language":  t.Language,
		"category":  t.Category,
		"status":    string(t.Status),
		"updatedAt": t.UpdatedAt.Format(time.RFC3339),
	}
	if t.Reason != "" {
		view["reason"] = t.Reason
	}
	return view
}

// templateKey validates and canonicalizes the (wabaId, name, language)
// triple every template action addresses.
func templateKey(env *envelope.Envelope) (wabaID, name, lang string, err error) {
	if wabaID, err = requireTenant(env); err != nil {
		return
	}
	if name, err = requireString(env.Payload, "name"); err != nil {
		return
	}
	if lang, err = requireString(env.Payload, "language"); err != nil {
		return
	}
	canonical, cerr := template.CanonicalLanguage(lang)
	if cerr != nil {
		err = apierr.InvalidArguments(cerr.Error())
		return
	}
	lang = canonical
	return
}

func createTemplate(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, name, lang, err := templateKey(env)
	if err != nil {
		return nil, err
	}
	bodyText, err := requireString(env.Payload, "bodyText")
	if err != nil {
		return nil, err
	}

	tmpl := &template.Item{
		WabaID:    wabaID,
		Name:      name,
		Language:  lang,
		Category:  optString(env.Payload, "category"),
		BodyText:  bodyText,
		Status:    template.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.Templates().Create(ctx, tmpl); err != nil {
		if err == template.ErrTemplateExists {
			return nil, apierr.Conflict(fmt.Sprintf("template %s/%s already exists", name, lang))
		}
		return nil, err
	}
	return dispatch.OK("create_template", map[string]any{"template": templateView(tmpl)}), nil
}

func updateTemplateStatus(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, name, lang, err := templateKey(env)
	if err != nil {
		return nil, err
	}
	statusStr, err := requireString(env.Payload, "status")
	if err != nil {
		return nil, err
	}
	status := template.Status(statusStr)
	reason := optString(env.Payload, "reason")

	current, err := d.Templates().Get(ctx, wabaID, name, lang)
	if err != nil {
		if err == template.ErrTemplateNotFound {
			return nil, apierr.NotFound(fmt.Sprintf("template %s/%s not found", name, lang))
		}
		return nil, err
	}
	if !template.CanTransition(current.Status, status) {
		return nil, apierr.Conflict(fmt.Sprintf("cannot move template from %s to %s", current.Status, status))
	}

	if err := d.Templates().UpdateStatus(ctx, wabaID, name, lang, status, reason); err != nil {
		return nil, err
	}

	if status == template.StatusRejected {
		subject := fmt.Sprintf("Template %s/%s rejected", name, lang)
		body := fmt.Sprintf("Template %s (%s) for WABA %s was rejected.\nReason: %s\n", name, lang, wabaID, reason)
		if err := d.Mailer().SendAlert(ctx, d.Config.AlertRecipients, subject, body); err != nil {
			d.Logger.Warn("rejection alert failed",
				slog.String("template", name),
				slog.String("error", err.Error()))
		}
	}

	return dispatch.OK("update_template_status", map[string]any{
		"name":     name,
		"language": lang,
		"status":   string(status),
	}), nil
}

func listTemplates(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}

	templates, err := d.Templates().ListByWaba(ctx, wabaID)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		views = append(views, templateView(t))
	}
	return dispatch.OK("list_templates", map[string]any{
		"templates": views,
		"count":     len(views),
	}), nil
}

func deleteTemplate(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, name, lang, err := templateKey(env)
	if err != nil {
		return nil, err
	}

	if err := d.Templates().Delete(ctx, wabaID, name, lang); err != nil {
		if err == template.ErrTemplateNotFound {
			return nil, apierr.NotFound(fmt.Sprintf("template %s/%s not found", name, lang))
		}
		return nil, err
	}
	return dispatch.OK("delete_template", map[string]any{
		"name":     name,
		"language": lang,
	}), nil
}
