package actions

import (
	"context"
	"encoding/json"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/notify"
)

func registerNotifications(r *dispatch.Registry) {
	r.MustRegister("subscribe_notifications", subscribeNotifications)
	r.MustRegister("send_operator_alert", sendOperatorAlert)
}

// subscribeNotifications hands back the events topic and announces the
// subscriber, so the caller can attach its endpoint to the topic. Actual
// endpoint subscription stays with the caller's infrastructure.
func subscribeNotifications(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	eventTypes := optStringSlice(env.Payload, "eventTypes")

	detail, err := json.Marshal(map[string]any{
		"wabaId":     wabaID,
		"eventTypes": eventTypes,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Events().Publish(ctx, notify.Event{
		Type:   "subscription.requested",
		WabaID: wabaID,
		Detail: detail,
	}); err != nil {
		return nil, apierr.Upstream("subscription announce", err)
	}

	return dispatch.OK("subscribe_notifications", map[string]any{
		"topicArn":   d.Config.EventsTopicARN,
		"eventTypes": eventTypes,
	}), nil
}

func sendOperatorAlert(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	subject, err := requireString(env.Payload, "subject")
	if err != nil {
		return nil, err
	}
	body, err := requireString(env.Payload, "body")
	if err != nil {
		return nil, err
	}

	recipients := optStringSlice(env.Payload, "recipients")
	if len(recipients) == 0 {
		recipients = d.Config.AlertRecipients
	}
	if len(recipients) == 0 {
		return nil, apierr.InvalidArguments("no recipients given and no default alert recipients configured")
	}

	if err := d.Mailer().SendAlert(ctx, recipients, subject, body); err != nil {
		return nil, apierr.Upstream("alert email", err)
	}
	return dispatch.OK("send_operator_alert", map[string]any{
		"recipients": len(recipients),
	}), nil
}
