package actions

import (
	"context"
	"encoding/json"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/inbound"
)

func registerWebhooks(r *dispatch.Registry) {
	r.MustRegister("process_webhook_event", processWebhookEvent)
	r.MustRegister("replay_webhook_event", replayWebhookEvent)
}

// processWebhookEvent is the explicit-action form of the inbound pipeline,
// for operators pushing a webhook body through by hand. The event goes
// through the same idempotency guard as organic deliveries.
func processWebhookEvent(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	event, ok := env.Payload["event"]
	if !ok || event == nil {
		return nil, apierr.MissingField("event")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, apierr.InvalidArguments("field \"event\" is not serializable")
	}

	inner := &envelope.Envelope{
		Kind:      envelope.KindInboundEvent,
		RequestID: env.RequestID,
		Source:    env.Source,
		Raw:       raw,
	}
	if err := inbound.FromDeps(d).Process(ctx, inner); err != nil {
		return nil, apierr.Upstream("webhook processing", err)
	}
	return dispatch.OK("process_webhook_event", map[string]any{"processed": true}), nil
}

// replayWebhookEvent re-runs a previously delivered webhook body. Replays go
// through the idempotency guard like any delivery, so a replay of an already
// processed event succeeds without duplicating side effects.
func replayWebhookEvent(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	resp, err := processWebhookEvent(ctx, env, d)
	if err != nil {
		return nil, err
	}
	resp["operation"] = "replay_webhook_event"
	return resp, nil
}
