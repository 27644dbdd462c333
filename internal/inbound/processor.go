// Package inbound processes organic WhatsApp webhook deliveries: customer
// messages and delivery status updates.
package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonops/waba-actions/internal/assistant"
	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/idempotency"
	"github.com/halcyonops/waba-actions/internal/message"
	"github.com/halcyonops/waba-actions/internal/messaging"
	"github.com/halcyonops/waba-actions/internal/notify"
	"github.com/halcyonops/waba-actions/internal/tracing"
)

// autoReplyHistory is how many recent messages feed the reply generator.
const autoReplyHistory = 10

// Processor handles webhook deliveries end to end: persist, update the
// conversation, optionally auto-reply, and publish notifications. Every
// message is guarded by an idempotency marker keyed on the provider message
// id, so SNS/SQS redelivery cannot duplicate side effects.
type Processor struct {
	logger        *slog.Logger
	messages      message.Store
	conversations conversation.Store
	idem          idempotency.Store
	sender        messaging.Sender
	replier       assistant.Replier
	events        notify.EventPublisher
	mediaBucket   string
}

// NewProcessor creates a new Processor. An empty mediaBucket disables media
// archival.
func NewProcessor(
	logger *slog.Logger,
	messages message.Store,
	conversations conversation.Store,
	idem idempotency.Store,
	sender messaging.Sender,
	replier assistant.Replier,
	events notify.EventPublisher,
	mediaBucket string,
) *Processor {
	return &Processor{
		logger:        logger,
		messages:      messages,
		conversations: conversations,
		idem:          idem,
		sender:        sender,
		replier:       replier,
		events:        events,
		mediaBucket:   mediaBucket,
	}
}

// FromDeps builds a Processor from the shared dependency container.
func FromDeps(d *deps.Deps) *Processor {
	return NewProcessor(
		d.Logger,
		d.Messages(),
		d.Conversations(),
		d.Idempotency(),
		d.Messaging(),
		d.Assistant(),
		d.Events(),
		d.Config.MediaBucket,
	)
}

// Process handles one webhook envelope. Duplicate deliveries succeed without
// side effects.
func (p *Processor) Process(ctx context.Context, env *envelope.Envelope) error {
	ctx, span := tracing.Tracer("waba-actions").Start(ctx, "ProcessWebhook")
	defer span.End()

	var event webhookEvent
	if err := json.Unmarshal(env.Raw, &event); err != nil {
		return fmt.Errorf("decode webhook event: %w", err)
	}

	entry, err := decodeEntry(event.Entry)
	if err != nil {
		return err
	}

	wabaID := entry.ID
	if wabaID == "" && len(event.Context.MetaWabaIDs) > 0 {
		wabaID = event.Context.MetaWabaIDs[0].WabaID
	}

	for _, change := range entry.Changes {
		if change.Field != "messages" {
			p.logger.Debug("skipping webhook change", slog.String("field", change.Field))
			continue
		}
		for i := range change.Value.Messages {
			if err := p.processMessage(ctx, wabaID, &change.Value, &change.Value.Messages[i]); err != nil {
				return err
			}
		}
		for i := range change.Value.Statuses {
			if err := p.processStatus(ctx, wabaID, &change.Value.Statuses[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, wabaID string, value *changeValue, msg *inboundMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("webhook message has no id")
	}

	outcome, err := p.idem.Begin(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("claim message %s: %w", msg.ID, err)
	}
	switch outcome {
	case idempotency.AlreadyDone:
		p.logger.Info("skipping duplicate message delivery",
			slog.String("messageId", msg.ID))
		return nil
	case idempotency.InFlight:
		// An intent without a done marker means a prior delivery is still
		// running or died mid-flight. Fail the record so the trigger
		// redelivers; a dead intent becomes reclaimable once it goes stale.
		return fmt.Errorf("message %s has an unfinished delivery in flight", msg.ID)
	}

	phoneRef := value.Metadata.PhoneNumberID
	item := &message.Item{
		MessageID:      msg.ID,
		WabaID:         wabaID,
		PhoneRef:       phoneRef,
		CounterpartID:  msg.From,
		SenderID:       msg.From,
		Direction:      message.DirectionInbound,
		ContentType:    msg.Type,
		Body:           msg.body(),
		MediaKey:       msg.media(),
		DeliveryStatus: message.StatusDelivered,
		SentAt:         msg.sentAt(),
	}

	if mediaID := msg.media(); mediaID != "" && p.mediaBucket != "" {
		key := wabaID + "/" + mediaID
		if err := p.sender.FetchMedia(ctx, phoneRef, mediaID, p.mediaBucket, key); err != nil {
			// Provider media expires after a while; keep the raw media id so a
			// later replay can retry the archive.
			p.logger.Warn("media archive failed",
				slog.String("messageId", msg.ID),
				slog.String("mediaId", mediaID),
				slog.String("error", err.Error()))
		} else {
			item.MediaKey = key
		}
	}

	if err := p.messages.Create(ctx, item); err != nil {
		if err == message.ErrMessageExists {
			p.logger.Info("message row already present",
				slog.String("messageId", msg.ID))
			return p.idem.Complete(ctx, msg.ID)
		}
		return fmt.Errorf("store message %s: %w", msg.ID, err)
	}

	conv, err := p.conversations.RecordMessage(ctx, conversation.MessageUpdate{
		PhoneRef:        phoneRef,
		CounterpartID:   msg.From,
		WabaID:          wabaID,
		CounterpartName: contactName(value, msg.From),
		MessagePK:       item.PK(),
		SentAt:          item.SentAt,
		Inbound:         true,
	})
	if err != nil {
		return fmt.Errorf("record conversation for %s: %w", msg.ID, err)
	}

	if p.replier != nil && p.replier.Enabled() && msg.Type == "text" {
		p.autoReply(ctx, wabaID, conv, item)
	}

	p.publish(ctx, notify.Event{
		Type:   "message.received",
		WabaID: wabaID,
		Detail: mustDetail(map[string]any{
			"messageId": msg.ID,
			"from":      msg.From,
			"phoneRef":  phoneRef,
			"type":      msg.Type,
		}),
	})

	if err := p.idem.Complete(ctx, msg.ID); err != nil {
		return fmt.Errorf("complete marker for %s: %w", msg.ID, err)
	}
	return nil
}

// autoReply generates and sends an assistant reply. Failures are logged, not
// returned; a missed auto-reply must not make the webhook redeliver and
// duplicate the stored message.
func (p *Processor) autoReply(ctx context.Context, wabaID string, conv *conversation.Item, inbound *message.Item) {
	recent, err := p.messages.QueryByConversation(ctx, inbound.ConversationPK(), autoReplyHistory)
	if err != nil {
		p.logger.Warn("auto-reply history lookup failed", slog.String("error", err.Error()))
		recent = []*message.Item{inbound}
	}

	history := make([]string, 0, len(recent))
	for _, m := range recent {
		if m.Body != "" {
			history = append(history, string(m.Direction)+": "+m.Body)
		}
	}

	reply, err := p.replier.Reply(ctx, conv.CounterpartName, history)
	if err != nil || reply == "" {
		if err != nil {
			p.logger.Warn("auto-reply generation failed", slog.String("error", err.Error()))
		}
		return
	}

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                inbound.CounterpartID,
		"type":              "text",
		"text":              map[string]string{"body": reply},
	})
	if err != nil {
		p.logger.Warn("auto-reply payload marshal failed", slog.String("error", err.Error()))
		return
	}

	sentID, err := p.sender.Send(ctx, inbound.PhoneRef, payload)
	if err != nil {
		p.logger.Warn("auto-reply send failed", slog.String("error", err.Error()))
		return
	}

	out := &message.Item{
		MessageID:      sentID,
		WabaID:         wabaID,
		PhoneRef:       inbound.PhoneRef,
		CounterpartID:  inbound.CounterpartID,
		SenderID:       inbound.PhoneRef,
		Direction:      message.DirectionOutbound,
		ContentType:    "text",
		Body:           reply,
		DeliveryStatus: message.StatusAccepted,
		SentAt:         time.Now().UTC(),
	}
	if err := p.messages.Create(ctx, out); err != nil {
		p.logger.Warn("auto-reply message store failed", slog.String("error", err.Error()))
		return
	}
	if _, err := p.conversations.RecordMessage(ctx, conversation.MessageUpdate{
		PhoneRef:      inbound.PhoneRef,
		CounterpartID: inbound.CounterpartID,
		WabaID:        wabaID,
		MessagePK:     out.PK(),
		SentAt:        out.SentAt,
	}); err != nil {
		p.logger.Warn("auto-reply conversation update failed", slog.String("error", err.Error()))
	}
}

func (p *Processor) processStatus(ctx context.Context, wabaID string, status *statusUpdate) error {
	mapped, ok := mapDeliveryStatus(status.Status)
	if !ok {
		p.logger.Debug("skipping unknown delivery status",
			slog.String("status", status.Status))
		return nil
	}

	if err := p.messages.UpdateDeliveryStatus(ctx, status.ID, mapped, status.at()); err != nil {
		if err == message.ErrMessageNotFound {
			// Status for a message sent outside this system; nothing to update.
			p.logger.Info("status for unknown message",
				slog.String("messageId", status.ID))
			return nil
		}
		return fmt.Errorf("update status for %s: %w", status.ID, err)
	}

	p.publish(ctx, notify.Event{
		Type:   "message.status_changed",
		WabaID: wabaID,
		Detail: mustDetail(map[string]any{
			"messageId": status.ID,
			"status":    string(mapped),
		}),
	})
	return nil
}

func (p *Processor) publish(ctx context.Context, event notify.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("event publish failed",
			slog.String("eventType", event.Type),
			slog.String("error", err.Error()))
	}
}

func contactName(value *changeValue, waID string) string {
	for _, c := range value.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}

func mapDeliveryStatus(s string) (message.DeliveryStatus, bool) {
	switch s {
	case "sent":
		return message.StatusSent, true
	case "delivered":
		return message.StatusDelivered, true
	case "read":
		return message.StatusRead, true
	case "failed":
		return message.StatusFailed, true
	}
	return "", false
}

func mustDetail(fields map[string]any) json.RawMessage {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return body
}
