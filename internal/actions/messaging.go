package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/message"
	"github.com/halcyonops/waba-actions/internal/template"
)

// bulkSendConcurrency bounds parallel sends in send_bulk_text.
const bulkSendConcurrency = 4

func registerMessaging(r *dispatch.Registry) {
	r.MustRegister("send_text", sendText)
	r.MustRegister("send_template", sendTemplate)
	r.MustRegister("send_media", sendMedia)
	r.MustRegister("send_reaction", sendReaction)
	r.MustRegister("send_location", sendLocation)
	r.MustRegister("mark_message_read", markMessageRead)
	r.MustRegister("send_bulk_text", sendBulkText)
}

// metaMessage builds the provider message body addressed to one recipient.
func metaMessage(to string, fields map[string]any) ([]byte, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	for k, v := range fields {
		body[k] = v
	}
	return json.Marshal(body)
}

// sendAndRecord sends the payload and persists the outbound message plus the
// conversation update. Persistence failures after a successful send are
// logged, not returned; the message is already on the wire and a 5xx would
// make callers resend it.
func sendAndRecord(ctx context.Context, d *deps.Deps, item *message.Item, payload []byte) (string, error) {
	messageID, err := d.Messaging().Send(ctx, item.PhoneRef, payload)
	if err != nil {
		return "", apierr.Upstream("message send", err)
	}

	item.MessageID = messageID
	item.Direction = message.DirectionOutbound
	item.SenderID = item.PhoneRef
	item.DeliveryStatus = message.StatusAccepted
	if item.SentAt.IsZero() {
		item.SentAt = time.Now().UTC()
	}

	if err := d.Messages().Create(ctx, item); err != nil {
		d.Logger.Warn("outbound message store failed",
			slog.String("messageId", messageID),
			slog.String("error", err.Error()))
		return messageID, nil
	}
	if _, err := d.Conversations().RecordMessage(ctx, conversation.MessageUpdate{
		PhoneRef:      item.PhoneRef,
		CounterpartID: item.CounterpartID,
		WabaID:        item.WabaID,
		MessagePK:     item.PK(),
		SentAt:        item.SentAt,
	}); err != nil {
		d.Logger.Warn("conversation update failed",
			slog.String("messageId", messageID),
			slog.String("error", err.Error()))
	}
	return messageID, nil
}

func sendText(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	to, err := requireString(env.Payload, "to")
	if err != nil {
		return nil, err
	}
	text, err := requireString(env.Payload, "text")
	if err != nil {
		return nil, err
	}

	payload, err := metaMessage(to, map[string]any{
		"type": "text",
		"text": map[string]string{"body": text},
	})
	if err != nil {
		return nil, err
	}

	messageID, err := sendAndRecord(ctx, d, &message.Item{
		WabaID:        wabaID,
		PhoneRef:      phoneRef,
		CounterpartID: to,
		ContentType:   "text",
		Body:          text,
	}, payload)
	if err != nil {
		return nil, err
	}
	return dispatch.OK("send_text", map[string]any{"messageId": messageID}), nil
}

func sendTemplate(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	to, err := requireString(env.Payload, "to")
	if err != nil {
		return nil, err
	}
	name, err := requireString(env.Payload, "templateName")
	if err != nil {
		return nil, err
	}
	lang, err := requireString(env.Payload, "language")
	if err != nil {
		return nil, err
	}
	canonical, err := template.CanonicalLanguage(lang)
	if err != nil {
		return nil, apierr.InvalidArguments(err.Error())
	}

	tmpl := map[string]any{
		"name":     name,
		"language": map[string]string{"code": canonical},
	}
	if components, ok := env.Payload["components"]; ok {
		tmpl["components"] = components
	}

	payload, err := metaMessage(to, map[string]any{
		"type":     "template",
		"template": tmpl,
	})
	if err != nil {
		return nil, err
	}

	messageID, err := sendAndRecord(ctx, d, &message.Item{
		WabaID:        wabaID,
		PhoneRef:      phoneRef,
		CounterpartID: to,
		ContentType:   "template",
		Body:          name,
	}, payload)
	if err != nil {
		return nil, err
	}
	return dispatch.OK("send_template", map[string]any{"messageId": messageID}), nil
}

// mediaTypes are the attachment kinds the channel accepts.
var mediaTypes = map[string]bool{
	"image":    true,
	"video":    true,
	"audio":    true,
	"document": true,
	"sticker":  true,
}

func sendMedia(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	to, err := requireString(env.Payload, "to")
	if err != nil {
		return nil, err
	}
	mediaType, err := requireString(env.Payload, "mediaType")
	if err != nil {
		return nil, err
	}
	if !mediaTypes[mediaType] {
		return nil, apierr.InvalidArguments("field \"mediaType\" must be one of image, video, audio, document, sticker")
	}
	mediaKey, err := requireString(env.Payload, "mediaKey")
	if err != nil {
		return nil, err
	}

	mediaID, err := d.Messaging().UploadMedia(ctx, phoneRef, d.Config.MediaBucket, mediaKey)
	if err != nil {
		return nil, apierr.Upstream("media upload", err)
	}

	attachment := map[string]any{"id": mediaID}
	caption := optString(env.Payload, "caption")
	if caption != "" && mediaType != "audio" && mediaType != "sticker" {
		attachment["caption"] = caption
	}

	payload, err := metaMessage(to, map[string]any{
		"type":    mediaType,
		mediaType: attachment,
	})
	if err != nil {
		return nil, err
	}

	messageID, err := sendAndRecord(ctx, d, &message.Item{
		WabaID:        wabaID,
		PhoneRef:      phoneRef,
		CounterpartID: to,
		ContentType:   mediaType,
		Body:          caption,
		MediaKey:      mediaKey,
	}, payload)
	if err != nil {
		return nil, err
	}
	return dispatch.OK("send_media", map[string]any{
		"messageId": messageID,
		"mediaId":   mediaID,
	}), nil
}

func sendReaction(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	to, err := requireString(env.Payload, "to")
	if err != nil {
		return nil, err
	}
	targetID, err := requireString(env.Payload, "messageId")
	if err != nil {
		return nil, err
	}
	emoji, err := requireString(env.Payload, "emoji")
	if err != nil {
		return nil, err
	}

	payload, err := metaMessage(to, map[string]any{
		"type": "reaction",
		"reaction": map[string]string{
			"message_id": targetID,
			"emoji":      emoji,
		},
	})
	if err != nil {
		return nil, err
	}

	// Reactions are ephemeral annotations, not conversation entries; send
	// without persisting a message row.
	messageID, err := d.Messaging().Send(ctx, phoneRef, payload)
	if err != nil {
		return nil, apierr.Upstream("reaction send", err)
	}
	return dispatch.OK("send_reaction", map[string]any{"messageId": messageID}), nil
}

func sendLocation(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	to, err := requireString(env.Payload, "to")
	if err != nil {
		return nil, err
	}
	lat, ok := env.Payload["latitude"].(float64)
	if !ok {
		return nil, apierr.MissingField("latitude")
	}
	lng, ok := env.Payload["longitude"].(float64)
	if !ok {
		return nil, apierr.MissingField("longitude")
	}

	location := map[string]any{
		"latitude":  lat,
		"longitude": lng,
	}
	if name := optString(env.Payload, "name"); name != "" {
		location["name"] = name
	}
	if address := optString(env.Payload, "address"); address != "" {
		location["address"] = address
	}

	payload, err := metaMessage(to, map[string]any{
		"type":     "location",
		"location": location,
	})
	if err != nil {
		return nil, err
	}

	messageID, err := sendAndRecord(ctx, d, &message.Item{
		WabaID:        wabaID,
		PhoneRef:      phoneRef,
		CounterpartID: to,
		ContentType:   "location",
	}, payload)
	if err != nil {
		return nil, err
	}
	return dispatch.OK("send_location", map[string]any{"messageId": messageID}), nil
}

func markMessageRead(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	messageID, err := requireString(env.Payload, "messageId")
	if err != nil {
		return nil, err
	}

	msg, err := d.Messages().Get(ctx, messageID)
	if err != nil {
		if err == message.ErrMessageNotFound {
			return nil, apierr.NotFound("message " + messageID + " not found")
		}
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := d.Messaging().Send(ctx, phoneRef, payload); err != nil {
		return nil, apierr.Upstream("read receipt", err)
	}

	if err := d.Conversations().MarkRead(ctx, msg.PhoneRef, msg.CounterpartID); err != nil {
		d.Logger.Warn("conversation mark-read failed",
			slog.String("messageId", messageID),
			slog.String("error", err.Error()))
	}
	return dispatch.OK("mark_message_read", map[string]any{"messageId": messageID}), nil
}

func sendBulkText(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	phoneRef, err := originationPhone(env, d)
	if err != nil {
		return nil, err
	}
	text, err := requireString(env.Payload, "text")
	if err != nil {
		return nil, err
	}
	recipients, err := requireStringSlice(env.Payload, "recipients")
	if err != nil {
		return nil, err
	}

	type result struct {
		To        string `json:"to"`
		MessageID string `json:"messageId,omitempty"`
		Error     string `json:"error,omitempty"`
	}

	var mu sync.Mutex
	results := make([]result, 0, len(recipients))
	failed := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bulkSendConcurrency)
	for _, to := range recipients {
		g.Go(func() error {
			payload, err := metaMessage(to, map[string]any{
				"type": "text",
				"text": map[string]string{"body": text},
			})
			var messageID string
			if err == nil {
				messageID, err = sendAndRecord(gCtx, d, &message.Item{
					WabaID:        wabaID,
					PhoneRef:      phoneRef,
					CounterpartID: to,
					ContentType:   "text",
					Body:          text,
				}, payload)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				results = append(results, result{To: to, Error: apierr.FromError(err).Message})
			} else {
				results = append(results, result{To: to, MessageID: messageID})
			}
			// Per-recipient failures are reported, not propagated; one bad
			// number must not cancel the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	return dispatch.OK("send_bulk_text", map[string]any{
		"results": results,
		"sent":    len(recipients) - failed,
		"failed":  failed,
	}), nil
}
