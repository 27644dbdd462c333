package actions

import (
	"context"
	"time"

	"github.com/halcyonops/waba-actions/internal/apierr"
	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/message"
)

// defaultQueryLimit caps list results when the caller gives no limit.
const defaultQueryLimit = 50

func registerQueries(r *dispatch.Registry) {
	r.MustRegister("get_message", getMessage)
	r.MustRegister("list_conversation_messages", listConversationMessages)
	r.MustRegister("list_conversations", listConversations)
	r.MustRegister("get_conversation", getConversation)
}

func messageView(m *message.Item) map[string]any {
	view := map[string]any{
		"messageId":      m.MessageID,
		"wabaId":         m.WabaID,
		"phoneNumberId":  m.PhoneRef,
		"counterpartId":  m.CounterpartID,
		"direction":      string(m.Direction),
		"contentType":    m.ContentType,
		"deliveryStatus": string(m.DeliveryStatus),
		"sentAt":         m.SentAt.Format(time.RFC3339),
	}
	if m.Body != "" {
		view["body"] = m.Body
	}
	if m.MediaKey != "" {
		view["mediaKey"] = m.MediaKey
	}
	if len(m.StatusHistory) > 0 {
		history := make([]map[string]any, 0, len(m.StatusHistory))
		for _, h := range m.StatusHistory {
			history = append(history, map[string]any{
				"status": string(h.Status),
				"at":     h.At.Format(time.RFC3339),
			})
		}
		view["statusHistory"] = history
	}
	return view
}

func conversationView(c *conversation.Item) map[string]any {
	return map[string]any{
		"phoneNumberId":   c.PhoneRef,
		"counterpartId":   c.CounterpartID,
		"counterpartName": c.CounterpartName,
		"wabaId":          c.WabaID,
		"unreadCount":     c.UnreadCount,
		"lastMessageAt":   c.LastMessageAt.Format(time.RFC3339),
		"updatedAt":       c.UpdatedAt.Format(time.RFC3339),
	}
}

func getMessage(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
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
	return dispatch.OK("get_message", map[string]any{"message": messageView(msg)}), nil
}

func listConversationMessages(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	phoneRef, err := requireString(env.Payload, "phoneNumberId")
	if err != nil {
		return nil, err
	}
	counterpartID, err := requireString(env.Payload, "counterpartId")
	if err != nil {
		return nil, err
	}
	limit := int32(optNumber(env.Payload, "limit", defaultQueryLimit))

	msgs, err := d.Messages().QueryByConversation(ctx, conversation.Key(phoneRef, counterpartID), limit)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView(m))
	}
	return dispatch.OK("list_conversation_messages", map[string]any{
		"messages": views,
		"count":    len(views),
	}), nil
}

func listConversations(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	wabaID, err := requireTenant(env)
	if err != nil {
		return nil, err
	}
	limit := int32(optNumber(env.Payload, "limit", defaultQueryLimit))

	convs, err := d.Conversations().ListByWaba(ctx, wabaID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(convs))
	for _, c := range convs {
		views = append(views, conversationView(c))
	}
	return dispatch.OK("list_conversations", map[string]any{
		"conversations": views,
		"count":         len(views),
	}), nil
}

func getConversation(ctx context.Context, env *envelope.Envelope, d *deps.Deps) (dispatch.Response, error) {
	phoneRef, err := requireString(env.Payload, "phoneNumberId")
	if err != nil {
		return nil, err
	}
	counterpartID, err := requireString(env.Payload, "counterpartId")
	if err != nil {
		return nil, err
	}

	conv, err := d.Conversations().Get(ctx, phoneRef, counterpartID)
	if err != nil {
		if err == conversation.ErrConversationNotFound {
			return nil, apierr.NotFound("conversation not found")
		}
		return nil, err
	}
	return dispatch.OK("get_conversation", map[string]any{"conversation": conversationView(conv)}), nil
}
