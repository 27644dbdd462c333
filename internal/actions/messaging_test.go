package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/message"
)

func actionEnv(action string, payload map[string]any) *envelope.Envelope {
	raw, _ := json.Marshal(payload)
	return &envelope.Envelope{
		Kind:      envelope.KindAction,
		Action:    action,
		RequestID: "req-1",
		Source:    envelope.SourceDirect,
		Payload:   payload,
		Raw:       raw,
	}
}

func testDeps() *deps.Deps {
	return &deps.Deps{Logger: slog.Default()}
}

func TestSendText(t *testing.T) {
	var sentPayload []byte
	var stored *message.Item

	d := testDeps()
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, phoneRef string, payload []byte) (string, error) {
			if phoneRef != "phone1" {
				t.Errorf("expected origination phone1, got %s", phoneRef)
			}
			sentPayload = payload
			return "wamid.out1", nil
		},
	}
	d.MessageStore = &mockMessages{
		create: func(_ context.Context, msg *message.Item) error {
			stored = msg
			return nil
		},
	}
	d.ConversationStore = &mockConversations{
		recordMessage: func(_ context.Context, u conversation.MessageUpdate) (*conversation.Item, error) {
			return &conversation.Item{}, nil
		},
	}

	r := NewRegistry()
	resp, ok := r.Dispatch(context.Background(), actionEnv("send_text", map[string]any{
		"metaWabaId":    "waba1",
		"phoneNumberId": "phone1",
		"to":            "15550001111",
		"text":          "hello",
	}), d)
	if !ok {
		t.Fatal("expected send_text to be registered")
	}

	if resp["statusCode"] != 200 {
		t.Fatalf("expected 200, got %v", resp)
	}
	if resp["operation"] != "send_text" {
		t.Errorf("expected operation send_text, got %v", resp["operation"])
	}
	if resp["messageId"] != "wamid.out1" {
		t.Errorf("expected messageId wamid.out1, got %v", resp["messageId"])
	}

	var body map[string]any
	if err := json.Unmarshal(sentPayload, &body); err != nil {
		t.Fatalf("send payload is not valid JSON: %v", err)
	}
	if body["messaging_product"] != "whatsapp" || body["to"] != "15550001111" {
		t.Errorf("unexpected send payload %v", body)
	}

	if stored == nil || stored.Direction != message.DirectionOutbound {
		t.Errorf("expected outbound message stored, got %+v", stored)
	}
	if stored != nil && stored.WabaID != "waba1" {
		t.Errorf("expected stored wabaId waba1, got %q", stored.WabaID)
	}
}

func TestSendTextMissingFieldSkipsSend(t *testing.T) {
	sendCalls := 0
	d := testDeps()
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, _ string, _ []byte) (string, error) {
			sendCalls++
			return "wamid.x", nil
		},
	}

	r := NewRegistry()
	resp, ok := r.Dispatch(context.Background(), actionEnv("send_text", map[string]any{
		"metaWabaId":    "waba1",
		"phoneNumberId": "phone1",
		"to":            "15550001111",
	}), d)
	if !ok {
		t.Fatal("expected send_text to be registered")
	}

	if resp["statusCode"] != 400 {
		t.Errorf("expected 400 for missing text, got %v", resp["statusCode"])
	}
	if sendCalls != 0 {
		t.Errorf("expected zero sends on validation failure, got %d", sendCalls)
	}
}

func TestSendBulkTextReportsPerRecipient(t *testing.T) {
	d := testDeps()
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, _ string, payload []byte) (string, error) {
			var body map[string]any
			_ = json.Unmarshal(payload, &body)
			if body["to"] == "bad" {
				return "", context.DeadlineExceeded
			}
			return "wamid." + body["to"].(string), nil
		},
	}
	d.MessageStore = &mockMessages{
		create: func(_ context.Context, _ *message.Item) error { return nil },
	}
	d.ConversationStore = &mockConversations{
		recordMessage: func(_ context.Context, _ conversation.MessageUpdate) (*conversation.Item, error) {
			return &conversation.Item{}, nil
		},
	}

	resp, err := sendBulkText(context.Background(), actionEnv("send_bulk_text", map[string]any{
		"metaWabaId":    "waba1",
		"phoneNumberId": "phone1",
		"text":          "promo",
		"recipients":    []any{"a", "bad", "c"},
	}), d)
	if err != nil {
		t.Fatalf("sendBulkText failed: %v", err)
	}

	if resp["sent"] != 2 || resp["failed"] != 1 {
		t.Errorf("expected 2 sent / 1 failed, got sent=%v failed=%v", resp["sent"], resp["failed"])
	}
}

func TestMarkMessageRead(t *testing.T) {
	markedPhone, markedCounterpart := "", ""
	d := testDeps()
	d.MessageStore = &mockMessages{
		get: func(_ context.Context, messageID string) (*message.Item, error) {
			return &message.Item{
				MessageID:     messageID,
				PhoneRef:      "phone1",
				CounterpartID: "15550001111",
			}, nil
		},
	}
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, _ string, payload []byte) (string, error) {
			var body map[string]any
			_ = json.Unmarshal(payload, &body)
			if body["status"] != "read" {
				t.Errorf("expected read receipt payload, got %v", body)
			}
			return "", nil
		},
	}
	d.ConversationStore = &mockConversations{
		markRead: func(_ context.Context, phoneRef, counterpartID string) error {
			markedPhone, markedCounterpart = phoneRef, counterpartID
			return nil
		},
	}

	resp, err := markMessageRead(context.Background(), actionEnv("mark_message_read", map[string]any{
		"phoneNumberId": "phone1",
		"messageId":     "wamid.in1",
	}), d)
	if err != nil {
		t.Fatalf("markMessageRead failed: %v", err)
	}
	if resp["statusCode"] != 200 {
		t.Errorf("expected 200, got %v", resp["statusCode"])
	}
	if markedPhone != "phone1" || markedCounterpart != "15550001111" {
		t.Errorf("expected conversation marked read, got %s/%s", markedPhone, markedCounterpart)
	}
}

func TestSendMediaUploadsFirst(t *testing.T) {
	d := testDeps()
	d.Config.MediaBucket = "media-bucket"
	uploaded := ""
	d.MessagingClient = &mockSender{
		uploadMedia: func(_ context.Context, _, bucket, key string) (string, error) {
			if bucket != "media-bucket" {
				t.Errorf("expected media-bucket, got %s", bucket)
			}
			uploaded = key
			return "media-1", nil
		},
		send: func(_ context.Context, _ string, payload []byte) (string, error) {
			var body map[string]any
			_ = json.Unmarshal(payload, &body)
			img, _ := body["image"].(map[string]any)
			if img["id"] != "media-1" {
				t.Errorf("expected media id media-1 in payload, got %v", body)
			}
			return "wamid.media1", nil
		},
	}
	d.MessageStore = &mockMessages{
		create: func(_ context.Context, _ *message.Item) error { return nil },
	}
	d.ConversationStore = &mockConversations{
		recordMessage: func(_ context.Context, _ conversation.MessageUpdate) (*conversation.Item, error) {
			return &conversation.Item{}, nil
		},
	}

	resp, err := sendMedia(context.Background(), actionEnv("send_media", map[string]any{
		"metaWabaId":    "waba1",
		"phoneNumberId": "phone1",
		"to":            "15550001111",
		"mediaType":     "image",
		"mediaKey":      "waba1/img.jpg",
		"caption":       "look",
	}), d)
	if err != nil {
		t.Fatalf("sendMedia failed: %v", err)
	}
	if uploaded != "waba1/img.jpg" {
		t.Errorf("expected upload of waba1/img.jpg, got %s", uploaded)
	}
	if resp["mediaId"] != "media-1" {
		t.Errorf("expected mediaId media-1, got %v", resp["mediaId"])
	}
}

func TestSendTextWireShape(t *testing.T) {
	var stored *message.Item
	sentPhone := ""

	d := testDeps()
	d.Config.DefaultPhoneID = "phone-default"
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, phoneRef string, _ []byte) (string, error) {
			sentPhone = phoneRef
			return "wamid.out2", nil
		},
	}
	d.MessageStore = &mockMessages{
		create: func(_ context.Context, msg *message.Item) error {
			stored = msg
			return nil
		},
	}
	d.ConversationStore = &mockConversations{
		recordMessage: func(_ context.Context, _ conversation.MessageUpdate) (*conversation.Item, error) {
			return &conversation.Item{}, nil
		},
	}

	env, err := envelope.Parse(json.RawMessage(`{"action":"send_text","metaWabaId":"X","to":"+1555","text":"hi"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if env.TenantID != "X" {
		t.Fatalf("TenantID = %q, want X", env.TenantID)
	}

	r := NewRegistry()
	resp, ok := r.Dispatch(context.Background(), env, d)
	if !ok {
		t.Fatal("expected send_text to be registered")
	}
	if resp["statusCode"] != 200 {
		t.Fatalf("expected 200, got %v", resp)
	}
	if sentPhone != "phone-default" {
		t.Errorf("expected the default origination number, got %q", sentPhone)
	}
	if stored == nil || stored.WabaID != "X" {
		t.Errorf("expected stored wabaId X from metaWabaId, got %+v", stored)
	}
}

func TestSendTextMissingTenantRejected(t *testing.T) {
	sendCalls := 0
	d := testDeps()
	d.MessagingClient = &mockSender{
		send: func(_ context.Context, _ string, _ []byte) (string, error) {
			sendCalls++
			return "wamid.x", nil
		},
	}

	r := NewRegistry()
	resp, _ := r.Dispatch(context.Background(), actionEnv("send_text", map[string]any{
		"phoneNumberId": "phone1",
		"to":            "15550001111",
		"text":          "hello",
	}), d)
	if resp["statusCode"] != 400 {
		t.Errorf("expected 400 for missing tenant, got %v", resp["statusCode"])
	}
	if sendCalls != 0 {
		t.Errorf("expected zero sends, got %d", sendCalls)
	}
}
