package inbound

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// webhookEvent is the payload delivered for an organic WhatsApp event. The
// entry arrives either as a JSON string or as an inline object depending on
// the forwarding path, so it is captured raw and decoded in two steps.
type webhookEvent struct {
	Context struct {
		MetaWabaIDs []struct {
			WabaID string `json:"wabaId"`
		} `json:"MetaWabaIds"`
	} `json:"context"`
	Entry json.RawMessage `json:"whatsAppWebhookEntry"`
}

// webhookEntry is one Meta webhook entry: the WABA it belongs to plus a list
// of field changes.
type webhookEntry struct {
	ID      string `json:"id"`
	Changes []struct {
		Field string      `json:"field"`
		Value changeValue `json:"value"`
	} `json:"changes"`
}

type changeValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []inboundMessage `json:"messages"`
	Statuses []statusUpdate   `json:"statuses"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    mediaRef `json:"image"`
	Video    mediaRef `json:"video"`
	Audio    mediaRef `json:"audio"`
	Document mediaRef `json:"document"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type statusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// body returns the displayable text for the message, falling back to the
// media caption for attachment types.
func (m *inboundMessage) body() string {
	switch m.Type {
	case "text":
		return m.Text.Body
	case "image":
		return m.Image.Caption
	case "video":
		return m.Video.Caption
	case "document":
		return m.Document.Caption
	}
	return ""
}

// media returns the Meta media id for attachment messages, empty otherwise.
func (m *inboundMessage) media() string {
	switch m.Type {
	case "image":
		return m.Image.ID
	case "video":
		return m.Video.ID
	case "audio":
		return m.Audio.ID
	case "document":
		return m.Document.ID
	}
	return ""
}

// sentAt converts the Meta epoch-seconds timestamp, defaulting to now when
// absent or malformed.
func (m *inboundMessage) sentAt() time.Time {
	return epochOrNow(m.Timestamp)
}

func (s *statusUpdate) at() time.Time {
	return epochOrNow(s.Timestamp)
}

func epochOrNow(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// decodeEntry unwraps the webhook entry, handling both the JSON-string and
// inline-object encodings.
func decodeEntry(raw json.RawMessage) (*webhookEntry, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("webhook event has no entry")
	}

	data := []byte(raw)
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("unquote webhook entry: %w", err)
		}
		data = []byte(inner)
	}

	var entry webhookEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode webhook entry: %w", err)
	}
	return &entry, nil
}
