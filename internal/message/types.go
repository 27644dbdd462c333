// Package message provides types and storage for WhatsApp messages.
package message

import (
	"time"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Direction is fixed at creation and never changes.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// DeliveryStatus tracks the provider-reported delivery state.
type DeliveryStatus string

const (
	StatusAccepted  DeliveryStatus = "ACCEPTED"
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
	StatusFailed    DeliveryStatus = "FAILED"
)

// StatusChange is one entry in the delivery status history.
type StatusChange struct {
	Status DeliveryStatus `json:"status"`
	At     time.Time      `json:"at"`
}

// Item is a message row. Immutable once written except DeliveryStatus and
// StatusHistory.
type Item struct {
	MessageID      string
	WabaID         string
	PhoneRef       string
	CounterpartID  string
	SenderID       string
	Direction      Direction
	ContentType    string
	Body           string
	MediaKey       string
	DeliveryStatus DeliveryStatus
	StatusHistory  []StatusChange
	SentAt         time.Time
}

// PK returns the partition key for this message.
func (m *Item) PK() string {
	return dynamo.PrefixMessage + m.MessageID
}

// ConversationPK returns the partition key of the conversation this message
// belongs to, which doubles as the conversation GSI key.
func (m *Item) ConversationPK() string {
	return dynamo.PrefixConversation + m.PhoneRef + dynamo.Delimiter + m.CounterpartID
}
