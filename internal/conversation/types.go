// Package conversation provides types and storage for conversation rows:
// one row per (business phone, counterpart) pair.
package conversation

import (
	"time"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Item is a conversation row. Updates go through compare-and-swap on Version
// so two near-simultaneous webhook deliveries cannot overwrite each other's
// unread counts.
type Item struct {
	PhoneRef        string
	CounterpartID   string
	WabaID          string
	CounterpartName string
	UnreadCount     int
	LastMessagePK   string
	LastMessageAt   time.Time
	Version         int64
	UpdatedAt       time.Time
}

// PK returns the partition key for this conversation.
func (c *Item) PK() string {
	return dynamo.PrefixConversation + c.PhoneRef + dynamo.Delimiter + c.CounterpartID
}

// Key builds a conversation partition key without an Item.
func Key(phoneRef, counterpartID string) string {
	return dynamo.PrefixConversation + phoneRef + dynamo.Delimiter + counterpartID
}
