// Package dynamo defines the single-table contract shared by every
// repository: partition-key prefixes, the itemType discriminator, the GSI
// names with the key attributes each entity must populate, and a write-time
// schema guard keeping the two consistent.
package dynamo

// Primary key and discriminator attributes.
const (
	AttrPK       = "pk"
	AttrItemType = "itemType"

	// AttrTTL is the epoch-seconds expiry attribute for TTL-bounded rows.
	AttrTTL = "expiresAt"
)

// Delimiter joins identifier segments inside a partition key.
const Delimiter = "#"

// Key prefixes. A partition key is the type prefix concatenated with one or
// more natural identifiers, delimited by '#'.
const (
	PrefixMessage      = "MSG#"
	PrefixConversation = "CONV#"
	PrefixTemplate     = "TEMPLATE#"
	PrefixEvent        = "EVENT#"
	PrefixIdempotency  = "IDEMPOTENCY#"
	PrefixPayment      = "PAYMENT#"
	PrefixRefund       = "REFUND#"
	PrefixOrder        = "ORDER#"
	PrefixTenant       = "TENANT#"
)

// Item type discriminator values.
const (
	ItemTypeMessage      = "MESSAGE"
	ItemTypeConversation = "CONVERSATION"
	ItemTypeTemplate     = "TEMPLATE"
	ItemTypeIdempotency  = "IDEMPOTENCY"
	ItemTypePayment      = "PAYMENT"
	ItemTypeRefund       = "REFUND"
	ItemTypeOrder        = "ORDER"
	ItemTypeTenantConfig = "TENANT_CONFIG"
)

// GSI names and their key attributes.
const (
	// IndexConversation serves "all messages in a conversation ordered by time".
	IndexConversation  = "gsi-conversation"
	AttrConversationPK = "conversationPk"
	AttrSentAt         = "sentAt"

	// IndexSender serves "all messages from a sender ordered by time".
	IndexSender  = "gsi-sender"
	AttrSenderID = "senderId"

	// IndexWaba serves "all rows of a type for a WABA".
	IndexWaba  = "gsi-waba"
	AttrWabaID = "wabaId"

	// IndexStatus serves "all rows in a status bucket ordered by last update".
	IndexStatus   = "gsi-status"
	AttrStatusKey = "statusKey"
	AttrUpdatedAt = "updatedAt"
)
