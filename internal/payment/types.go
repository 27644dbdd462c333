// Package payment provides types and storage for payments, refunds and
// orders. Status fields progress pending -> processing -> completed|failed;
// failures are recorded, never compensated.
package payment

import (
	"time"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Status is the lifecycle state of a payment, refund or order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// nextStatuses is the forward-only progression.
var nextStatuses = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanProgress reports whether from -> to follows the declared progression.
func CanProgress(from, to Status) bool {
	for _, allowed := range nextStatuses[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MaxRetries caps reconciliation attempts before a payment is marked FAILED
// terminally instead of being retried again.
const MaxRetries = 3

// Payment is a payment row.
type Payment struct {
	PaymentID     string
	WabaID        string
	OrderRef      string
	CounterpartID string
	AmountMinor   int64
	Currency      string
	Status        Status
	FailureReason string
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PK returns the partition key for this payment.
func (p *Payment) PK() string {
	return dynamo.PrefixPayment + p.PaymentID
}

// StatusKey buckets payments of one WABA by status for the status GSI.
func (p *Payment) StatusKey() string {
	return dynamo.ItemTypePayment + dynamo.Delimiter + p.WabaID + dynamo.Delimiter + string(p.Status)
}

// Refund is a refund row referencing a payment.
type Refund struct {
	RefundID    string
	PaymentID   string
	WabaID      string
	AmountMinor int64
	Currency    string
	Status      Status
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PK returns the partition key for this refund.
func (r *Refund) PK() string {
	return dynamo.PrefixRefund + r.RefundID
}

// StatusKey buckets refunds of one WABA by status.
func (r *Refund) StatusKey() string {
	return dynamo.ItemTypeRefund + dynamo.Delimiter + r.WabaID + dynamo.Delimiter + string(r.Status)
}

// OrderLine is one line item of an order.
type OrderLine struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// Order is an order row.
type Order struct {
	OrderRef      string
	WabaID        string
	CounterpartID string
	Lines         []OrderLine
	TotalMinor    int64
	Currency      string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PK returns the partition key for this order.
func (o *Order) PK() string {
	return dynamo.PrefixOrder + o.OrderRef
}

// StatusKey buckets orders of one WABA by status.
func (o *Order) StatusKey() string {
	return dynamo.ItemTypeOrder + dynamo.Delimiter + o.WabaID + dynamo.Delimiter + string(o.Status)
}
