package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Error types for repository operations.
var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentExists   = errors.New("payment already exists")
	ErrBadTransition   = errors.New("status transition not allowed")
)

// Store defines payment storage operations.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status Status, reason string) (*Payment, error)
	CreateRefund(ctx context.Context, r *Refund) error
	CreateOrder(ctx context.Context, o *Order) error
	ListByStatus(ctx context.Context, wabaID string, status Status, limit int32) ([]*Payment, error)
}

// Repository implements Store using DynamoDB.
type Repository struct {
	client    dynamo.Client
	tableName string
}

// NewRepository creates a new Repository.
func NewRepository(client dynamo.Client, tableName string) *Repository {
	return &Repository{client: client, tableName: tableName}
}

// CreatePayment writes a new payment in PENDING status.
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.Status == "" {
		p.Status = StatusPending
	}
	item := marshalPayment(p)
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("payment item failed schema check: %w", err)
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrPaymentExists
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by id.
func (r *Repository) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixPayment + paymentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if output.Item == nil {
		return nil, ErrPaymentNotFound
	}
	return unmarshalPayment(output.Item), nil
}

// UpdatePaymentStatus progresses a payment along the declared status edges.
// A move to FAILED increments the retry count; once the count reaches
// MaxRetries the failure is terminal and the reason says so.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, paymentID string, status Status, reason string) (*Payment, error) {
	current, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !CanProgress(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, current.Status, status)
	}

	next := *current
	next.Status = status
	next.FailureReason = reason
	next.UpdatedAt = time.Now().UTC()
	if status == StatusFailed {
		next.RetryCount = current.RetryCount + 1
		if next.RetryCount >= MaxRetries {
			next.FailureReason = reason + " (retry ceiling reached)"
		}
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: next.PK()},
		},
		UpdateExpression: aws.String("SET paymentStatus = :status, statusKey = :statusKey, " +
			"failureReason = :reason, retryCount = :retries, updatedAt = :at"),
		ConditionExpression: aws.String("paymentStatus = :currentStatus"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":        &types.AttributeValueMemberS{Value: string(next.Status)},
			":statusKey":     &types.AttributeValueMemberS{Value: next.StatusKey()},
			":reason":        &types.AttributeValueMemberS{Value: next.FailureReason},
			":retries":       &types.AttributeValueMemberN{Value: strconv.Itoa(next.RetryCount)},
			":at":            &types.AttributeValueMemberS{Value: next.UpdatedAt.Format(time.RFC3339)},
			":currentStatus": &types.AttributeValueMemberS{Value: string(current.Status)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("%w: concurrent status change", ErrBadTransition)
		}
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return &next, nil
}

// CreateRefund writes a refund row.
func (r *Repository) CreateRefund(ctx context.Context, refund *Refund) error {
	if refund.Status == "" {
		refund.Status = StatusPending
	}
	item := map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: refund.PK()},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypeRefund},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: refund.WabaID},
		dynamo.AttrStatusKey: &types.AttributeValueMemberS{Value: refund.StatusKey()},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: refund.UpdatedAt.UTC().Format(time.RFC3339)},
		"refundId":           &types.AttributeValueMemberS{Value: refund.RefundID},
		"paymentId":          &types.AttributeValueMemberS{Value: refund.PaymentID},
		"amountMinor":        &types.AttributeValueMemberN{Value: strconv.FormatInt(refund.AmountMinor, 10)},
		"currency":           &types.AttributeValueMemberS{Value: refund.Currency},
		"refundStatus":       &types.AttributeValueMemberS{Value: string(refund.Status)},
		"reason":             &types.AttributeValueMemberS{Value: refund.Reason},
		"createdAt":          &types.AttributeValueMemberS{Value: refund.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("refund item failed schema check: %w", err)
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// CreateOrder writes an order row.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	item := map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: o.PK()},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypeOrder},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: o.WabaID},
		dynamo.AttrStatusKey: &types.AttributeValueMemberS{Value: o.StatusKey()},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: o.UpdatedAt.UTC().Format(time.RFC3339)},
		"orderRef":           &types.AttributeValueMemberS{Value: o.OrderRef},
		"counterpartId":      &types.AttributeValueMemberS{Value: o.CounterpartID},
		"orderLines":         &types.AttributeValueMemberS{Value: string(lines)},
		"totalMinor":         &types.AttributeValueMemberN{Value: strconv.FormatInt(o.TotalMinor, 10)},
		"currency":           &types.AttributeValueMemberS{Value: o.Currency},
		"orderStatus":        &types.AttributeValueMemberS{Value: string(o.Status)},
		"createdAt":          &types.AttributeValueMemberS{Value: o.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("order item failed schema check: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// ListByStatus returns payments of one WABA in one status bucket, most
// recently updated first.
func (r *Repository) ListByStatus(ctx context.Context, wabaID string, status Status, limit int32) ([]*Payment, error) {
	statusKey := dynamo.ItemTypePayment + dynamo.Delimiter + wabaID + dynamo.Delimiter + string(status)
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexStatus),
		KeyConditionExpression: aws.String("statusKey = :statusKey"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":statusKey": &types.AttributeValueMemberS{Value: statusKey},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by status: %w", err)
	}

	payments := make([]*Payment, len(output.Items))
	for i, item := range output.Items {
		payments[i] = unmarshalPayment(item)
	}
	return payments, nil
}

func marshalPayment(p *Payment) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: p.PK()},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypePayment},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: p.WabaID},
		dynamo.AttrStatusKey: &types.AttributeValueMemberS{Value: p.StatusKey()},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: p.UpdatedAt.UTC().Format(time.RFC3339)},
		"paymentId":          &types.AttributeValueMemberS{Value: p.PaymentID},
		"orderRef":           &types.AttributeValueMemberS{Value: p.OrderRef},
		"counterpartId":      &types.AttributeValueMemberS{Value: p.CounterpartID},
		"amountMinor":        &types.AttributeValueMemberN{Value: strconv.FormatInt(p.AmountMinor, 10)},
		"currency":           &types.AttributeValueMemberS{Value: p.Currency},
		"paymentStatus":      &types.AttributeValueMemberS{Value: string(p.Status)},
		"failureReason":      &types.AttributeValueMemberS{Value: p.FailureReason},
		"retryCount":         &types.AttributeValueMemberN{Value: strconv.Itoa(p.RetryCount)},
		"createdAt":          &types.AttributeValueMemberS{Value: p.CreatedAt.UTC().Format(time.RFC3339)},
	}
}

func unmarshalPayment(item map[string]types.AttributeValue) *Payment {
	p := &Payment{
		PaymentID:     stringAttr(item, "paymentId"),
		WabaID:        stringAttr(item, dynamo.AttrWabaID),
		OrderRef:      stringAttr(item, "orderRef"),
		CounterpartID: stringAttr(item, "counterpartId"),
		Currency:      stringAttr(item, "currency"),
		Status:        Status(stringAttr(item, "paymentStatus")),
		FailureReason: stringAttr(item, "failureReason"),
	}
	if n, ok := item["amountMinor"].(*types.AttributeValueMemberN); ok {
		p.AmountMinor, _ = strconv.ParseInt(n.Value, 10, 64)
	}
	if n, ok := item["retryCount"].(*types.AttributeValueMemberN); ok {
		p.RetryCount, _ = strconv.Atoi(n.Value)
	}
	if at := stringAttr(item, "createdAt"); at != "" {
		p.CreatedAt, _ = time.Parse(time.RFC3339, at)
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		p.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return p
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
