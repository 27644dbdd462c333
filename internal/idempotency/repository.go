// Package idempotency suppresses duplicate side effects on at-least-once
// redelivery with a two-phase marker: an intent row written before the side
// effect and a done marker written after. A fresh intent without a done
// marker means another delivery is mid-flight (or died), and is retryable
// once the intent expires; a done marker means skip.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Outcome is the result of claiming an idempotency key.
type Outcome int

const (
	// Started means this delivery claimed the key and must perform the side
	// effect, then call Complete.
	Started Outcome = iota
	// InFlight means another delivery holds a fresh intent on the key.
	InFlight
	// AlreadyDone means the side effect has completed; skip reprocessing.
	AlreadyDone
)

// DefaultTTL bounds how long processed-event markers persist. Idempotency is
// time-bounded, not permanent.
const DefaultTTL = 24 * time.Hour

// IntentReclaimAfter is how long an intent without a done marker blocks
// other deliveries. A delivery that dies between Begin and Complete loses its
// claim after this window, so redelivery can pick the event back up well
// before the marker TTL expires.
const IntentReclaimAfter = 5 * time.Minute

// Store defines idempotency operations.
type Store interface {
	Begin(ctx context.Context, key string) (Outcome, error)
	Complete(ctx context.Context, key string) error
}

// Repository implements Store using DynamoDB.
type Repository struct {
	client    dynamo.Client
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewRepository creates a new Repository.
func NewRepository(client dynamo.Client, tableName string, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repository{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

// Begin claims the key by writing an intent row. The conditional put wins
// when no row exists, when the previous row has expired, or when a prior
// intent went stale without ever completing.
func (r *Repository) Begin(ctx context.Context, key string) (Outcome, error) {
	now := r.now().UTC()
	pk := dynamo.PrefixEvent + key

	item := map[string]types.AttributeValue{
		dynamo.AttrPK:       &types.AttributeValueMemberS{Value: pk},
		dynamo.AttrItemType: &types.AttributeValueMemberS{Value: dynamo.ItemTypeIdempotency},
		dynamo.AttrTTL:      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(r.ttl).Unix(), 10)},
		"intentAt":          &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if err := dynamo.ValidateItem(item); err != nil {
		return InFlight, fmt.Errorf("idempotency item failed schema check: %w", err)
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk) OR expiresAt < :now OR (attribute_not_exists(doneAt) AND intentAt < :stale)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":stale": &types.AttributeValueMemberS{Value: now.Add(-IntentReclaimAfter).Format(time.RFC3339)},
		},
	})
	if err == nil {
		return Started, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return InFlight, fmt.Errorf("failed to write intent marker: %w", err)
	}

	// Key is claimed. Distinguish done from mid-flight.
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
		},
	})
	if err != nil {
		return InFlight, fmt.Errorf("failed to read idempotency marker: %w", err)
	}
	if output.Item == nil {
		// Row vanished between the put and the read (TTL expiry); treat as
		// mid-flight and let the trigger redeliver.
		return InFlight, nil
	}
	if _, done := output.Item["doneAt"]; done {
		return AlreadyDone, nil
	}
	return InFlight, nil
}

// Complete writes the done marker after the side effect has committed.
func (r *Repository) Complete(ctx context.Context, key string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixEvent + key},
		},
		UpdateExpression:    aws.String("SET doneAt = :at"),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write done marker: %w", err)
	}
	return nil
}
