package conversation

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

// Error types for repository operations.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrVersionConflict      = errors.New("conversation version conflict")
)

// Store defines conversation storage operations.
type Store interface {
	Get(ctx context.Context, phoneRef, counterpartID string) (*Item, error)
	RecordMessage(ctx context.Context, update MessageUpdate) (*Item, error)
	MarkRead(ctx context.Context, phoneRef, counterpartID string) error
	ListByWaba(ctx context.Context, wabaID string, limit int32) ([]*Item, error)
}

// MessageUpdate carries the fields RecordMessage applies to a conversation.
type MessageUpdate struct {
	PhoneRef        string
	CounterpartID   string
	WabaID          string
	CounterpartName string
	MessagePK       string
	SentAt          time.Time
	Inbound         bool
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

// Get retrieves a conversation row.
func (r *Repository) Get(ctx context.Context, phoneRef, counterpartID string) (*Item, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: Key(phoneRef, counterpartID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if output.Item == nil {
		return nil, ErrConversationNotFound
	}
	return unmarshalItem(output.Item), nil
}

// RecordMessage upserts the conversation for a newly written message: bumps
// the unread count for inbound messages, points lastMessagePk at the new row,
// and advances the version. A concurrent writer makes the conditional update
// fail; the write is retried once against the fresh version before giving up.
func (r *Repository) RecordMessage(ctx context.Context, update MessageUpdate) (*Item, error) {
	for attempt := 0; attempt < 2; attempt++ {
		current, err := r.Get(ctx, update.PhoneRef, update.CounterpartID)
		if errors.Is(err, ErrConversationNotFound) {
			created, createErr := r.create(ctx, update)
			if createErr == nil {
				return created, nil
			}
			if errors.Is(createErr, ErrVersionConflict) {
				continue
			}
			return nil, createErr
		}
		if err != nil {
			return nil, err
		}

		updated, err := r.advance(ctx, current, update)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, ErrVersionConflict
}

func (r *Repository) create(ctx context.Context, update MessageUpdate) (*Item, error) {
	conv := &Item{
		PhoneRef:        update.PhoneRef,
		CounterpartID:   update.CounterpartID,
		WabaID:          update.WabaID,
		CounterpartName: update.CounterpartName,
		LastMessagePK:   update.MessagePK,
		LastMessageAt:   update.SentAt,
		Version:         1,
		UpdatedAt:       update.SentAt,
	}
	if update.Inbound {
		conv.UnreadCount = 1
	}

	item := marshalItem(conv)
	if err := dynamo.ValidateItem(item); err != nil {
		return nil, fmt.Errorf("conversation item failed schema check: %w", err)
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (r *Repository) advance(ctx context.Context, current *Item, update MessageUpdate) (*Item, error) {
	next := *current
	next.LastMessagePK = update.MessagePK
	next.LastMessageAt = update.SentAt
	next.Version = current.Version + 1
	next.UpdatedAt = update.SentAt
	if update.Inbound {
		next.UnreadCount = current.UnreadCount + 1
	}
	if update.CounterpartName != "" {
		next.CounterpartName = update.CounterpartName
	}

	updateExpr := "SET lastMessagePk = :lastPk, lastMessageAt = :lastAt, unreadCount = :unread, " +
		"counterpartName = :name, version = :next, updatedAt = :at"
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: current.PK()},
		},
		UpdateExpression:    aws.String(updateExpr),
		ConditionExpression: aws.String("version = :current"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lastPk":  &types.AttributeValueMemberS{Value: next.LastMessagePK},
			":lastAt":  &types.AttributeValueMemberS{Value: next.LastMessageAt.UTC().Format(time.RFC3339)},
			":unread":  &types.AttributeValueMemberN{Value: strconv.Itoa(next.UnreadCount)},
			":name":    &types.AttributeValueMemberS{Value: next.CounterpartName},
			":next":    &types.AttributeValueMemberN{Value: strconv.FormatInt(next.Version, 10)},
			":at":      &types.AttributeValueMemberS{Value: next.UpdatedAt.UTC().Format(time.RFC3339)},
			":current": &types.AttributeValueMemberN{Value: strconv.FormatInt(current.Version, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return &next, nil
}

// MarkRead resets the unread count. The only path that lowers it.
func (r *Repository) MarkRead(ctx context.Context, phoneRef, counterpartID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: Key(phoneRef, counterpartID)},
		},
		UpdateExpression:    aws.String("SET unreadCount = :zero, updatedAt = :at ADD version :one"),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":at":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// ListByWaba returns all conversations owned by one WABA.
func (r *Repository) ListByWaba(ctx context.Context, wabaID string, limit int32) ([]*Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexWaba),
		KeyConditionExpression: aws.String("wabaId = :waba AND itemType = :type"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":waba": &types.AttributeValueMemberS{Value: wabaID},
			":type": &types.AttributeValueMemberS{Value: dynamo.ItemTypeConversation},
		},
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	conversations := make([]*Item, len(output.Items))
	for i, item := range output.Items {
		conversations[i] = unmarshalItem(item)
	}
	return conversations, nil
}

func marshalItem(conv *Item) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: conv.PK()},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypeConversation},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: conv.WabaID},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: conv.UpdatedAt.UTC().Format(time.RFC3339)},
		"phoneRef":           &types.AttributeValueMemberS{Value: conv.PhoneRef},
		"counterpartId":      &types.AttributeValueMemberS{Value: conv.CounterpartID},
		"counterpartName":    &types.AttributeValueMemberS{Value: conv.CounterpartName},
		"unreadCount":        &types.AttributeValueMemberN{Value: strconv.Itoa(conv.UnreadCount)},
		"lastMessagePk":      &types.AttributeValueMemberS{Value: conv.LastMessagePK},
		"lastMessageAt":      &types.AttributeValueMemberS{Value: conv.LastMessageAt.UTC().Format(time.RFC3339)},
		"version":            &types.AttributeValueMemberN{Value: strconv.FormatInt(conv.Version, 10)},
	}
}

func unmarshalItem(item map[string]types.AttributeValue) *Item {
	conv := &Item{
		PhoneRef:        stringAttr(item, "phoneRef"),
		CounterpartID:   stringAttr(item, "counterpartId"),
		WabaID:          stringAttr(item, dynamo.AttrWabaID),
		CounterpartName: stringAttr(item, "counterpartName"),
		LastMessagePK:   stringAttr(item, "lastMessagePk"),
	}
	if n, ok := item["unreadCount"].(*types.AttributeValueMemberN); ok {
		conv.UnreadCount, _ = strconv.Atoi(n.Value)
	}
	if n, ok := item["version"].(*types.AttributeValueMemberN); ok {
		conv.Version, _ = strconv.ParseInt(n.Value, 10, 64)
	}
	if at := stringAttr(item, "lastMessageAt"); at != "" {
		conv.LastMessageAt, _ = time.Parse(time.RFC3339, at)
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		conv.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return conv
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
