package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Error types for repository operations.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageExists   = errors.New("message already exists")
)

// Store defines message storage operations.
type Store interface {
	Create(ctx context.Context, msg *Item) error
	Get(ctx context.Context, messageID string) (*Item, error)
	UpdateDeliveryStatus(ctx context.Context, messageID string, status DeliveryStatus, at time.Time) error
	QueryByConversation(ctx context.Context, conversationPK string, limit int32) ([]*Item, error)
	QueryBySender(ctx context.Context, senderID string, limit int32) ([]*Item, error)
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

// Create writes a new message row. Fails if the message id already exists,
// so at-least-once deliveries cannot overwrite history.
func (r *Repository) Create(ctx context.Context, msg *Item) error {
	item, err := marshalItem(msg)
	if err != nil {
		return err
	}
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("message item failed schema check: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrMessageExists
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Get retrieves a message by id.
func (r *Repository) Get(ctx context.Context, messageID string) (*Item, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixMessage + messageID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if output.Item == nil {
		return nil, ErrMessageNotFound
	}
	return unmarshalItem(output.Item)
}

// UpdateDeliveryStatus sets the current delivery status and appends the
// change to the history list. The only mutation a message row permits.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, messageID string, status DeliveryStatus, at time.Time) error {
	change, err := json.Marshal(StatusChange{Status: status, At: at.UTC()})
	if err != nil {
		return err
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.PrefixMessage + messageID},
		},
		UpdateExpression: aws.String("SET deliveryStatus = :status, updatedAt = :at, " +
			"deliveryStatusHistory = list_append(if_not_exists(deliveryStatusHistory, :empty), :change)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":at":     &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
			":change": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: string(change)},
			}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return nil
}

// QueryByConversation returns the messages of one conversation in ascending
// sentAt order.
func (r *Repository) QueryByConversation(ctx context.Context, conversationPK string, limit int32) ([]*Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexConversation),
		KeyConditionExpression: aws.String("conversationPk = :conv"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":conv": &types.AttributeValueMemberS{Value: conversationPK},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation messages: %w", err)
	}
	return unmarshalItems(output.Items)
}

// QueryBySender returns messages from one sender, newest first.
func (r *Repository) QueryBySender(ctx context.Context, senderID string, limit int32) ([]*Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexSender),
		KeyConditionExpression: aws.String("senderId = :sender"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sender": &types.AttributeValueMemberS{Value: senderID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query sender messages: %w", err)
	}
	return unmarshalItems(output.Items)
}

func marshalItem(msg *Item) (map[string]types.AttributeValue, error) {
	if msg.Direction != DirectionInbound && msg.Direction != DirectionOutbound {
		return nil, fmt.Errorf("invalid message direction %q", msg.Direction)
	}

	item := map[string]types.AttributeValue{
		dynamo.AttrPK:             &types.AttributeValueMemberS{Value: msg.PK()},
		dynamo.AttrItemType:       &types.AttributeValueMemberS{Value: dynamo.ItemTypeMessage},
		dynamo.AttrConversationPK: &types.AttributeValueMemberS{Value: msg.ConversationPK()},
		dynamo.AttrSentAt:         &types.AttributeValueMemberS{Value: msg.SentAt.UTC().Format(time.RFC3339)},
		dynamo.AttrSenderID:       &types.AttributeValueMemberS{Value: msg.SenderID},
		dynamo.AttrWabaID:         &types.AttributeValueMemberS{Value: msg.WabaID},
		"messageId":               &types.AttributeValueMemberS{Value: msg.MessageID},
		"phoneRef":                &types.AttributeValueMemberS{Value: msg.PhoneRef},
		"counterpartId":           &types.AttributeValueMemberS{Value: msg.CounterpartID},
		"direction":               &types.AttributeValueMemberS{Value: string(msg.Direction)},
		"contentType":             &types.AttributeValueMemberS{Value: msg.ContentType},
		"deliveryStatus":          &types.AttributeValueMemberS{Value: string(msg.DeliveryStatus)},
	}
	if msg.Body != "" {
		item["body"] = &types.AttributeValueMemberS{Value: msg.Body}
	}
	if msg.MediaKey != "" {
		item["mediaKey"] = &types.AttributeValueMemberS{Value: msg.MediaKey}
	}
	if len(msg.StatusHistory) > 0 {
		history := make([]types.AttributeValue, len(msg.StatusHistory))
		for i, change := range msg.StatusHistory {
			encoded, err := json.Marshal(change)
			if err != nil {
				return nil, err
			}
			history[i] = &types.AttributeValueMemberS{Value: string(encoded)}
		}
		item["deliveryStatusHistory"] = &types.AttributeValueMemberL{Value: history}
	}
	return item, nil
}

func unmarshalItems(items []map[string]types.AttributeValue) ([]*Item, error) {
	messages := make([]*Item, 0, len(items))
	for _, item := range items {
		msg, err := unmarshalItem(item)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func unmarshalItem(item map[string]types.AttributeValue) (*Item, error) {
	msg := &Item{
		MessageID:      stringAttr(item, "messageId"),
		WabaID:         stringAttr(item, dynamo.AttrWabaID),
		PhoneRef:       stringAttr(item, "phoneRef"),
		CounterpartID:  stringAttr(item, "counterpartId"),
		SenderID:       stringAttr(item, dynamo.AttrSenderID),
		Direction:      Direction(stringAttr(item, "direction")),
		ContentType:    stringAttr(item, "contentType"),
		Body:           stringAttr(item, "body"),
		MediaKey:       stringAttr(item, "mediaKey"),
		DeliveryStatus: DeliveryStatus(stringAttr(item, "deliveryStatus")),
	}

	if sentAt := stringAttr(item, dynamo.AttrSentAt); sentAt != "" {
		parsed, err := time.Parse(time.RFC3339, sentAt)
		if err != nil {
			return nil, fmt.Errorf("message %s has invalid sentAt: %w", msg.MessageID, err)
		}
		msg.SentAt = parsed
	}

	if history, ok := item["deliveryStatusHistory"].(*types.AttributeValueMemberL); ok {
		for _, entry := range history.Value {
			s, ok := entry.(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			var change StatusChange
			if err := json.Unmarshal([]byte(s.Value), &change); err != nil {
				return nil, fmt.Errorf("message %s has invalid status history entry: %w", msg.MessageID, err)
			}
			msg.StatusHistory = append(msg.StatusHistory, change)
		}
	}
	return msg, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
