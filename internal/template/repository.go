package template

import (
	"context"
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
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
)

// Store defines template storage operations.
type Store interface {
	Create(ctx context.Context, tmpl *Item) error
	Get(ctx context.Context, wabaID, name, lang string) (*Item, error)
	UpdateStatus(ctx context.Context, wabaID, name, lang string, status Status, reason string) error
	ListByWaba(ctx context.Context, wabaID string) ([]*Item, error)
	Delete(ctx context.Context, wabaID, name, lang string) error
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

// Create writes a new template in PENDING status.
func (r *Repository) Create(ctx context.Context, tmpl *Item) error {
	if tmpl.Status == "" {
		tmpl.Status = StatusPending
	}

	item := marshalItem(tmpl)
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("template item failed schema check: %w", err)
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrTemplateExists
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Get retrieves one template.
func (r *Repository) Get(ctx context.Context, wabaID, name, lang string) (*Item, error) {
	key := &Item{WabaID: wabaID, Name: name, Language: lang}
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if output.Item == nil {
		return nil, ErrTemplateNotFound
	}
	return unmarshalItem(output.Item), nil
}

// UpdateStatus writes the new status and refreshes the status GSI key. The
// transition itself is the caller's to validate via CanTransition.
func (r *Repository) UpdateStatus(ctx context.Context, wabaID, name, lang string, status Status, reason string) error {
	key := &Item{WabaID: wabaID, Name: name, Language: lang, Status: status}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK()},
		},
		UpdateExpression:    aws.String("SET templateStatus = :status, statusKey = :statusKey, statusReason = :reason, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":    &types.AttributeValueMemberS{Value: string(status)},
			":statusKey": &types.AttributeValueMemberS{Value: key.StatusKey()},
			":reason":    &types.AttributeValueMemberS{Value: reason},
			":at":        &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to update template status: %w", err)
	}
	return nil
}

// ListByWaba returns every template of one WABA.
func (r *Repository) ListByWaba(ctx context.Context, wabaID string) ([]*Item, error) {
	output, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dynamo.IndexWaba),
		KeyConditionExpression: aws.String("wabaId = :waba AND itemType = :type"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":waba": &types.AttributeValueMemberS{Value: wabaID},
			":type": &types.AttributeValueMemberS{Value: dynamo.ItemTypeTemplate},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]*Item, len(output.Items))
	for i, item := range output.Items {
		templates[i] = unmarshalItem(item)
	}
	return templates, nil
}

// Delete removes a template row.
func (r *Repository) Delete(ctx context.Context, wabaID, name, lang string) error {
	key := &Item{WabaID: wabaID, Name: name, Language: lang}
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK()},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func marshalItem(tmpl *Item) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: tmpl.PK()},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypeTemplate},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: tmpl.WabaID},
		dynamo.AttrStatusKey: &types.AttributeValueMemberS{Value: tmpl.StatusKey()},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: tmpl.UpdatedAt.UTC().Format(time.RFC3339)},
		"templateName":       &types.AttributeValueMemberS{Value: tmpl.Name},
		"language":           &types.AttributeValueMemberS{Value: tmpl.Language},
		"category":           &types.AttributeValueMemberS{Value: tmpl.Category},
		"bodyText":           &types.AttributeValueMemberS{Value: tmpl.BodyText},
		"templateStatus":     &types.AttributeValueMemberS{Value: string(tmpl.Status)},
		"statusReason":       &types.AttributeValueMemberS{Value: tmpl.Reason},
		"createdAt":          &types.AttributeValueMemberS{Value: tmpl.CreatedAt.UTC().Format(time.RFC3339)},
	}
}

func unmarshalItem(item map[string]types.AttributeValue) *Item {
	tmpl := &Item{
		WabaID:   stringAttr(item, dynamo.AttrWabaID),
		Name:     stringAttr(item, "templateName"),
		Language: stringAttr(item, "language"),
		Category: stringAttr(item, "category"),
		BodyText: stringAttr(item, "bodyText"),
		Status:   Status(stringAttr(item, "templateStatus")),
		Reason:   stringAttr(item, "statusReason"),
	}
	if at := stringAttr(item, "createdAt"); at != "" {
		tmpl.CreatedAt, _ = time.Parse(time.RFC3339, at)
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		tmpl.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return tmpl
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
