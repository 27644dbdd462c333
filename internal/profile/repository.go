package profile

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
	ErrNotFound       = errors.New("tenant config not found")
	ErrAckRequired    = errors.New("apply requires an acknowledging operator")
	ErrNothingToApply = errors.New("no pending profile changes to apply")
)

// Store defines tenant configuration operations.
type Store interface {
	PutBusinessProfile(ctx context.Context, p *BusinessProfile) error
	GetBusinessProfile(ctx context.Context, tenantID string) (*BusinessProfile, error)
	ApplyBusinessProfile(ctx context.Context, tenantID, ackBy string) error
	PutWelcomeMessage(ctx context.Context, w *WelcomeMessage) error
	GetWelcomeMessage(ctx context.Context, tenantID string) (*WelcomeMessage, error)
	PutMenu(ctx context.Context, m *Menu) error
	GetMenu(ctx context.Context, tenantID, name string) (*Menu, error)
	PutPaymentConfig(ctx context.Context, c *PaymentConfig) error
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

// PutBusinessProfile stores the profile with Applied reset; the new content
// has not been copied to the channel yet.
func (r *Repository) PutBusinessProfile(ctx context.Context, p *BusinessProfile) error {
	p.Applied = false
	p.AppliedBy = ""

	websites, err := json.Marshal(p.Websites)
	if err != nil {
		return err
	}
	item := r.baseItem(p.PK(), p.TenantID, p.UpdatedAt)
	item["subtype"] = &types.AttributeValueMemberS{Value: SubtypeProfile}
	item["about"] = &types.AttributeValueMemberS{Value: p.About}
	item["address"] = &types.AttributeValueMemberS{Value: p.Address}
	item["description"] = &types.AttributeValueMemberS{Value: p.Description}
	item["email"] = &types.AttributeValueMemberS{Value: p.Email}
	item["websites"] = &types.AttributeValueMemberS{Value: string(websites)}
	item["vertical"] = &types.AttributeValueMemberS{Value: p.Vertical}
	item["applied"] = &types.AttributeValueMemberBOOL{Value: false}
	item["appliedBy"] = &types.AttributeValueMemberS{Value: ""}

	return r.put(ctx, item, "business profile")
}

// GetBusinessProfile retrieves the tenant's profile.
func (r *Repository) GetBusinessProfile(ctx context.Context, tenantID string) (*BusinessProfile, error) {
	key := &BusinessProfile{TenantID: tenantID}
	item, err := r.get(ctx, key.PK())
	if err != nil {
		return nil, err
	}

	p := &BusinessProfile{
		TenantID:    tenantID,
		About:       stringAttr(item, "about"),
		Address:     stringAttr(item, "address"),
		Description: stringAttr(item, "description"),
		Email:       stringAttr(item, "email"),
		Vertical:    stringAttr(item, "vertical"),
		AppliedBy:   stringAttr(item, "appliedBy"),
	}
	if b, ok := item["applied"].(*types.AttributeValueMemberBOOL); ok {
		p.Applied = b.Value
	}
	if raw := stringAttr(item, "websites"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &p.Websites)
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		p.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return p, nil
}

// ApplyBusinessProfile records the manual acknowledgment that an operator has
// copied the stored profile into the channel.
func (r *Repository) ApplyBusinessProfile(ctx context.Context, tenantID, ackBy string) error {
	if ackBy == "" {
		return ErrAckRequired
	}

	key := &BusinessProfile{TenantID: tenantID}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK()},
		},
		UpdateExpression:    aws.String("SET applied = :yes, appliedBy = :by, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(pk) AND applied = :no"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":yes": &types.AttributeValueMemberBOOL{Value: true},
			":no":  &types.AttributeValueMemberBOOL{Value: false},
			":by":  &types.AttributeValueMemberS{Value: ackBy},
			":at":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNothingToApply
		}
		return fmt.Errorf("failed to apply business profile: %w", err)
	}
	return nil
}

// PutWelcomeMessage stores the tenant's welcome message.
func (r *Repository) PutWelcomeMessage(ctx context.Context, w *WelcomeMessage) error {
	item := r.baseItem(w.PK(), w.TenantID, w.UpdatedAt)
	item["subtype"] = &types.AttributeValueMemberS{Value: SubtypeWelcome}
	item["text"] = &types.AttributeValueMemberS{Value: w.Text}
	item["enabled"] = &types.AttributeValueMemberBOOL{Value: w.Enabled}
	return r.put(ctx, item, "welcome message")
}

// GetWelcomeMessage retrieves the tenant's welcome message.
func (r *Repository) GetWelcomeMessage(ctx context.Context, tenantID string) (*WelcomeMessage, error) {
	key := &WelcomeMessage{TenantID: tenantID}
	item, err := r.get(ctx, key.PK())
	if err != nil {
		return nil, err
	}

	w := &WelcomeMessage{TenantID: tenantID, Text: stringAttr(item, "text")}
	if b, ok := item["enabled"].(*types.AttributeValueMemberBOOL); ok {
		w.Enabled = b.Value
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		w.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return w, nil
}

// PutMenu stores a named menu configuration.
func (r *Repository) PutMenu(ctx context.Context, m *Menu) error {
	items, err := json.Marshal(m.Items)
	if err != nil {
		return err
	}
	item := r.baseItem(m.PK(), m.TenantID, m.UpdatedAt)
	item["subtype"] = &types.AttributeValueMemberS{Value: SubtypeMenu}
	item["menuName"] = &types.AttributeValueMemberS{Value: m.Name}
	item["title"] = &types.AttributeValueMemberS{Value: m.Title}
	item["menuItems"] = &types.AttributeValueMemberS{Value: string(items)}
	return r.put(ctx, item, "menu")
}

// GetMenu retrieves a named menu configuration.
func (r *Repository) GetMenu(ctx context.Context, tenantID, name string) (*Menu, error) {
	key := &Menu{TenantID: tenantID, Name: name}
	item, err := r.get(ctx, key.PK())
	if err != nil {
		return nil, err
	}

	m := &Menu{TenantID: tenantID, Name: name, Title: stringAttr(item, "title")}
	if raw := stringAttr(item, "menuItems"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &m.Items)
	}
	if at := stringAttr(item, dynamo.AttrUpdatedAt); at != "" {
		m.UpdatedAt, _ = time.Parse(time.RFC3339, at)
	}
	return m, nil
}

// PutPaymentConfig stores a per-provider payment configuration.
func (r *Repository) PutPaymentConfig(ctx context.Context, c *PaymentConfig) error {
	item := r.baseItem(c.PK(), c.TenantID, c.UpdatedAt)
	item["subtype"] = &types.AttributeValueMemberS{Value: SubtypePayConfig}
	item["provider"] = &types.AttributeValueMemberS{Value: c.Provider}
	item["merchantId"] = &types.AttributeValueMemberS{Value: c.MerchantID}
	item["enabled"] = &types.AttributeValueMemberBOOL{Value: c.Enabled}
	return r.put(ctx, item, "payment config")
}

func (r *Repository) baseItem(pk, tenantID string, updatedAt time.Time) map[string]types.AttributeValue {
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return map[string]types.AttributeValue{
		dynamo.AttrPK:        &types.AttributeValueMemberS{Value: pk},
		dynamo.AttrItemType:  &types.AttributeValueMemberS{Value: dynamo.ItemTypeTenantConfig},
		dynamo.AttrWabaID:    &types.AttributeValueMemberS{Value: tenantID},
		dynamo.AttrUpdatedAt: &types.AttributeValueMemberS{Value: updatedAt.UTC().Format(time.RFC3339)},
	}
}

func (r *Repository) put(ctx context.Context, item map[string]types.AttributeValue, what string) error {
	if err := dynamo.ValidateItem(item); err != nil {
		return fmt.Errorf("%s item failed schema check: %w", what, err)
	}
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", what, err)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	output, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}
	if output.Item == nil {
		return nil, ErrNotFound
	}
	return output.Item, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
