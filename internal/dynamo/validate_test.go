package dynamo

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func validMessageItem() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK:             &types.AttributeValueMemberS{Value: "MSG#wamid.abc"},
		AttrItemType:       &types.AttributeValueMemberS{Value: ItemTypeMessage},
		AttrConversationPK: &types.AttributeValueMemberS{Value: "CONV#phone-1#15551234"},
		AttrSentAt:         &types.AttributeValueMemberS{Value: "2026-01-15T10:30:00Z"},
		AttrSenderID:       &types.AttributeValueMemberS{Value: "15551234"},
		AttrWabaID:         &types.AttributeValueMemberS{Value: "waba-1"},
	}
}

func TestValidateItemAccepts(t *testing.T) {
	if err := ValidateItem(validMessageItem()); err != nil {
		t.Fatalf("ValidateItem() error = %v", err)
	}
}

func TestValidateItemMissingIndexAttr(t *testing.T) {
	item := validMessageItem()
	delete(item, AttrConversationPK)

	err := ValidateItem(item)
	if err == nil {
		t.Fatal("ValidateItem() should reject item missing a GSI key attribute")
	}
	if !strings.Contains(err.Error(), AttrConversationPK) {
		t.Errorf("error %q should name the missing attribute", err)
	}
}

func TestValidateItemEmptyIndexAttr(t *testing.T) {
	item := validMessageItem()
	item[AttrWabaID] = &types.AttributeValueMemberS{Value: ""}

	if err := ValidateItem(item); err == nil {
		t.Fatal("ValidateItem() should reject empty GSI key attribute")
	}
}

func TestValidateItemPrefixMismatch(t *testing.T) {
	item := validMessageItem()
	item[AttrPK] = &types.AttributeValueMemberS{Value: "CONV#wrong"}

	if err := ValidateItem(item); err == nil {
		t.Fatal("ValidateItem() should reject pk prefix not matching itemType")
	}
}

func TestValidateItemUnknownType(t *testing.T) {
	item := validMessageItem()
	item[AttrItemType] = &types.AttributeValueMemberS{Value: "MYSTERY"}

	if err := ValidateItem(item); err == nil {
		t.Fatal("ValidateItem() should reject unknown itemType")
	}
}

func TestValidateItemMissingPK(t *testing.T) {
	item := validMessageItem()
	delete(item, AttrPK)

	if err := ValidateItem(item); err == nil {
		t.Fatal("ValidateItem() should reject item without pk")
	}
}

func TestValidateItemIdempotencyPrefixes(t *testing.T) {
	for _, pk := range []string{"EVENT#wamid.1", "IDEMPOTENCY#req-1"} {
		item := map[string]types.AttributeValue{
			AttrPK:       &types.AttributeValueMemberS{Value: pk},
			AttrItemType: &types.AttributeValueMemberS{Value: ItemTypeIdempotency},
			AttrTTL:      &types.AttributeValueMemberN{Value: "1768500000"},
		}
		if err := ValidateItem(item); err != nil {
			t.Errorf("ValidateItem(%s) error = %v", pk, err)
		}
	}
}
