package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// requiredAttrs lists, per item type, the GSI key attributes every written
// row must carry. A row missing one of these would silently drop out of the
// corresponding index query, so writes are checked up front instead of
// trusting each handler to remember.
var requiredAttrs = map[string][]string{
	ItemTypeMessage:      {AttrConversationPK, AttrSentAt, AttrSenderID, AttrWabaID},
	ItemTypeConversation: {AttrWabaID, AttrUpdatedAt},
	ItemTypeTemplate:     {AttrWabaID, AttrStatusKey, AttrUpdatedAt},
	ItemTypeIdempotency:  {AttrTTL},
	ItemTypePayment:      {AttrWabaID, AttrStatusKey, AttrUpdatedAt},
	ItemTypeRefund:       {AttrWabaID, AttrStatusKey, AttrUpdatedAt},
	ItemTypeOrder:        {AttrWabaID, AttrStatusKey, AttrUpdatedAt},
	ItemTypeTenantConfig: {AttrWabaID, AttrUpdatedAt},
}

// prefixForType maps each item type to its mandatory partition-key prefix.
var prefixForType = map[string]string{
	ItemTypeMessage:      PrefixMessage,
	ItemTypeConversation: PrefixConversation,
	ItemTypeTemplate:     PrefixTemplate,
	ItemTypePayment:      PrefixPayment,
	ItemTypeRefund:       PrefixRefund,
	ItemTypeOrder:        PrefixOrder,
	ItemTypeTenantConfig: PrefixTenant,
}

// ValidateItem checks an item against the single-table contract before it is
// written: pk present, itemType known, pk prefix matching the type, and every
// GSI key attribute the type declares present and non-empty.
func ValidateItem(item map[string]types.AttributeValue) error {
	pkAttr, ok := item[AttrPK].(*types.AttributeValueMemberS)
	if !ok || pkAttr.Value == "" {
		return fmt.Errorf("item missing %s attribute", AttrPK)
	}

	typeAttr, ok := item[AttrItemType].(*types.AttributeValueMemberS)
	if !ok || typeAttr.Value == "" {
		return fmt.Errorf("item %s missing %s attribute", pkAttr.Value, AttrItemType)
	}

	required, ok := requiredAttrs[typeAttr.Value]
	if !ok {
		return fmt.Errorf("item %s has unknown itemType %q", pkAttr.Value, typeAttr.Value)
	}

	if prefix, ok := prefixForType[typeAttr.Value]; ok && !strings.HasPrefix(pkAttr.Value, prefix) {
		return fmt.Errorf("item %s: itemType %s requires pk prefix %s", pkAttr.Value, typeAttr.Value, prefix)
	}
	// Idempotency rows live under either EVENT# or IDEMPOTENCY# depending on
	// whether the key is an external event id or a request id.
	if typeAttr.Value == ItemTypeIdempotency &&
		!strings.HasPrefix(pkAttr.Value, PrefixEvent) && !strings.HasPrefix(pkAttr.Value, PrefixIdempotency) {
		return fmt.Errorf("item %s: itemType %s requires pk prefix %s or %s", pkAttr.Value, typeAttr.Value, PrefixEvent, PrefixIdempotency)
	}

	for _, attr := range required {
		if isEmptyAttr(item[attr]) {
			return fmt.Errorf("item %s (%s) missing index attribute %s", pkAttr.Value, typeAttr.Value, attr)
		}
	}
	return nil
}

func isEmptyAttr(v types.AttributeValue) bool {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value == ""
	case *types.AttributeValueMemberN:
		return av.Value == ""
	case nil:
		return true
	default:
		return false
	}
}
