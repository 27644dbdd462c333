// Package template provides types and storage for WhatsApp message templates.
package template

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Status is the template review status reported by the channel.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusPaused   Status = "PAUSED"
	StatusDisabled Status = "DISABLED"
)

// allowedTransitions is the status edge list. The storage layer does not
// enforce it; the update handler checks before writing.
var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaused, StatusDisabled},
}

// CanTransition reports whether from -> to is a declared status edge.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanonicalLanguage normalizes a BCP 47 language tag into the channel's
// underscore form, e.g. "EN-us" -> "en_US". Template keys use this form so
// the same template never lands under two spellings.
func CanonicalLanguage(tag string) (string, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return strings.ReplaceAll(parsed.String(), "-", "_"), nil
}

// Item is a template row, keyed by WABA, name and language.
type Item struct {
	WabaID    string
	Name      string
	Language  string
	Category  string
	BodyText  string
	Status    Status
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PK returns the partition key for this template.
func (t *Item) PK() string {
	return dynamo.PrefixTemplate + t.WabaID + dynamo.Delimiter + t.Name + dynamo.Delimiter + t.Language
}

// StatusKey returns the gsi-status partition key bucketing templates of one
// WABA by status.
func (t *Item) StatusKey() string {
	return dynamo.ItemTypeTemplate + dynamo.Delimiter + t.WabaID + dynamo.Delimiter + string(t.Status)
}
