// Package profile stores per-tenant configuration: business profile, welcome
// message, menu and payment settings, all under TENANT#-prefixed keys.
package profile

import (
	"time"

	"github.com/halcyonops/waba-actions/internal/dynamo"
)

// Subtype names the per-tenant config kinds.
const (
	SubtypeProfile   = "PROFILE"
	SubtypeWelcome   = "WELCOME"
	SubtypeMenu      = "MENU"
	SubtypePayConfig = "PAYCONFIG"
)

// tenantKey builds TENANT#{tenantId}#{SUBTYPE}#{name}.
func tenantKey(tenantID, subtype, name string) string {
	return dynamo.PrefixTenant + tenantID + dynamo.Delimiter + subtype + dynamo.Delimiter + name
}

// BusinessProfile is the tenant's business profile. The channel exposes no
// write API for it, so changes stay un-applied until an operator confirms
// they copied them over; Applied records that acknowledgment.
type BusinessProfile struct {
	TenantID    string
	About       string
	Address     string
	Description string
	Email       string
	Websites    []string
	Vertical    string
	Applied     bool
	AppliedBy   string
	UpdatedAt   time.Time
}

// PK returns the partition key for this profile.
func (p *BusinessProfile) PK() string {
	return tenantKey(p.TenantID, SubtypeProfile, "default")
}

// WelcomeMessage is the auto-greeting sent on first contact.
type WelcomeMessage struct {
	TenantID  string
	Text      string
	Enabled   bool
	UpdatedAt time.Time
}

// PK returns the partition key for this welcome message.
func (w *WelcomeMessage) PK() string {
	return tenantKey(w.TenantID, SubtypeWelcome, "default")
}

// MenuItem is one entry of an interactive menu.
type MenuItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Menu is a named interactive menu configuration.
type Menu struct {
	TenantID  string
	Name      string
	Title     string
	Items     []MenuItem
	UpdatedAt time.Time
}

// PK returns the partition key for this menu.
func (m *Menu) PK() string {
	return tenantKey(m.TenantID, SubtypeMenu, m.Name)
}

// PaymentConfig is a per-provider payment configuration.
type PaymentConfig struct {
	TenantID   string
	Provider   string
	MerchantID string
	Enabled    bool
	UpdatedAt  time.Time
}

// PK returns the partition key for this payment config.
func (c *PaymentConfig) PK() string {
	return tenantKey(c.TenantID, SubtypePayConfig, c.Provider)
}
