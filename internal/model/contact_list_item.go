// internal/model/contact_list_item.go
package model

import "time"

// ContactListItem is a resolved audience member. IsWhatsappValid is nil until
// the number has been checked against the messaging network. Number is the
// send address and becomes the canonical address once checked; SourceNumber
// keeps the sanitized contact number the item was created from.
type ContactListItem struct {
	ID              int        `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Number          string     `db:"number" json:"number"`
	Email           *string    `db:"email" json:"email,omitempty"`
	TenantID        int        `db:"tenant_id" json:"tenantId"`
	ContactListID   int        `db:"contact_list_id" json:"contactListId"`
	IsWhatsappValid *bool      `db:"is_whatsapp_valid" json:"isWhatsappValid"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
	SourceNumber    string     `db:"source_number" json:"-"`
}

// ListItemKey identifies a list item by the sanitized contact number. It
// matches an item whose source or send address equals Number.
type ListItemKey struct {
	Number        string
	TenantID      int
	ContactListID int
}

func (i *ContactListItem) Matches(k ListItemKey) bool {
	if i.TenantID != k.TenantID || i.ContactListID != k.ContactListID {
		return false
	}
	return i.SourceNumber == k.Number || i.Number == k.Number
}

// Sendable reports whether the item may be messaged: anything not
// explicitly checked-and-unreachable.
func (i *ContactListItem) Sendable() bool {
	return i.IsWhatsappValid == nil || *i.IsWhatsappValid
}

type AudienceStats struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Unchecked int `json:"unchecked"`
}
