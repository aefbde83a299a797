// internal/model/contact.go
package model

type Contact struct {
	ID       int     `db:"id" json:"id"`
	TenantID int     `db:"tenant_id" json:"tenantId"`
	Name     string  `db:"name" json:"name"`
	Number   string  `db:"number" json:"number"`
	Email    *string `db:"email" json:"email,omitempty"`
}

type ContactList struct {
	ID       int    `db:"id" json:"id"`
	TenantID int    `db:"tenant_id" json:"tenantId"`
	Name     string `db:"name" json:"name"`
}
