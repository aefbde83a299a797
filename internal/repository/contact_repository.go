package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

// ContactRepositoryInterface defines methods used by the audience resolver
type ContactRepositoryInterface interface {
	FindByIDsAndTenant(ctx context.Context, tenantID int, ids []int) ([]model.Contact, error)
	FindIDsByTag(ctx context.Context, tenantID, tagID int) ([]int, error)
}

// ContactListRepositoryInterface covers the lists that own audience items.
type ContactListRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id int) (*model.ContactList, error)
	Create(ctx context.Context, l *model.ContactList) error
}

type ContactRepository struct {
	DB *sql.DB
}

// FindByIDsAndTenant returns the contacts among ids that belong to tenantID.
// Ids that are unknown or owned by another tenant are silently dropped.
func (r *ContactRepository) FindByIDsAndTenant(ctx context.Context, tenantID int, ids []int) ([]model.Contact, error) {
	if len(ids) == 0 {
		return []model.Contact{}, nil
	}
	query := `
		SELECT id, tenant_id, name, number, email
		FROM contacts
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Number, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) FindIDsByTag(ctx context.Context, tenantID, tagID int) ([]int, error) {
	query := `
		SELECT c.id
		FROM contacts c
		JOIN contact_tags t ON t.contact_id = c.id
		WHERE c.tenant_id = $1 AND t.tag_id = $2
		ORDER BY c.id
	`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, tagID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type ContactListRepository struct {
	DB *sql.DB
}

func (r *ContactListRepository) GetByID(ctx context.Context, tenantID, id int) (*model.ContactList, error) {
	var l model.ContactList
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name FROM contact_lists WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&l.ID, &l.TenantID, &l.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContactListNotFound(id)
		}
		return nil, err
	}
	return &l, nil
}

func (r *ContactListRepository) Create(ctx context.Context, l *model.ContactList) error {
	return r.DB.QueryRowContext(ctx,
		`INSERT INTO contact_lists (tenant_id, name, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		l.TenantID, l.Name,
	).Scan(&l.ID)
}

var (
	_ ContactRepositoryInterface     = (*ContactRepository)(nil)
	_ ContactListRepositoryInterface = (*ContactListRepository)(nil)
)
