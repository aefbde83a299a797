package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

type ContactListItemRepositoryInterface interface {
	// FindOrCreate returns the item for key, inserting defaults when none
	// exists. created reports whether this call inserted the row.
	FindOrCreate(ctx context.Context, key model.ListItemKey, defaults model.ContactListItem) (item *model.ContactListItem, created bool, err error)
	// UpdateValidation stores the validator outcome for an item. When the
	// canonical number already belongs to another item of the list, the item
	// is removed and ErrDuplicateListItem returned.
	UpdateValidation(ctx context.Context, id int, number string, valid *bool) error
	ListAudience(ctx context.Context, tenantID, listID int) ([]model.ContactListItem, error)
	Stats(ctx context.Context, tenantID, listID int) (model.AudienceStats, error)
}

const uniqueViolation = pq.ErrorCode("23505")

type ContactListItemRepository struct {
	DB *sql.DB
}

const listItemColumns = `id, name, number, email, tenant_id, contact_list_id, is_whatsapp_valid, created_at, updated_at, source_number`

func scanListItem(row rowScanner) (*model.ContactListItem, error) {
	var it model.ContactListItem
	err := row.Scan(&it.ID, &it.Name, &it.Number, &it.Email, &it.TenantID,
		&it.ContactListID, &it.IsWhatsappValid, &it.CreatedAt, &it.UpdatedAt, &it.SourceNumber)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// FindOrCreate relies on the UNIQUE constraints on source_number and number:
// an insert that hits either falls through to the select, so an item whose
// number was rewritten to its canonical address is still found by the
// number it was created from.
func (r *ContactListItemRepository) FindOrCreate(ctx context.Context, key model.ListItemKey, defaults model.ContactListItem) (*model.ContactListItem, bool, error) {
	insert := `
		INSERT INTO contact_list_items (name, number, source_number, email, tenant_id, contact_list_id, created_at)
		VALUES ($1, $2, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING ` + listItemColumns
	item, err := scanListItem(r.DB.QueryRowContext(ctx, insert,
		defaults.Name, key.Number, defaults.Email, key.TenantID, key.ContactListID, time.Now().UTC(),
	))
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanListItem(r.DB.QueryRowContext(ctx,
		`SELECT `+listItemColumns+` FROM contact_list_items
		WHERE tenant_id=$2 AND contact_list_id=$3 AND (source_number=$1 OR number=$1)
		ORDER BY id LIMIT 1`,
		key.Number, key.TenantID, key.ContactListID,
	))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateValidation rewrites the send number and flag. The source number is
// never touched.
func (r *ContactListItemRepository) UpdateValidation(ctx context.Context, id int, number string, valid *bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE contact_list_items SET number=$1, is_whatsapp_valid=$2, updated_at=NOW() WHERE id=$3`,
		number, valid, id,
	)
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	// another contact already reaches this canonical address
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM contact_list_items WHERE id=$1`, id); err != nil {
		return err
	}
	return appErrors.ErrDuplicateListItem
}

func (r *ContactListItemRepository) ListAudience(ctx context.Context, tenantID, listID int) ([]model.ContactListItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+listItemColumns+` FROM contact_list_items WHERE tenant_id=$1 AND contact_list_id=$2 ORDER BY id`,
		tenantID, listID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.ContactListItem{}
	for rows.Next() {
		it, err := scanListItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *ContactListItemRepository) Stats(ctx context.Context, tenantID, listID int) (model.AudienceStats, error) {
	var s model.AudienceStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_whatsapp_valid = TRUE),
			COUNT(*) FILTER (WHERE is_whatsapp_valid = FALSE),
			COUNT(*) FILTER (WHERE is_whatsapp_valid IS NULL)
		FROM contact_list_items
		WHERE tenant_id=$1 AND contact_list_id=$2`,
		tenantID, listID,
	).Scan(&s.Total, &s.Valid, &s.Invalid, &s.Unchecked)
	return s, err
}

var _ ContactListItemRepositoryInterface = (*ContactListItemRepository)(nil)
