package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	List(ctx context.Context, f CampaignFilter) ([]*model.Campaign, int, error)
	// ListDue returns SCHEDULED campaigns whose planned time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error)
	// ListStale returns IN_PROGRESS campaigns last written before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Campaign, error)
	// Update writes c only if the stored row still has status expected and
	// version c.Version, then bumps c.Version. Returns ErrStaleCampaign when
	// another writer got there first.
	Update(ctx context.Context, c *model.Campaign, expected model.CampaignStatus) error
	Delete(ctx context.Context, tenantID, id int) error
}

type CampaignFilter struct {
	TenantID    int
	Status      model.CampaignStatus
	IsRecurring *bool
	Search      string
	Offset      int
	Limit       int
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, name, message, status, is_recurring, recurrence_type,
	scheduled_at, next_scheduled_at, completed_at, execution_count, max_executions,
	recurrence_end_at, recurrence_stopped, contact_list_id, tag_id, whatsapp_id,
	confirmation, last_dispatch_error, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Message, &c.Status, &c.IsRecurring, &c.RecurrenceType,
		&c.ScheduledAt, &c.NextScheduledAt, &c.CompletedAt, &c.ExecutionCount, &c.MaxExecutions,
		&c.RecurrenceEndAt, &c.RecurrenceStopped, &c.ContactListID, &c.TagID, &c.WhatsappID,
		&c.Confirmation, &c.LastDispatchError, &c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	c.Version = 0
	if c.Status == "" {
		c.Status = model.StatusInactive
	}
	query := `
		INSERT INTO campaigns (tenant_id, name, message, status, is_recurring, recurrence_type,
			scheduled_at, next_scheduled_at, max_executions, recurrence_end_at,
			contact_list_id, tag_id, whatsapp_id, confirmation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		c.TenantID, c.Name, c.Message, c.Status, c.IsRecurring, c.RecurrenceType,
		c.ScheduledAt, c.NextScheduledAt, c.MaxExecutions, c.RecurrenceEndAt,
		c.ContactListID, c.TagID, c.WhatsappID, c.Confirmation, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign, expected model.CampaignStatus) error {
	now := time.Now().UTC()
	query := `
		UPDATE campaigns
		SET name=$1, message=$2, status=$3, is_recurring=$4, recurrence_type=$5,
			scheduled_at=$6, next_scheduled_at=$7, completed_at=$8, execution_count=$9,
			max_executions=$10, recurrence_end_at=$11, recurrence_stopped=$12,
			contact_list_id=$13, tag_id=$14, whatsapp_id=$15, confirmation=$16,
			last_dispatch_error=$17, updated_at=$18, version=version+1
		WHERE id=$19 AND tenant_id=$20 AND status=$21 AND version=$22
	`
	res, err := r.DB.ExecContext(ctx, query,
		c.Name, c.Message, c.Status, c.IsRecurring, c.RecurrenceType,
		c.ScheduledAt, c.NextScheduledAt, c.CompletedAt, c.ExecutionCount,
		c.MaxExecutions, c.RecurrenceEndAt, c.RecurrenceStopped,
		c.ContactListID, c.TagID, c.WhatsappID, c.Confirmation,
		c.LastDispatchError, now,
		c.ID, c.TenantID, expected, c.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrStaleCampaign
	}
	c.UpdatedAt = &now
	c.Version++
	return nil
}

func (r *CampaignRepository) Delete(ctx context.Context, tenantID, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) List(ctx context.Context, f CampaignFilter) ([]*model.Campaign, int, error) {
	where := []string{"tenant_id=$1"}
	args := []any{f.TenantID}
	argPos := 2

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", argPos))
		args = append(args, f.Status)
		argPos++
	}
	if f.IsRecurring != nil {
		where = append(where, fmt.Sprintf("is_recurring=$%d", argPos))
		args = append(args, *f.IsRecurring)
		argPos++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+s+"%")
		argPos++
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, whereSQL, argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status=$1 AND COALESCE(next_scheduled_at, scheduled_at) <= $2
		ORDER BY COALESCE(next_scheduled_at, scheduled_at)
		LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, model.StatusScheduled, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func (r *CampaignRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status=$1 AND COALESCE(updated_at, created_at) < $2
		ORDER BY id
		LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, model.StatusInProgress, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stale := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, c)
	}
	return stale, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
