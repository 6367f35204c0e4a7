package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(campaignID int, status model.CampaignStatus) error
	MarkStarted(campaignID int) error
	MarkCompleted(campaignID int) error
	RecordSyncResult(campaignID, totalRows int, status model.CampaignStatus, syncErr string) error
	AddBatchResult(campaignID, processed, failed int) error
	RunningCampaigns() ([]*model.Campaign, error)
	GetOrganization(id int) (*model.Organization, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, organization_id, name, workflow_id, source_type, source_locator,
        status, max_concurrency, retry_config, total_rows, processed_rows, failed_rows,
        sync_error, last_batch_scheduled_at, last_activity_at, started_at, completed_at,
        created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.WorkflowID, &c.SourceType, &c.SourceLocator,
		&c.Status, &c.MaxConcurrency, &c.RetryConfig, &c.TotalRows, &c.ProcessedRows, &c.FailedRows,
		&c.SyncError, &c.LastBatchScheduledAt, &c.LastActivityAt, &c.StartedAt, &c.CompletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns (organization_id, name, workflow_id, source_type, source_locator,
                               status, max_concurrency, retry_config, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.OrganizationID, c.Name, c.WorkflowID, c.SourceType, c.SourceLocator,
		c.Status, c.MaxConcurrency, c.RetryConfig, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, campaignID)
	return err
}

func (r *CampaignRepository) MarkStarted(campaignID int) error {
	query := `
        UPDATE campaigns
        SET started_at=COALESCE(started_at, NOW()), last_activity_at=NOW(), updated_at=NOW()
        WHERE id=$1
    `
	_, err := r.DB.Exec(query, campaignID)
	return err
}

// MarkCompleted transitions a running campaign to completed. Conditional on
// the current status so a concurrent pause cannot be clobbered.
func (r *CampaignRepository) MarkCompleted(campaignID int) error {
	query := `
        UPDATE campaigns
        SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3
    `
	_, err := r.DB.Exec(query, model.CampaignCompleted, campaignID, model.CampaignRunning)
	return err
}

func (r *CampaignRepository) RecordSyncResult(campaignID, totalRows int, status model.CampaignStatus, syncErr string) error {
	query := `
        UPDATE campaigns
        SET total_rows=$1, status=$2, sync_error=$3, last_activity_at=NOW(), updated_at=NOW()
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, totalRows, status, syncErr, campaignID)
	return err
}

func (r *CampaignRepository) AddBatchResult(campaignID, processed, failed int) error {
	query := `
        UPDATE campaigns
        SET processed_rows=processed_rows+$1, failed_rows=failed_rows+$2,
            last_activity_at=NOW(), updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.Exec(query, processed, failed, campaignID)
	return err
}

func (r *CampaignRepository) RunningCampaigns() ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id`
	rows, err := r.DB.Query(query, model.CampaignRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) GetOrganization(id int) (*model.Organization, error) {
	query := `SELECT id, name, concurrent_call_limit, dials_per_second FROM organizations WHERE id=$1`
	var o model.Organization
	err := r.DB.QueryRow(query, id).Scan(&o.ID, &o.Name, &o.ConcurrentCallLimit, &o.DialsPerSecond)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
