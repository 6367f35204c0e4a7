package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/callforge/dialer-backend/internal/model"
)

type RowRepositoryInterface interface {
	BulkInsert(rows []*model.CampaignRow) (int, error)
	RowsByIDs(ids []int) ([]*model.CampaignRow, error)
	ClaimBatch(campaignID, limit int) (*model.Batch, error)
	MarkOutcome(rowID int, status model.RowStatus, disposition model.Disposition,
		reason model.RetryCause, attemptCount int, nextRetryAt *time.Time) error
	Defer(rowID int) error
	ReclaimStale(olderThan time.Time) (int, error)
	OpenCount(campaignID int) (int, error)
	EligibleCount(campaignID int) (int, error)
	DueRetryCampaignIDs() ([]int, error)
	CountsByStatus(campaignID int) (map[string]int, error)
}

type RowRepository struct {
	DB *sql.DB
}

// BulkInsert creates pending rows, skipping any source key already synced
// for the campaign. Returns the number of rows actually inserted.
func (r *RowRepository) BulkInsert(rows []*model.CampaignRow) (int, error) {
	inserted := 0
	query := `
        INSERT INTO campaign_rows (campaign_id, source_key, contact_payload, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (campaign_id, source_key) DO NOTHING
        RETURNING id
    `
	for _, row := range rows {
		var id int
		err := r.DB.QueryRow(query, row.CampaignID, row.SourceKey, row.ContactPayload, model.RowPending).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				continue // already synced
			}
			return inserted, err
		}
		row.ID = id
		inserted++
	}
	return inserted, nil
}

const rowColumns = `id, campaign_id, source_key, contact_payload, status, attempt_count,
        disposition, retry_reason, next_retry_at, dispatched_at, created_at, updated_at`

func scanRow(row interface{ Scan(...any) error }) (*model.CampaignRow, error) {
	var cr model.CampaignRow
	var disposition, reason sql.NullString
	err := row.Scan(
		&cr.ID, &cr.CampaignID, &cr.SourceKey, &cr.ContactPayload, &cr.Status, &cr.AttemptCount,
		&disposition, &reason, &cr.NextRetryAt, &cr.DispatchedAt, &cr.CreatedAt, &cr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cr.Disposition = model.Disposition(disposition.String)
	cr.RetryReason = model.RetryCause(reason.String)
	return &cr, nil
}

func (r *RowRepository) RowsByIDs(ids []int) ([]*model.CampaignRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + rowColumns + ` FROM campaign_rows WHERE id = ANY($1) ORDER BY id`
	rows, err := r.DB.Query(query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.CampaignRow{}
	for rows.Next() {
		cr, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// ClaimBatch atomically selects eligible rows, marks them dispatched and
// stamps the campaign's last_batch_scheduled_at — all in one transaction.
// The campaign row is locked first so concurrent sweep and event triggers
// serialize per campaign, and nothing is claimed while another batch still
// has dispatched rows. Pending rows claim ahead of due retries so fresh
// contacts are never starved. Returns nil when there is nothing to claim.
func (r *RowRepository) ClaimBatch(campaignID, limit int) (*model.Batch, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status model.CampaignStatus
	err = tx.QueryRow(`SELECT status FROM campaigns WHERE id=$1 FOR UPDATE`, campaignID).Scan(&status)
	if err != nil {
		return nil, err
	}
	if status != model.CampaignRunning {
		return nil, nil
	}

	var inFlight int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM campaign_rows WHERE campaign_id=$1 AND status=$2`,
		campaignID, model.RowDispatched,
	).Scan(&inFlight)
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, nil // a batch is still draining
	}

	claimQuery := `
        SELECT id FROM campaign_rows
        WHERE campaign_id=$1
          AND (status=$2 OR (status=$3 AND next_retry_at <= NOW()))
        ORDER BY (status=$2) DESC, id
        LIMIT $4
        FOR UPDATE SKIP LOCKED
    `
	rows, err := tx.Query(claimQuery, campaignID, model.RowPending, model.RowRetryScheduled, limit)
	if err != nil {
		return nil, err
	}
	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now()
	_, err = tx.Exec(
		`UPDATE campaign_rows SET status=$1, dispatched_at=$2, updated_at=$2 WHERE id = ANY($3)`,
		model.RowDispatched, now, pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`UPDATE campaigns SET last_batch_scheduled_at=$1, last_activity_at=$1, updated_at=$1 WHERE id=$2`,
		now, campaignID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Batch{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		RowIDs:     ids,
		ClaimedAt:  now,
	}, nil
}

// MarkOutcome applies one retry-state-machine transition. Conditional on
// the row still being dispatched so a reclaimed row cannot be double
// resolved.
func (r *RowRepository) MarkOutcome(rowID int, status model.RowStatus, disposition model.Disposition,
	reason model.RetryCause, attemptCount int, nextRetryAt *time.Time) error {
	query := `
        UPDATE campaign_rows
        SET status=$1, disposition=$2, retry_reason=$3, attempt_count=$4,
            next_retry_at=$5, dispatched_at=NULL, updated_at=NOW()
        WHERE id=$6 AND status=$7
    `
	_, err := r.DB.Exec(query, status, nullIfEmpty(string(disposition)), nullIfEmpty(string(reason)),
		attemptCount, nextRetryAt, rowID, model.RowDispatched)
	return err
}

// Defer returns a dispatched row to the eligible pool without consuming an
// attempt. Used when no concurrency permit freed up in time.
func (r *RowRepository) Defer(rowID int) error {
	query := `
        UPDATE campaign_rows
        SET status=$1, next_retry_at=NOW(), dispatched_at=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `
	_, err := r.DB.Exec(query, model.RowRetryScheduled, rowID, model.RowDispatched)
	return err
}

// ReclaimStale folds rows stuck in dispatched past the liveness timeout
// back into the eligible pool. No attempt is consumed: the outcome was
// never observed.
func (r *RowRepository) ReclaimStale(olderThan time.Time) (int, error) {
	query := `
        UPDATE campaign_rows
        SET status=$1, next_retry_at=NOW(), dispatched_at=NULL, updated_at=NOW()
        WHERE status=$2 AND dispatched_at < $3
    `
	res, err := r.DB.Exec(query, model.RowRetryScheduled, model.RowDispatched, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// OpenCount is the number of rows that keep a campaign from completing:
// pending, dispatched, or retry_scheduled with any retry still ahead.
func (r *RowRepository) OpenCount(campaignID int) (int, error) {
	query := `
        SELECT COUNT(*) FROM campaign_rows
        WHERE campaign_id=$1 AND status IN ($2, $3, $4)
    `
	var n int
	err := r.DB.QueryRow(query, campaignID, model.RowPending, model.RowDispatched, model.RowRetryScheduled).Scan(&n)
	return n, err
}

// EligibleCount is the number of rows claimable right now.
func (r *RowRepository) EligibleCount(campaignID int) (int, error) {
	query := `
        SELECT COUNT(*) FROM campaign_rows
        WHERE campaign_id=$1
          AND (status=$2 OR (status=$3 AND next_retry_at <= NOW()))
    `
	var n int
	err := r.DB.QueryRow(query, campaignID, model.RowPending, model.RowRetryScheduled).Scan(&n)
	return n, err
}

// DueRetryCampaignIDs lists campaigns with at least one retry that has come
// due, for the retry-due poller.
func (r *RowRepository) DueRetryCampaignIDs() ([]int, error) {
	query := `
        SELECT DISTINCT campaign_id FROM campaign_rows
        WHERE status=$1 AND next_retry_at <= NOW()
    `
	rows, err := r.DB.Query(query, model.RowRetryScheduled)
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

func (r *RowRepository) CountsByStatus(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_rows WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		string(model.RowPending):        0,
		string(model.RowDispatched):     0,
		string(model.RowCompleted):      0,
		string(model.RowRetryScheduled): 0,
		string(model.RowFailed):         0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ RowRepositoryInterface = (*RowRepository)(nil)
