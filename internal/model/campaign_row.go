// internal/model/campaign_row.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type RowStatus string

const (
	RowPending        RowStatus = "pending"
	RowDispatched     RowStatus = "dispatched"
	RowCompleted      RowStatus = "completed"
	RowRetryScheduled RowStatus = "retry_scheduled"
	RowFailed         RowStatus = "failed"
)

// ContactPayload is the opaque key/value data handed to the workflow when
// the call is placed. Stored as JSONB.
type ContactPayload map[string]string

func (p ContactPayload) Value() (driver.Value, error) {
	if p == nil {
		p = ContactPayload{}
	}
	return json.Marshal(p)
}

func (p *ContactPayload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = ContactPayload{}
		return nil
	}
	return fmt.Errorf("cannot scan contact payload from %T", src)
}

// CampaignRow is one contact's call attempt record. A row with status
// dispatched has exactly one call-placement operation in flight.
type CampaignRow struct {
	ID             int            `db:"id" json:"id"`
	CampaignID     int            `db:"campaign_id" json:"campaign_id"`
	SourceKey      string         `db:"source_key" json:"source_key"`
	ContactPayload ContactPayload `db:"contact_payload" json:"contact_payload"`
	Status         RowStatus      `db:"status" json:"status"`
	AttemptCount   int            `db:"attempt_count" json:"attempt_count"`
	Disposition    Disposition    `db:"disposition" json:"disposition,omitempty"`
	RetryReason    RetryCause     `db:"retry_reason" json:"retry_reason,omitempty"`
	NextRetryAt    *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
	DispatchedAt   *time.Time     `db:"dispatched_at" json:"dispatched_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
