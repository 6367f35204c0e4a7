// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSyncing   CampaignStatus = "syncing"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// RetryConfig controls how call outcomes with a retryable cause are handled.
// Each cause is independently toggleable. Stored as JSONB on the campaign.
type RetryConfig struct {
	Enabled           bool `json:"enabled"`
	MaxRetries        int  `json:"max_retries"`
	RetryDelaySeconds int  `json:"retry_delay_seconds"`
	RetryOnBusy       bool `json:"retry_on_busy"`
	RetryOnNoAnswer   bool `json:"retry_on_no_answer"`
	RetryOnVoicemail  bool `json:"retry_on_voicemail"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:           true,
		MaxRetries:        1,
		RetryDelaySeconds: 120,
		RetryOnBusy:       true,
		RetryOnNoAnswer:   true,
		RetryOnVoicemail:  true,
	}
}

func (c RetryConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *RetryConfig) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = DefaultRetryConfig()
		return nil
	}
	return fmt.Errorf("cannot scan retry config from %T", src)
}

type Campaign struct {
	ID                   int            `db:"id" json:"id"`
	OrganizationID       int            `db:"organization_id" json:"organization_id"`
	Name                 string         `db:"name" json:"name"`
	WorkflowID           int            `db:"workflow_id" json:"workflow_id"`
	SourceType           string         `db:"source_type" json:"source_type"`
	SourceLocator        string         `db:"source_locator" json:"source_locator"`
	Status               CampaignStatus `db:"status" json:"status"`
	MaxConcurrency       *int           `db:"max_concurrency" json:"max_concurrency,omitempty"`
	RetryConfig          RetryConfig    `db:"retry_config" json:"retry_config"`
	TotalRows            int            `db:"total_rows" json:"total_rows"`
	ProcessedRows        int            `db:"processed_rows" json:"processed_rows"`
	FailedRows           int            `db:"failed_rows" json:"failed_rows"`
	SyncError            string         `db:"sync_error" json:"sync_error,omitempty"`
	LastBatchScheduledAt *time.Time     `db:"last_batch_scheduled_at" json:"last_batch_scheduled_at,omitempty"`
	LastActivityAt       *time.Time     `db:"last_activity_at" json:"last_activity_at,omitempty"`
	StartedAt            *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt          *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// ConcurrencyCap is the per-campaign dispatch bound: max_concurrency when
// set, otherwise the organization-wide limit.
func (c *Campaign) ConcurrencyCap(orgLimit int) int {
	if c.MaxConcurrency != nil && *c.MaxConcurrency > 0 {
		return *c.MaxConcurrency
	}
	return orgLimit
}

// Terminal states stay immutable except for the operator
// resume-from-failed path.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:   {CampaignSyncing},
	CampaignSyncing: {CampaignRunning, CampaignCompleted, CampaignFailed},
	CampaignRunning: {CampaignPaused, CampaignCompleted, CampaignFailed},
	CampaignPaused:  {CampaignRunning, CampaignSyncing},
	CampaignFailed:  {CampaignSyncing},
}

func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Organization carries the shared dial limits all of its campaigns draw
// from.
type Organization struct {
	ID                  int    `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	ConcurrentCallLimit int    `db:"concurrent_call_limit" json:"concurrent_call_limit"`
	DialsPerSecond      int    `db:"dials_per_second" json:"dials_per_second"`
}
