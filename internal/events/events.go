// Package events carries the coordination events between the sync task, the
// dispatcher and the orchestrator. Delivery is at-least-once; consumers must
// re-check store state before acting.
package events

import "context"

type Kind string

const (
	KindRetryDue          Kind = "retry_due"
	KindSyncCompleted     Kind = "sync_completed"
	KindBatchCompleted    Kind = "batch_completed"
	KindCampaignCompleted Kind = "campaign_completed"
)

type Event struct {
	Kind       Kind   `json:"kind"`
	CampaignID int    `json:"campaign_id"`
	BatchID    string `json:"batch_id,omitempty"`
	TotalRows  int    `json:"total_rows,omitempty"`
	Processed  int    `json:"processed,omitempty"`
	Failed     int    `json:"failed,omitempty"`

	// DurationSeconds is set on campaign_completed when started_at is known.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}
