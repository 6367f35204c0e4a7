// internal/model/batch.go
package model

import "time"

// Batch is the row set claimed for one dispatch cycle. At most one batch
// is in flight per campaign; the claim transaction enforces it.
type Batch struct {
	ID         string    `json:"id"`
	CampaignID int       `json:"campaign_id"`
	RowIDs     []int     `json:"row_ids"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

func (b *Batch) Size() int {
	if b == nil {
		return 0
	}
	return len(b.RowIDs)
}
