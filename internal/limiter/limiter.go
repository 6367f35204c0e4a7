// Package limiter owns the shared concurrency budget: one counter per
// organization, one per campaign. Acquire blocks until both permits are
// held or the context expires; the caller decides the wait window.
package limiter

import "context"

// Slot is a held pair of permits. Release exactly once when the call
// resolves; a permit must never outlive the call it covers.
type Slot struct {
	OrganizationID int
	CampaignID     int
	Token          string
}

type SlotLimiter interface {
	// Acquire blocks until an organization permit (capped at orgLimit) and
	// a campaign permit (capped at campaignLimit) are both held. Returns
	// ErrSlotTimeout via the wrapped context error when the window closes.
	Acquire(ctx context.Context, orgID, orgLimit, campaignID, campaignLimit int) (*Slot, error)
	Release(ctx context.Context, slot *Slot) error
}
