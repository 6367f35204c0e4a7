package limiter

import (
	"context"
	"sync"

	"github.com/google/uuid"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
)

// LocalLimiter keeps the counters in process memory. Used in single-node
// mode and in tests; the acquire/release contract matches the Redis
// implementation.
type LocalLimiter struct {
	mu        sync.Mutex
	cond      *sync.Cond
	orgCounts map[int]int
	cmpCounts map[int]int
}

func NewLocalLimiter() *LocalLimiter {
	l := &LocalLimiter{
		orgCounts: make(map[int]int),
		cmpCounts: make(map[int]int),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *LocalLimiter) Acquire(ctx context.Context, orgID, orgLimit, campaignID, campaignLimit int) (*Slot, error) {
	// Wake all waiters when the context closes so the wait loop can
	// observe cancellation.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return nil, appErrors.NewSlotTimeout(orgID, campaignID)
		}
		if l.orgCounts[orgID] < orgLimit && l.cmpCounts[campaignID] < campaignLimit {
			l.orgCounts[orgID]++
			l.cmpCounts[campaignID]++
			return &Slot{OrganizationID: orgID, CampaignID: campaignID, Token: uuid.NewString()}, nil
		}
		l.cond.Wait()
	}
}

func (l *LocalLimiter) Release(ctx context.Context, slot *Slot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.orgCounts[slot.OrganizationID] > 0 {
		l.orgCounts[slot.OrganizationID]--
	}
	if l.cmpCounts[slot.CampaignID] > 0 {
		l.cmpCounts[slot.CampaignID]--
	}
	l.cond.Broadcast()
	return nil
}

// InUse reports the organization's current permit count. Test helper.
func (l *LocalLimiter) InUse(orgID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orgCounts[orgID]
}

var _ SlotLimiter = (*LocalLimiter)(nil)
