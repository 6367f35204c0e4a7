package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DialRate throttles call placement per campaign to the organization's
// dials-per-second allowance.
type DialRate struct {
	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

func NewDialRate() *DialRate {
	return &DialRate{limiters: make(map[int]*rate.Limiter)}
}

// Wait blocks until one dial token is available for the campaign. A
// perSecond of zero or less means unthrottled.
func (d *DialRate) Wait(ctx context.Context, campaignID, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	d.mu.Lock()
	lim, ok := d.limiters[campaignID]
	if !ok || lim.Limit() != rate.Limit(perSecond) {
		lim = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		d.limiters[campaignID] = lim
	}
	d.mu.Unlock()
	return lim.Wait(ctx)
}
