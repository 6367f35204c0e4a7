package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
)

// slotTTL bounds how long a counter can stay elevated if a worker dies
// holding permits. Refreshed on every acquire.
const slotTTL = 15 * time.Minute

const acquirePollInterval = 250 * time.Millisecond

// RedisLimiter backs the counters with Redis so dispatcher instances on
// different hosts share one organization budget. Increments are atomic;
// an increment that overshoots the ceiling is undone immediately, never
// read-then-write.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{client: redis.NewClient(opts)}, nil
}

func orgSlotsKey(orgID int) string      { return fmt.Sprintf("org:%d:call_slots", orgID) }
func campaignSlotsKey(cmpID int) string { return fmt.Sprintf("campaign:%d:call_slots", cmpID) }

func (l *RedisLimiter) Acquire(ctx context.Context, orgID, orgLimit, campaignID, campaignLimit int) (*Slot, error) {
	ticker := time.NewTicker(acquirePollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire(ctx, orgID, orgLimit, campaignID, campaignLimit)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Slot{OrganizationID: orgID, CampaignID: campaignID, Token: uuid.NewString()}, nil
		}
		select {
		case <-ctx.Done():
			return nil, appErrors.NewSlotTimeout(orgID, campaignID)
		case <-ticker.C:
		}
	}
}

func (l *RedisLimiter) tryAcquire(ctx context.Context, orgID, orgLimit, campaignID, campaignLimit int) (bool, error) {
	orgKey := orgSlotsKey(orgID)
	n, err := l.client.Incr(ctx, orgKey).Result()
	if err != nil {
		return false, err
	}
	l.client.Expire(ctx, orgKey, slotTTL)
	if n > int64(orgLimit) {
		l.client.Decr(ctx, orgKey)
		return false, nil
	}

	cmpKey := campaignSlotsKey(campaignID)
	n, err = l.client.Incr(ctx, cmpKey).Result()
	if err != nil {
		l.client.Decr(ctx, orgKey)
		return false, err
	}
	l.client.Expire(ctx, cmpKey, slotTTL)
	if n > int64(campaignLimit) {
		l.client.Decr(ctx, cmpKey)
		l.client.Decr(ctx, orgKey)
		return false, nil
	}
	return true, nil
}

func (l *RedisLimiter) Release(ctx context.Context, slot *Slot) error {
	// Releases run during teardown too; use a background context if the
	// caller's one already closed so permits are not leaked.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := l.client.Decr(ctx, campaignSlotsKey(slot.CampaignID)).Err(); err != nil {
		return err
	}
	return l.client.Decr(ctx, orgSlotsKey(slot.OrganizationID)).Err()
}

func (l *RedisLimiter) Close() error { return l.client.Close() }

var _ SlotLimiter = (*RedisLimiter)(nil)
