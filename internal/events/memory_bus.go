package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryBus is the single-node bus: a fan-out over buffered channels with
// the same at-least-once contract as the Redis bus. A subscriber that falls
// behind drops events; the stale sweep compensates.
type MemoryBus struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	subs := make([]chan Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			log.Warn().
				Str("kind", string(ev.Kind)).
				Int("campaign_id", ev.CampaignID).
				Msg("event dropped, subscriber backlogged")
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 256)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

var _ EventBus = (*MemoryBus)(nil)
