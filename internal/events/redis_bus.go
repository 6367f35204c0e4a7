package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const campaignEventsChannel = "campaign:events"

// RedisBus carries campaign events over a Redis pub/sub channel so the
// server, worker and orchestrator processes can coordinate.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBus{client: redis.NewClient(opts)}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, campaignEventsChannel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, campaignEventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Error().Err(err).Str("payload", msg.Payload).Msg("failed to parse campaign event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error { return b.client.Close() }

var _ EventBus = (*RedisBus)(nil)
