package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/callforge/dialer-backend/internal/events"
)

func TestMemoryBusFansOut(t *testing.T) {
	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	b, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	ev := events.Event{Kind: events.KindBatchCompleted, CampaignID: 42, Processed: 9}
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, ch := range map[string]<-chan events.Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.CampaignID != 42 || got.Kind != events.KindBatchCompleted {
				t.Errorf("subscriber %s: got %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the event", name)
		}
	}
}

func TestMemoryBusUnsubscribesOnContextCancel(t *testing.T) {
	bus := events.NewMemoryBus()

	subCtx, subCancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(subCtx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subCancel()

	// The channel closes once the subscription is torn down.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := events.NewMemoryBus()
	if err := bus.Publish(context.Background(), events.Event{Kind: events.KindRetryDue, CampaignID: 1}); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}
