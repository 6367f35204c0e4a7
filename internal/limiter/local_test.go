package limiter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/limiter"
)

func TestLocalLimiterOrgCeiling(t *testing.T) {
	l := limiter.NewLocalLimiter()
	ctx := context.Background()

	slots := []*limiter.Slot{}
	for i := 0; i < 3; i++ {
		s, err := l.Acquire(ctx, 1, 3, 10, 5)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		slots = append(slots, s)
	}
	if got := l.InUse(1); got != 3 {
		t.Fatalf("got %d permits in use, want 3", got)
	}

	// Fourth acquire must block until a release.
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(timeoutCtx, 1, 3, 10, 5)
	var timeout *appErrors.ErrSlotTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("got %v, want slot timeout", err)
	}

	if err := l.Release(ctx, slots[0]); err != nil {
		t.Fatalf("release: %v", err)
	}
	s, err := l.Acquire(ctx, 1, 3, 10, 5)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l.Release(ctx, s)
}

func TestLocalLimiterCampaignCeilingBelowOrg(t *testing.T) {
	l := limiter.NewLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Acquire(ctx, 1, 10, 20, 2); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(timeoutCtx, 1, 10, 20, 2); err == nil {
		t.Fatal("expected campaign ceiling to block third acquire")
	}

	// Another campaign in the same organization is unaffected.
	s, err := l.Acquire(ctx, 1, 10, 21, 2)
	if err != nil {
		t.Fatalf("acquire for sibling campaign: %v", err)
	}
	l.Release(ctx, s)
}

func TestLocalLimiterBlockedAcquireWakesOnRelease(t *testing.T) {
	l := limiter.NewLocalLimiter()
	ctx := context.Background()

	first, err := l.Acquire(ctx, 1, 1, 10, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		s, err := l.Acquire(ctx, 1, 1, 10, 1)
		if err != nil {
			t.Errorf("blocked acquire: %v", err)
			return
		}
		close(acquired)
		l.Release(ctx, s)
	}()

	time.Sleep(10 * time.Millisecond)
	l.Release(ctx, first)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after release")
	}
	wg.Wait()
}
