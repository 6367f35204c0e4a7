package orchestrator_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callforge/dialer-backend/internal/dialer"
	"github.com/callforge/dialer-backend/internal/dispatcher"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/limiter"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/orchestrator"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
)

// recordQueue captures enqueued tasks without executing them.
type recordQueue struct {
	tasks []queue.Task
}

func (q *recordQueue) Enqueue(ctx context.Context, task queue.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordQueue) Consume(ctx context.Context, handler queue.Handler) error { return nil }

// syncQueue executes process-batch tasks inline, standing in for a worker.
type syncQueue struct {
	handler queue.Handler
}

func (q *syncQueue) Enqueue(ctx context.Context, task queue.Task) error {
	return q.handler(ctx, task)
}

func (q *syncQueue) Consume(ctx context.Context, handler queue.Handler) error { return nil }

func intPtr(n int) *int { return &n }

func newOrchestrator(store *repository.MemoryStore, tasks queue.TaskQueue, bus events.EventBus) *orchestrator.Orchestrator {
	return &orchestrator.Orchestrator{
		Campaigns:            store,
		Rows:                 store,
		Tasks:                tasks,
		Bus:                  bus,
		BatchSize:            10,
		SweepInterval:        time.Minute,
		StaleBatchTimeout:    5 * time.Minute,
		DispatchedRowTimeout: 5 * time.Minute,
		RetryPollInterval:    15 * time.Second,
	}
}

func seedRunning(t *testing.T, store *repository.MemoryStore, cfg model.RetryConfig,
	maxConcurrency, rowCount int) *model.Campaign {
	t.Helper()

	store.PutOrganization(&model.Organization{ID: 1, Name: "Test Org", ConcurrentCallLimit: 10})
	c := &model.Campaign{
		OrganizationID: 1,
		Name:           "test campaign",
		WorkflowID:     3,
		SourceType:     "csv",
		Status:         model.CampaignRunning,
		MaxConcurrency: intPtr(maxConcurrency),
		RetryConfig:    cfg,
	}
	require.NoError(t, store.Create(c))

	rows := make([]*model.CampaignRow, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		rows = append(rows, &model.CampaignRow{
			CampaignID:     c.ID,
			SourceKey:      fmt.Sprintf("row_%d", i),
			ContactPayload: model.ContactPayload{"phone_number": fmt.Sprintf("+1%03d", i)},
		})
	}
	_, err := store.BulkInsert(rows)
	require.NoError(t, err)
	require.NoError(t, store.RecordSyncResult(c.ID, rowCount, model.CampaignRunning, ""))
	require.NoError(t, store.MarkStarted(c.ID))
	return c
}

func TestSyncCompletedSchedulesFirstBatch(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 15)

	q := &recordQueue{}
	o := newOrchestrator(store, q, events.NewMemoryBus())

	o.HandleEvent(context.Background(), events.Event{Kind: events.KindSyncCompleted, CampaignID: c.ID})

	require.Len(t, q.tasks, 1)
	task := q.tasks[0]
	assert.Equal(t, queue.TaskProcessBatch, task.Name)
	require.NotNil(t, task.Batch)
	assert.Len(t, task.Batch.RowIDs, 10, "claim is capped at the batch size")

	counts, err := store.CountsByStatus(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, counts["dispatched"])
	assert.Equal(t, 5, counts["pending"])
}

func TestNoSecondClaimWhileBatchInFlight(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 15)

	q := &recordQueue{}
	o := newOrchestrator(store, q, events.NewMemoryBus())
	ctx := context.Background()

	o.HandleEvent(ctx, events.Event{Kind: events.KindSyncCompleted, CampaignID: c.ID})
	require.Len(t, q.tasks, 1)

	// Duplicate and concurrent triggers while the batch drains are no-ops.
	o.HandleEvent(ctx, events.Event{Kind: events.KindSyncCompleted, CampaignID: c.ID})
	o.HandleEvent(ctx, events.Event{Kind: events.KindRetryDue, CampaignID: c.ID})
	o.Sweep(ctx)

	assert.Len(t, q.tasks, 1, "at most one batch may be in flight per campaign")
}

func TestScheduleNextIgnoresNonRunningCampaign(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 5)
	require.NoError(t, store.UpdateStatus(c.ID, model.CampaignPaused))

	q := &recordQueue{}
	o := newOrchestrator(store, q, events.NewMemoryBus())

	o.ScheduleNext(context.Background(), c.ID)
	assert.Empty(t, q.tasks)

	counts, err := store.CountsByStatus(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts["pending"], "paused campaign rows stay untouched")
}

func TestCampaignCompletesWhenNoOpenRows(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 2)

	// Resolve both rows.
	batch, err := store.ClaimBatch(c.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, batch)
	for _, id := range batch.RowIDs {
		require.NoError(t, store.MarkOutcome(id, model.RowCompleted, model.DispositionEndCallTool, model.CauseNone, 1, nil))
	}
	require.NoError(t, store.AddBatchResult(c.ID, 2, 0))

	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	o := newOrchestrator(store, &recordQueue{}, bus)
	o.HandleEvent(ctx, events.Event{Kind: events.KindBatchCompleted, CampaignID: c.ID, BatchID: batch.ID})

	updated, err := store.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindCampaignCompleted, ev.Kind)
		assert.Equal(t, c.ID, ev.CampaignID)
		assert.Equal(t, 2, ev.TotalRows)
		assert.Equal(t, 2, ev.Processed)
	case <-time.After(time.Second):
		t.Fatal("expected campaign-completed event")
	}

	// A duplicate batch-completed after the fact changes nothing.
	o.HandleEvent(ctx, events.Event{Kind: events.KindBatchCompleted, CampaignID: c.ID, BatchID: batch.ID})
	again, err := store.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.CompletedAt, again.CompletedAt)
}

func TestCampaignWaitsForFutureRetries(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 1)

	batch, err := store.ClaimBatch(c.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, batch)
	next := time.Now().Add(2 * time.Minute)
	require.NoError(t, store.MarkOutcome(batch.RowIDs[0], model.RowRetryScheduled, "", model.CauseBusy, 1, &next))

	o := newOrchestrator(store, &recordQueue{}, events.NewMemoryBus())
	o.HandleEvent(context.Background(), events.Event{Kind: events.KindBatchCompleted, CampaignID: c.ID})

	updated, err := store.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, updated.Status, "campaign must wait for the scheduled retry")
}

func TestSweepReclaimsStaleRowsAndRetriggers(t *testing.T) {
	store := repository.NewMemoryStore()

	// Claim in the past so dispatched_at and last_batch_scheduled_at both
	// predate the timeouts.
	past := time.Now().Add(-10 * time.Minute)
	store.Now = func() time.Time { return past }
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 3)
	batch, err := store.ClaimBatch(c.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, batch)
	store.Now = time.Now

	q := &recordQueue{}
	o := newOrchestrator(store, q, events.NewMemoryBus())
	o.Sweep(context.Background())

	require.Len(t, q.tasks, 1, "sweep must reschedule the abandoned campaign")
	rows, err := store.RowsByIDs(q.tasks[0].Batch.RowIDs)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, model.RowDispatched, row.Status)
		assert.Equal(t, 0, row.AttemptCount, "reclaim must not consume an attempt")
	}
}

func TestSweepLeavesRecentBatchesAlone(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 3)
	_, err := store.ClaimBatch(c.ID, 2)
	require.NoError(t, err)

	q := &recordQueue{}
	o := newOrchestrator(store, q, events.NewMemoryBus())
	o.Sweep(context.Background())

	assert.Empty(t, q.tasks, "a recently scheduled batch is not stale")
	counts, err := store.CountsByStatus(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["dispatched"])
}

func TestPollDueRetriesPublishes(t *testing.T) {
	store := repository.NewMemoryStore()
	c := seedRunning(t, store, model.DefaultRetryConfig(), 3, 1)

	batch, err := store.ClaimBatch(c.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, batch)
	due := time.Now().Add(-time.Second)
	require.NoError(t, store.MarkOutcome(batch.RowIDs[0], model.RowRetryScheduled, "", model.CauseBusy, 1, &due))

	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	o := newOrchestrator(store, &recordQueue{}, bus)
	o.PollDueRetries(ctx)

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindRetryDue, ev.Kind)
		assert.Equal(t, c.ID, ev.CampaignID)
	case <-time.After(time.Second):
		t.Fatal("expected retry-due event")
	}
}

// Full campaign lifecycle: 10 contacts, max concurrency 3, up to 2 retries.
// Two contacts hit a connect error and fail outright, three answer on the
// first dial, five are busy twice and answer on the third dial. The campaign
// converges to 8 completed and 2 failed with the expected dial counts.
func TestCampaignConvergesThroughRetries(t *testing.T) {
	store := repository.NewMemoryStore()

	cfg := model.RetryConfig{
		Enabled:           true,
		MaxRetries:        2,
		RetryDelaySeconds: 0, // due immediately, the test drives cycles itself
		RetryOnBusy:       true,
		RetryOnNoAnswer:   true,
		RetryOnVoicemail:  true,
	}
	c := seedRunning(t, store, cfg, 3, 10)

	placer := dialer.NewScriptedPlacer()
	busy := dialer.Outcome{Cause: model.CauseBusy}
	answered := dialer.Outcome{Disposition: model.DispositionEndCallTool}
	failed := dialer.Outcome{Disposition: model.DispositionConnectError}

	placer.Script("+1000", failed)
	placer.Script("+1001", failed)
	placer.Script("+1002", answered)
	placer.Script("+1003", answered)
	placer.Script("+1004", answered)
	for i := 5; i <= 9; i++ {
		placer.Script(fmt.Sprintf("+1%03d", i), busy, busy, answered)
	}

	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	d := &dispatcher.Dispatcher{
		Campaigns:  store,
		Rows:       store,
		Slots:      limiter.NewLocalLimiter(),
		Rate:       limiter.NewDialRate(),
		Placer:     placer,
		Bus:        bus,
		PermitWait: time.Second,
	}
	q := &syncQueue{handler: func(ctx context.Context, task queue.Task) error {
		return d.Dispatch(ctx, task.Batch)
	}}
	o := newOrchestrator(store, q, bus)

	o.ScheduleNext(ctx, c.ID)

	deadline := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-ch:
			if ev.Kind == events.KindCampaignCompleted {
				done = true
				break
			}
			o.HandleEvent(ctx, ev)
		case <-deadline:
			t.Fatal("campaign did not converge")
		}
	}

	final, err := store.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, final.Status)
	assert.Equal(t, 8, final.ProcessedRows)
	assert.Equal(t, 2, final.FailedRows)

	counts, err := store.CountsByStatus(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, counts["completed"])
	assert.Equal(t, 2, counts["failed"])
	assert.Equal(t, 0, counts["pending"])
	assert.Equal(t, 0, counts["retry_scheduled"])

	// Dial counts: one each for the straight outcomes, three for the busy
	// contacts.
	for i := 0; i <= 4; i++ {
		assert.Equal(t, 1, placer.Attempts[fmt.Sprintf("+1%03d", i)])
	}
	for i := 5; i <= 9; i++ {
		assert.Equal(t, 3, placer.Attempts[fmt.Sprintf("+1%03d", i)])
	}
}
