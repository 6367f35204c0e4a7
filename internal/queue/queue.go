package queue

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/model"
)

const (
	TaskSyncCampaign = "sync_campaign"
	TaskProcessBatch = "process_campaign_batch"
)

// Task is one unit of background work. ProcessBatch tasks carry the batch
// claimed by the orchestrator; the claim already marked the rows
// dispatched.
type Task struct {
	Name       string       `json:"name"`
	CampaignID int          `json:"campaign_id"`
	Batch      *model.Batch `json:"batch,omitempty"`
}

// Handler processes one task. A returned error requeues the task, up to
// the queue's retry budget.
type Handler func(ctx context.Context, task Task) error

type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Consume(ctx context.Context, handler Handler) error
}

const memoryQueueDepth = 1024

// MemoryQueue runs tasks in process. Single-node mode: the server binary
// consumes its own queue.
type MemoryQueue struct {
	tasks chan Task
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(chan Task, memoryQueueDepth)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks, handling tasks until the context closes. Failed tasks are
// retried up to three times, then dropped; the stale sweep recovers
// whatever a dropped batch left behind.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q.tasks:
			q.process(ctx, task, handler)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, task Task, handler Handler) {
	const maxRetries = 3
	for attempt := 0; ; attempt++ {
		err := handler(ctx, task)
		if err == nil {
			return
		}
		if attempt >= maxRetries {
			log.Error().Err(err).
				Str("task", task.Name).
				Int("campaign_id", task.CampaignID).
				Msgf("task permanently failed after %d attempts", maxRetries)
			return
		}
		log.Warn().Err(err).
			Str("task", task.Name).
			Int("campaign_id", task.CampaignID).
			Int("attempt", attempt+1).
			Msg("task failed, retrying")
	}
}

var _ TaskQueue = (*MemoryQueue)(nil)
