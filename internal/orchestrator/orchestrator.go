// Package orchestrator is the coordination loop: it listens to campaign
// events and decides when the next batch is claimed, sweeps for stalled
// campaigns, and converges every campaign to a terminal state.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
)

type Orchestrator struct {
	Campaigns repository.CampaignRepositoryInterface
	Rows      repository.RowRepositoryInterface
	Tasks     queue.TaskQueue
	Bus       events.EventBus

	BatchSize            int
	SweepInterval        time.Duration
	StaleBatchTimeout    time.Duration
	DispatchedRowTimeout time.Duration
	RetryPollInterval    time.Duration
}

// Run consumes campaign events and drives the periodic sweep until the
// context closes. Event delivery is at-least-once: every reaction
// re-checks store state, so duplicates are no-ops.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch, err := o.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", o.SweepInterval), func() { o.Sweep(ctx) })
	if err != nil {
		return err
	}
	_, err = c.AddFunc(fmt.Sprintf("@every %s", o.RetryPollInterval), func() { o.PollDueRetries(ctx) })
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	log.Info().
		Dur("sweep_interval", o.SweepInterval).
		Dur("stale_batch_timeout", o.StaleBatchTimeout).
		Msg("campaign orchestrator started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("campaign orchestrator stopping")
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			o.HandleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) HandleEvent(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindSyncCompleted, events.KindBatchCompleted, events.KindRetryDue:
		log.Debug().
			Str("kind", string(ev.Kind)).
			Int("campaign_id", ev.CampaignID).
			Msg("received campaign event")
		o.ScheduleNext(ctx, ev.CampaignID)
	case events.KindCampaignCompleted:
		// informational
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("unknown campaign event")
	}
}

// ScheduleNext claims the next batch for the campaign if one is due. The
// claim is transactionally exclusive, so concurrent triggers for the same
// campaign cannot both take rows; re-evaluating a campaign with nothing
// eligible is a no-op. When no open rows remain the campaign completes.
func (o *Orchestrator) ScheduleNext(ctx context.Context, campaignID int) {
	campaign, err := o.Campaigns.GetByID(campaignID)
	if err != nil {
		// Fail closed: never schedule on stale reads.
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("campaign lookup failed, skipping scheduling")
		return
	}
	if campaign.Status != model.CampaignRunning {
		log.Debug().
			Int("campaign_id", campaignID).
			Str("status", string(campaign.Status)).
			Msg("campaign not running, nothing to schedule")
		return
	}

	batch, err := o.Rows.ClaimBatch(campaignID, o.BatchSize)
	if err != nil {
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("batch claim failed")
		return
	}
	if batch != nil {
		task := queue.Task{Name: queue.TaskProcessBatch, CampaignID: campaignID, Batch: batch}
		if err := o.Tasks.Enqueue(ctx, task); err != nil {
			log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to enqueue batch task")
			return
		}
		log.Info().
			Int("campaign_id", campaignID).
			Str("batch_id", batch.ID).
			Int("rows", batch.Size()).
			Msg("scheduled next batch")
		return
	}

	o.maybeComplete(ctx, campaign)
}

// maybeComplete finishes a campaign once no row is pending, dispatched, or
// waiting on a retry.
func (o *Orchestrator) maybeComplete(ctx context.Context, campaign *model.Campaign) {
	open, err := o.Rows.OpenCount(campaign.ID)
	if err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("open row count failed")
		return
	}
	if open > 0 {
		log.Debug().
			Int("campaign_id", campaign.ID).
			Int("open_rows", open).
			Msg("campaign waiting on retries or in-flight rows")
		return
	}

	if err := o.Campaigns.MarkCompleted(campaign.ID); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to complete campaign")
		return
	}
	log.Info().Int("campaign_id", campaign.ID).Msg("campaign completed")

	ev := events.Event{
		Kind:       events.KindCampaignCompleted,
		CampaignID: campaign.ID,
		TotalRows:  campaign.TotalRows,
		Processed:  campaign.ProcessedRows,
		Failed:     campaign.FailedRows,
	}
	if campaign.StartedAt != nil {
		ev.DurationSeconds = time.Since(*campaign.StartedAt).Seconds()
	}
	if err := o.Bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to publish completion event")
	}
}

// Sweep recovers stalled campaigns: rows stuck in dispatched past the
// liveness timeout are folded back into the eligible pool, and running
// campaigns whose last batch looks abandoned get re-evaluated. Scheduling
// is idempotent, so re-triggering here is safe even when an event arrives
// concurrently.
func (o *Orchestrator) Sweep(ctx context.Context) {
	reclaimed, err := o.Rows.ReclaimStale(time.Now().Add(-o.DispatchedRowTimeout))
	if err != nil {
		log.Error().Err(err).Msg("stale row reclaim failed")
		return
	}
	if reclaimed > 0 {
		log.Warn().Int("rows", reclaimed).Msg("reclaimed stale dispatched rows")
	}

	campaigns, err := o.Campaigns.RunningCampaigns()
	if err != nil {
		log.Error().Err(err).Msg("running campaign scan failed")
		return
	}

	cutoff := time.Now().Add(-o.StaleBatchTimeout)
	for _, campaign := range campaigns {
		if campaign.LastBatchScheduledAt != nil && campaign.LastBatchScheduledAt.After(cutoff) {
			continue // recent activity, leave it to the event path
		}

		eligible, err := o.Rows.EligibleCount(campaign.ID)
		if err != nil {
			log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("eligible row count failed")
			continue
		}
		if eligible > 0 {
			log.Info().Int("campaign_id", campaign.ID).Msg("stale campaign has eligible rows, re-triggering")
			o.ScheduleNext(ctx, campaign.ID)
			continue
		}
		o.maybeComplete(ctx, campaign)
	}
}

// PollDueRetries publishes retry-due for campaigns whose scheduled retries
// have come due. This is the timer half of the retry path; the orchestrator
// consumes its own events so single and multi process deployments behave
// the same.
func (o *Orchestrator) PollDueRetries(ctx context.Context) {
	ids, err := o.Rows.DueRetryCampaignIDs()
	if err != nil {
		log.Error().Err(err).Msg("due retry scan failed")
		return
	}
	for _, id := range ids {
		ev := events.Event{Kind: events.KindRetryDue, CampaignID: id}
		if err := o.Bus.Publish(ctx, ev); err != nil {
			log.Error().Err(err).Int("campaign_id", id).Msg("failed to publish retry-due")
		}
	}
}
