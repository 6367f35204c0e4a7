// Package dispatcher turns a claimed batch into call placements under the
// organization and campaign concurrency ceilings, and records each row's
// outcome.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/callforge/dialer-backend/internal/dialer"
	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/limiter"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/repository"
)

const defaultOrgLimit = 10

type Dispatcher struct {
	Campaigns repository.CampaignRepositoryInterface
	Rows      repository.RowRepositoryInterface
	Slots     limiter.SlotLimiter
	Rate      *limiter.DialRate
	Placer    dialer.CallPlacer
	Bus       events.EventBus

	// PermitWait is the window a row waits for a concurrency permit before
	// it is deferred to the next cycle.
	PermitWait time.Duration
}

// Dispatch processes one claimed batch. The rows arrive already marked
// dispatched by the claim transaction. When the last row resolves the
// batch-completed event is published, exactly once; retries within this
// batch surface only through the global retry_scheduled path on the next
// cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *model.Batch) error {
	campaign, err := d.Campaigns.GetByID(batch.CampaignID)
	if err != nil {
		return err
	}

	org, err := d.Campaigns.GetOrganization(campaign.OrganizationID)
	if err != nil {
		return err
	}
	orgLimit := defaultOrgLimit
	dialsPerSecond := 0
	if org != nil {
		orgLimit = org.ConcurrentCallLimit
		dialsPerSecond = org.DialsPerSecond
	}
	campaignLimit := campaign.ConcurrencyCap(orgLimit)

	rows, err := d.Rows.RowsByIDs(batch.RowIDs)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	processed, failed := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(campaignLimit)

	for _, row := range rows {
		if row.Status != model.RowDispatched {
			continue // reclaimed or resolved elsewhere
		}
		row := row
		g.Go(func() error {
			status, err := d.dispatchRow(gctx, campaign, row, orgLimit, campaignLimit, dialsPerSecond)
			if err != nil {
				log.Error().Err(err).
					Int("campaign_id", campaign.ID).
					Int("row_id", row.ID).
					Msg("row dispatch failed")
				return nil // one bad row never aborts the batch
			}
			mu.Lock()
			switch status {
			case model.RowCompleted:
				processed++
			case model.RowFailed:
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if err := d.Campaigns.AddBatchResult(campaign.ID, processed, failed); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to record batch result")
	}

	ev := events.Event{
		Kind:       events.KindBatchCompleted,
		CampaignID: campaign.ID,
		BatchID:    batch.ID,
		Processed:  processed,
		Failed:     failed,
	}
	if err := d.Bus.Publish(ctx, ev); err != nil {
		return err
	}

	log.Info().
		Int("campaign_id", campaign.ID).
		Str("batch_id", batch.ID).
		Int("processed", processed).
		Int("failed", failed).
		Msg("batch completed")
	return nil
}

// dispatchRow places one call under both permits and applies the resulting
// state transition. Returns the row's new status.
func (d *Dispatcher) dispatchRow(ctx context.Context, campaign *model.Campaign, row *model.CampaignRow,
	orgLimit, campaignLimit, dialsPerSecond int) (model.RowStatus, error) {

	if err := d.Rate.Wait(ctx, campaign.ID, dialsPerSecond); err != nil {
		return d.deferRow(row)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, d.PermitWait)
	slot, err := d.Slots.Acquire(acquireCtx, campaign.OrganizationID, orgLimit, campaign.ID, campaignLimit)
	cancel()
	if err != nil {
		var timeout *appErrors.ErrSlotTimeout
		if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
			// No slot freed within the window: defer, do not fail. The next
			// scheduling cycle picks the row up again.
			return d.deferRow(row)
		}
		return "", err
	}

	outcome, callErr := d.Placer.PlaceCall(ctx, row.ContactPayload, campaign.WorkflowID)
	if releaseErr := d.Slots.Release(ctx, slot); releaseErr != nil {
		log.Error().Err(releaseErr).
			Int("organization_id", campaign.OrganizationID).
			Msg("failed to release call slot")
	}
	if callErr != nil {
		// The outcome was never observed. Leave the row dispatched; the
		// liveness timeout reclaims it without consuming an attempt.
		return model.RowDispatched, callErr
	}

	decision := Evaluate(campaign.RetryConfig, row.AttemptCount, outcome, time.Now())
	err = d.Rows.MarkOutcome(row.ID, decision.Status, decision.Disposition,
		decision.Reason, decision.AttemptCount, decision.NextRetryAt)
	if err != nil {
		return "", err
	}

	log.Debug().
		Int("campaign_id", campaign.ID).
		Int("row_id", row.ID).
		Str("status", string(decision.Status)).
		Str("disposition", string(decision.Disposition)).
		Int("attempt", decision.AttemptCount).
		Msg("row resolved")
	return decision.Status, nil
}

func (d *Dispatcher) deferRow(row *model.CampaignRow) (model.RowStatus, error) {
	if err := d.Rows.Defer(row.ID); err != nil {
		return "", err
	}
	log.Debug().Int("row_id", row.ID).Msg("row deferred, no permit available")
	return model.RowRetryScheduled, nil
}
