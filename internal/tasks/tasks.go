// Package tasks holds the background task entry points consumed from the
// task queue: contact-source sync and batch processing.
package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/dispatcher"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
	"github.com/callforge/dialer-backend/internal/source"
)

type Handler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Rows       repository.RowRepositoryInterface
	Readers    map[string]source.Reader
	Dispatcher *dispatcher.Dispatcher
	Bus        events.EventBus
}

// Handle routes one queued task. Matches queue.Handler.
func (h *Handler) Handle(ctx context.Context, task queue.Task) error {
	switch task.Name {
	case queue.TaskSyncCampaign:
		return h.SyncCampaign(ctx, task.CampaignID)
	case queue.TaskProcessBatch:
		return h.ProcessBatch(ctx, task.CampaignID, task.Batch)
	}
	log.Error().Str("task", task.Name).Msg("unknown task, dropping")
	return nil
}

// SyncCampaign materializes campaign rows from the configured contact
// source and publishes sync-completed. Idempotent: rows are keyed by the
// source's natural key, so a re-run never duplicates contacts. A source
// failure records the error and fails the campaign; zero contacts
// completes it immediately.
func (h *Handler) SyncCampaign(ctx context.Context, campaignID int) error {
	campaign, err := h.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}

	reader, ok := h.Readers[campaign.SourceType]
	if !ok {
		err := fmt.Errorf("no reader for source type %q", campaign.SourceType)
		h.recordSyncFailure(campaign, err)
		return nil // misconfiguration, retrying the task cannot help
	}

	contacts, err := reader.ReadRows(ctx, campaign.SourceLocator)
	if err != nil {
		h.recordSyncFailure(campaign, err)
		return nil
	}

	rows := make([]*model.CampaignRow, 0, len(contacts))
	for _, contact := range contacts {
		rows = append(rows, &model.CampaignRow{
			CampaignID:     campaignID,
			SourceKey:      contact.Key,
			ContactPayload: contact.Payload,
			Status:         model.RowPending,
		})
	}
	inserted, err := h.Rows.BulkInsert(rows)
	if err != nil {
		return err
	}

	if len(contacts) == 0 {
		if err := h.Campaigns.RecordSyncResult(campaignID, 0, model.CampaignCompleted, ""); err != nil {
			return err
		}
		log.Info().Int("campaign_id", campaignID).Msg("campaign completed with no contacts to process")
		return nil
	}

	if err := h.Campaigns.RecordSyncResult(campaignID, len(contacts), model.CampaignRunning, ""); err != nil {
		return err
	}
	if err := h.Campaigns.MarkStarted(campaignID); err != nil {
		return err
	}

	log.Info().
		Int("campaign_id", campaignID).
		Int("contacts", len(contacts)).
		Int("new_rows", inserted).
		Msg("campaign source sync completed")

	return h.Bus.Publish(ctx, events.Event{
		Kind:       events.KindSyncCompleted,
		CampaignID: campaignID,
		TotalRows:  len(contacts),
	})
}

func (h *Handler) recordSyncFailure(campaign *model.Campaign, cause error) {
	log.Error().Err(cause).Int("campaign_id", campaign.ID).Msg("campaign source sync failed")
	if err := h.Campaigns.RecordSyncResult(campaign.ID, campaign.TotalRows, model.CampaignFailed, cause.Error()); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to record sync failure")
	}
}

// ProcessBatch runs the dispatcher for a claimed batch. Pure execution
// context: the scheduling decision already happened when the batch was
// claimed. A dispatch error is returned for the queue's retry budget; if
// the budget exhausts, the stale sweep reclaims the rows.
func (h *Handler) ProcessBatch(ctx context.Context, campaignID int, batch *model.Batch) error {
	if batch == nil || batch.Size() == 0 {
		log.Warn().Int("campaign_id", campaignID).Msg("batch task without rows, dropping")
		return nil
	}
	return h.Dispatcher.Dispatch(ctx, batch)
}
