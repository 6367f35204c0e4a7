// internal/service/runner_service.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
)

// RunnerService is the Control API core: campaign lifecycle commands and
// status aggregation. Invalid transitions are rejected here, synchronously,
// and never reach the orchestration loop.
type RunnerService struct {
	Campaigns repository.CampaignRepositoryInterface
	Rows      repository.RowRepositoryInterface
	Tasks     queue.TaskQueue
	Bus       events.EventBus
}

type CreateCampaignParams struct {
	OrganizationID int                `json:"organization_id"`
	Name           string             `json:"name"`
	WorkflowID     int                `json:"workflow_id"`
	SourceType     string             `json:"source_type"`
	SourceLocator  string             `json:"source_locator"`
	MaxConcurrency *int               `json:"max_concurrency,omitempty"`
	RetryConfig    *model.RetryConfig `json:"retry_config,omitempty"`
}

func (s *RunnerService) CreateCampaign(ctx context.Context, params CreateCampaignParams) (*model.Campaign, error) {
	retryConfig := model.DefaultRetryConfig()
	if params.RetryConfig != nil {
		retryConfig = *params.RetryConfig
	}
	c := &model.Campaign{
		OrganizationID: params.OrganizationID,
		Name:           params.Name,
		WorkflowID:     params.WorkflowID,
		SourceType:     params.SourceType,
		SourceLocator:  params.SourceLocator,
		Status:         model.CampaignDraft,
		MaxConcurrency: params.MaxConcurrency,
		RetryConfig:    retryConfig,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}
	log.Info().Int("campaign_id", c.ID).Str("name", c.Name).Msg("campaign created")
	return c, nil
}

// RunCampaign starts execution. Valid from draft (and failed, for the
// operator restart path) via a fresh source sync; running a paused
// campaign is the resume path.
func (s *RunnerService) RunCampaign(ctx context.Context, campaignID int) (*model.Campaign, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status == model.CampaignPaused {
		return s.ResumeCampaign(ctx, campaignID)
	}

	if !campaign.Status.CanTransitionTo(model.CampaignSyncing) {
		return nil, appErrors.NewInvalidTransition(campaignID, string(campaign.Status), string(model.CampaignSyncing))
	}
	if err := s.Campaigns.UpdateStatus(campaignID, model.CampaignSyncing); err != nil {
		return nil, err
	}

	task := queue.Task{Name: queue.TaskSyncCampaign, CampaignID: campaignID}
	if err := s.Tasks.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	log.Info().Int("campaign_id", campaignID).Msg("campaign run requested, sync enqueued")
	return s.Campaigns.GetByID(campaignID)
}

// PauseCampaign stops new batch claims immediately. An in-flight batch
// drains on its own; rows not yet dispatched stay untouched.
func (s *RunnerService) PauseCampaign(ctx context.Context, campaignID int) (*model.Campaign, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.CanTransitionTo(model.CampaignPaused) {
		return nil, appErrors.NewInvalidTransition(campaignID, string(campaign.Status), string(model.CampaignPaused))
	}
	if err := s.Campaigns.UpdateStatus(campaignID, model.CampaignPaused); err != nil {
		return nil, err
	}
	log.Info().Int("campaign_id", campaignID).Msg("campaign paused")
	return s.Campaigns.GetByID(campaignID)
}

// ResumeCampaign re-enters the event-driven path with a synthetic
// batch-completed trigger so the orchestrator re-evaluates immediately.
func (s *RunnerService) ResumeCampaign(ctx context.Context, campaignID int) (*model.Campaign, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPaused {
		return nil, appErrors.NewInvalidTransition(campaignID, string(campaign.Status), string(model.CampaignRunning))
	}
	if err := s.Campaigns.UpdateStatus(campaignID, model.CampaignRunning); err != nil {
		return nil, err
	}

	ev := events.Event{Kind: events.KindBatchCompleted, CampaignID: campaignID}
	if err := s.Bus.Publish(ctx, ev); err != nil {
		return nil, err
	}
	log.Info().Int("campaign_id", campaignID).Msg("campaign resumed")
	return s.Campaigns.GetByID(campaignID)
}

type CampaignStatusResult struct {
	CampaignID         int                  `json:"campaign_id"`
	Status             model.CampaignStatus `json:"status"`
	TotalRows          int                  `json:"total_rows"`
	ProcessedRows      int                  `json:"processed_rows"`
	FailedRows         int                  `json:"failed_rows"`
	RowCounts          map[string]int       `json:"row_counts"`
	ProgressPercentage float64              `json:"progress_percentage"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
}

func (s *RunnerService) GetStatus(ctx context.Context, campaignID int) (*CampaignStatusResult, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.Rows.CountsByStatus(campaignID)
	if err != nil {
		return nil, err
	}

	result := &CampaignStatusResult{
		CampaignID:    campaignID,
		Status:        campaign.Status,
		TotalRows:     campaign.TotalRows,
		ProcessedRows: campaign.ProcessedRows,
		FailedRows:    campaign.FailedRows,
		RowCounts:     counts,
		StartedAt:     campaign.StartedAt,
		CompletedAt:   campaign.CompletedAt,
	}
	if campaign.TotalRows > 0 {
		resolved := counts[string(model.RowCompleted)] + counts[string(model.RowFailed)]
		result.ProgressPercentage = float64(resolved) / float64(campaign.TotalRows) * 100
	}
	return result, nil
}
