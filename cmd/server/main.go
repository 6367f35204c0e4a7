// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/config"
	"github.com/callforge/dialer-backend/internal/controller"
	"github.com/callforge/dialer-backend/internal/db"
	"github.com/callforge/dialer-backend/internal/dialer"
	"github.com/callforge/dialer-backend/internal/dispatcher"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/limiter"
	"github.com/callforge/dialer-backend/internal/orchestrator"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
	"github.com/callforge/dialer-backend/internal/service"
	"github.com/callforge/dialer-backend/internal/source"
	"github.com/callforge/dialer-backend/internal/tasks"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	rowRepo := &repository.RowRepository{DB: db.DB}

	var bus events.EventBus
	if cfg.RedisURL != "" {
		redisBus, err := events.NewRedisBus(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event bus")
		}
		bus = redisBus
	} else {
		bus = events.NewMemoryBus()
	}

	var taskQueue queue.TaskQueue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect task queue")
		}
		taskQueue = amqpQueue
	} else {
		taskQueue = queue.NewMemoryQueue()
	}

	runner := &service.RunnerService{
		Campaigns: campaignRepo,
		Rows:      rowRepo,
		Tasks:     taskQueue,
		Bus:       bus,
	}

	// Without external AMQP workers and a separate orchestrator process,
	// run both in process: the in-memory bus and queue give the same
	// at-least-once contract on a single node.
	if cfg.AMQPURL == "" {
		ctx := context.Background()
		startSingleNode(ctx, cfg, campaignRepo, rowRepo, taskQueue, bus)
	}

	campaignController := &controller.CampaignController{Runner: runner}

	r := chi.NewRouter()
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/run", campaignController.RunCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Get("/campaigns/{id}/status", campaignController.GetCampaignStatus)

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func startSingleNode(ctx context.Context, cfg config.Config,
	campaignRepo *repository.CampaignRepository, rowRepo *repository.RowRepository,
	taskQueue queue.TaskQueue, bus events.EventBus) {

	var slots limiter.SlotLimiter
	if cfg.RedisURL != "" {
		redisLimiter, err := limiter.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect slot limiter")
		}
		slots = redisLimiter
	} else {
		slots = limiter.NewLocalLimiter()
	}

	var placer dialer.CallPlacer
	if cfg.DialerURL != "" {
		placer = dialer.NewHTTPPlacer(cfg.DialerURL)
	} else {
		log.Warn().Msg("DIALER_URL not set, using scripted placer")
		placer = dialer.NewScriptedPlacer()
	}

	disp := &dispatcher.Dispatcher{
		Campaigns:  campaignRepo,
		Rows:       rowRepo,
		Slots:      slots,
		Rate:       limiter.NewDialRate(),
		Placer:     placer,
		Bus:        bus,
		PermitWait: cfg.PermitWaitTimeout,
	}

	var s3cfg *source.S3Config
	if cfg.S3Bucket != "" {
		s3cfg = &source.S3Config{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Endpoint:  cfg.S3Endpoint,
		}
	}

	handler := &tasks.Handler{
		Campaigns:  campaignRepo,
		Rows:       rowRepo,
		Readers:    source.DefaultReaders(s3cfg),
		Dispatcher: disp,
		Bus:        bus,
	}
	go func() {
		if err := taskQueue.Consume(ctx, handler.Handle); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("task consumer stopped")
		}
	}()

	orch := &orchestrator.Orchestrator{
		Campaigns:            campaignRepo,
		Rows:                 rowRepo,
		Tasks:                taskQueue,
		Bus:                  bus,
		BatchSize:            cfg.BatchSize,
		SweepInterval:        cfg.SweepInterval,
		StaleBatchTimeout:    cfg.StaleBatchTimeout,
		DispatchedRowTimeout: cfg.DispatchedRowTimeout,
		RetryPollInterval:    cfg.RetryPollInterval,
	}
	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("orchestrator stopped")
		}
	}()
}
