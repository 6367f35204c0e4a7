// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/config"
	"github.com/callforge/dialer-backend/internal/db"
	"github.com/callforge/dialer-backend/internal/dialer"
	"github.com/callforge/dialer-backend/internal/dispatcher"
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/limiter"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
	"github.com/callforge/dialer-backend/internal/source"
	"github.com/callforge/dialer-backend/internal/tasks"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()
	if cfg.RedisURL == "" || cfg.AMQPURL == "" {
		log.Fatal().Msg("REDIS_URL and AMQP_URL are required for the standalone worker")
	}

	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	rowRepo := &repository.RowRepository{DB: db.DB}

	bus, err := events.NewRedisBus(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event bus")
	}
	taskQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect task queue")
	}
	slots, err := limiter.NewRedisLimiter(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect slot limiter")
	}

	var placer dialer.CallPlacer
	if cfg.DialerURL != "" {
		placer = dialer.NewHTTPPlacer(cfg.DialerURL)
	} else {
		log.Warn().Msg("DIALER_URL not set, using scripted placer")
		placer = dialer.NewScriptedPlacer()
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
		Campaigns: campaignRepo,
		Rows:      rowRepo,
		Readers:   source.DefaultReaders(s3cfg),
		Dispatcher: &dispatcher.Dispatcher{
			Campaigns:  campaignRepo,
			Rows:       rowRepo,
			Slots:      slots,
			Rate:       limiter.NewDialRate(),
			Placer:     placer,
			Bus:        bus,
			PermitWait: cfg.PermitWaitTimeout,
		},
		Bus: bus,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("worker running, waiting for tasks")
	if err := taskQueue.Consume(ctx, handler.Handle); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker shutdown complete")
}
