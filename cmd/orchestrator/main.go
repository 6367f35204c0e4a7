// cmd/orchestrator/main.go
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
	"github.com/callforge/dialer-backend/internal/events"
	"github.com/callforge/dialer-backend/internal/orchestrator"
	"github.com/callforge/dialer-backend/internal/queue"
	"github.com/callforge/dialer-backend/internal/repository"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()
	if cfg.RedisURL == "" || cfg.AMQPURL == "" {
		log.Fatal().Msg("REDIS_URL and AMQP_URL are required for the standalone orchestrator")
	}

	db.Init()

	bus, err := events.NewRedisBus(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event bus")
	}
	taskQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect task queue")
	}

	orch := &orchestrator.Orchestrator{
		Campaigns:            &repository.CampaignRepository{DB: db.DB},
		Rows:                 &repository.RowRepository{DB: db.DB},
		Tasks:                taskQueue,
		Bus:                  bus,
		BatchSize:            cfg.BatchSize,
		SweepInterval:        cfg.SweepInterval,
		StaleBatchTimeout:    cfg.StaleBatchTimeout,
		DispatchedRowTimeout: cfg.DispatchedRowTimeout,
		RetryPollInterval:    cfg.RetryPollInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("orchestrator stopped")
	}
	log.Info().Msg("orchestrator shutdown complete")
}
