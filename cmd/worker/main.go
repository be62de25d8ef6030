package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/tracking"
)

// The worker drains the async tracking queue into the engine. Run it when
// the server has TRACKING_ASYNC=true.
func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	bootstrap.ConfigureLogging(cfg.Logging)

	if cfg.SQS.TrackingQueueURL == "" {
		logger.Error("SQS_TRACKING_QUEUE_URL is required")
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required, the worker cannot share in-memory state with the server")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sqsClient, err := bootstrap.NewSQSClient(ctx, cfg.SQS.Region)
	if err != nil {
		logger.Error("failed to build SQS client", "error", err)
		os.Exit(1)
	}

	consumer := tracking.NewConsumer(sqsClient, cfg.SQS.TrackingQueueURL,
		tracking.NewApplier(app.Engine.Tracking(), app.Metrics))
	consumer.Start(ctx)
	logger.Info("tracking worker running", "queue", cfg.SQS.TrackingQueueURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	consumer.Stop()
	cancel()
	logger.Info("worker stopped")
}
