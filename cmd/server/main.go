package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/analytics"
	"github.com/ignite/outreach-engine/internal/tracking"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	bootstrap.ConfigureLogging(cfg.Logging)

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		logger.Error("pre-flight check failed", "error", err)
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

	opts := api.Options{
		WebhookSecret:  cfg.Webhook.Secret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        app.Metrics,
		DB:             app.DB,
		Redis:          app.Redis,
	}

	// Async tracking hands pixel and click hits to SQS; cmd/worker applies them.
	var publisher *tracking.Publisher
	if cfg.Tracking.Async && cfg.SQS.TrackingQueueURL != "" {
		sqsClient, err := bootstrap.NewSQSClient(ctx, cfg.SQS.Region)
		if err != nil {
			logger.Error("failed to build SQS client", "error", err)
			os.Exit(1)
		}
		publisher = tracking.NewPublisher(sqsClient, cfg.SQS.TrackingQueueURL)
		opts.Tracking = publisher
		logger.Info("async tracking enabled", "queue", cfg.SQS.TrackingQueueURL)
	}

	var archiver *analytics.Archiver
	if cfg.Analytics.S3Bucket != "" {
		archiver, err = analytics.NewS3Archiver(ctx, cfg.Analytics.S3Bucket, cfg.Analytics.S3Region,
			app.Engine.Analytics(), cfg.Analytics.WindowDays, cfg.Analytics.ArchiveInterval())
		if err != nil {
			logger.Warn("analytics archive disabled", "error", err)
		} else {
			archiver.Start(ctx)
		}
	}

	if cfg.Sequencer.AutoStart {
		if err := app.Engine.Start(ctx); err != nil {
			logger.Error("failed to start engine", "error", err)
			os.Exit(1)
		}
	}

	server := api.NewServer(app.Engine, opts)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", addr, "provider", cfg.Provider, "classifier", cfg.Classifier.Type)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	app.Engine.Stop()
	if archiver != nil {
		archiver.Stop()
	}
	if publisher != nil {
		publisher.Close()
	}
	cancel()
	logger.Info("server stopped")
}
