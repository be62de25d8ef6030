// Package bootstrap turns a loaded config into a running engine: storage,
// locks, the email provider, the reply classifier and the optional AWS
// side channels. cmd/server and cmd/worker share it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/classifier"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/provider"
	"github.com/ignite/outreach-engine/internal/provider/resend"
	"github.com/ignite/outreach-engine/internal/provider/ses"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/repository/postgres"
	"github.com/ignite/outreach-engine/internal/service/delivery"
	"github.com/ignite/outreach-engine/internal/service/reply"
	"github.com/ignite/outreach-engine/internal/templates"
)

// App is everything a binary needs after startup.
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	DB      *sql.DB
	Redis   *redis.Client
}

// ConfigureLogging applies the logging section to the default logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// Build wires the engine. The returned App owns the DB and Redis handles;
// call Close on shutdown.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	if cfg.Database.URL != "" {
		db, err := OpenDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage (state is lost on restart)")
	}

	if cfg.Redis.URL != "" {
		app.Redis = openRedis(ctx, cfg.Redis.URL)
	}

	sender, err := NewSender(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	cls, err := NewClassifier(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	deps := engine.Deps{
		Sender:     sender,
		Classifier: cls,
		Locker:     distlock.NewLocker(app.Redis, app.DB),
		Metrics:    app.Metrics,
	}
	if app.DB != nil {
		deps.Campaigns = postgres.NewCampaignRepo(app.DB)
		deps.Events = postgres.NewEventRepo(app.DB)
		deps.Messages = postgres.NewMessageRepo(app.DB)
		deps.Blocklist = postgres.NewBlocklistRepo(app.DB)
		deps.Sequences = postgres.NewSequenceRepo(app.DB)
	} else {
		deps.Campaigns = memory.NewCampaignRepo()
		deps.Events = memory.NewEventRepo()
		deps.Messages = memory.NewMessageRepo()
		deps.Blocklist = memory.NewBlocklistRepo()
		deps.Sequences = memory.NewSequenceRepo()
	}

	if cfg.Booking.URL == "" {
		logger.Warn("BOOKING_URL not set, send_calendar_link replies will be flagged for review")
	}
	if cfg.Tracking.SigningKey == config.DevSigningKey {
		logger.Warn("TRACKING_SIGNING_KEY not set, tracking links are signed with the development key")
	}

	app.Engine = engine.New(deps, engine.Config{
		TrackingBaseURL:    cfg.Tracking.BaseURL,
		TrackingSigningKey: cfg.Tracking.SigningKey,
		SchedulingDomain:   cfg.Booking.SchedulingDomain(),
		Booking: templates.Booking{
			URL:             cfg.Booking.URL,
			SubjectTemplate: cfg.Booking.SubjectTemplate,
			BodyTemplate:    cfg.Booking.BodyTemplate,
		},
		Identity: delivery.Identity{
			FromName:  cfg.Sender.FromName,
			FromEmail: cfg.Sender.FromEmail,
			ReplyTo:   cfg.Sender.ReplyTo,
		},
		SendTimeout:   cfg.Sequencer.SendTimeout(),
		RetryDelay:    cfg.Sequencer.RetryDelay(),
		SweepInterval: cfg.Sequencer.Interval(),
		Throttle:      cfg.Sequencer.Throttle(),
	})
	return app, nil
}

// Close releases the DB and Redis handles.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// OpenDB opens and pings PostgreSQL with statement and connect timeouts
// appended to the DSN.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "connect_timeout") {
		dsn += sep + "connect_timeout=5"
		sep = "&"
	}
	dsn += sep + "options=-c%20statement_timeout%3D15000%20-c%20idle_in_transaction_session_timeout%3D15000"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected", "max_open_conns", cfg.MaxOpenConns)
	return db, nil
}

// openRedis returns nil when Redis is unreachable; locks then fall back to
// PostgreSQL advisory locks.
func openRedis(ctx context.Context, url string) *redis.Client {
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: url})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to PG advisory locks", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected, distributed locking enabled")
	return client
}

// NewSender selects the outbound provider.
func NewSender(ctx context.Context, cfg *config.Config) (delivery.Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ses":
		s, err := ses.NewFromConfig(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("ses provider: %w", err)
		}
		logger.Info("email provider selected", "provider", "ses", "region", cfg.SES.Region)
		return s, nil
	case "resend":
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend provider: RESEND_API_KEY is required")
		}
		logger.Info("email provider selected", "provider", "resend")
		return resend.NewClient(cfg.Resend.BaseURL, cfg.Resend.APIKey, &http.Client{Timeout: 30 * time.Second}), nil
	case "log", "":
		logger.Warn("email provider is log, nothing will be delivered")
		return provider.NewLogSender(), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}

// NewClassifier selects the reply classifier.
func NewClassifier(ctx context.Context, cfg *config.Config) (reply.Classifier, error) {
	switch strings.ToLower(cfg.Classifier.Type) {
	case "http", "":
		if cfg.Classifier.URL == "" {
			return nil, fmt.Errorf("http classifier: CLASSIFIER_URL is required")
		}
		return classifier.NewHTTPClient(cfg.Classifier.URL, cfg.Classifier.APIKey, cfg.Classifier.Timeout(), cfg.Classifier.MaxRetries), nil
	case "bedrock":
		b, err := classifier.NewBedrockFromConfig(ctx, cfg.Bedrock.Region, cfg.Bedrock.ModelID)
		if err != nil {
			return nil, fmt.Errorf("bedrock classifier: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown classifier type %q", cfg.Classifier.Type)
}

// NewSQSClient builds an SQS client on the default credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SQS: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}
