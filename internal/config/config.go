package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Provider   string           `yaml:"provider"` // "ses", "resend" or "log"
	SES        SESConfig        `yaml:"ses"`
	Resend     ResendConfig     `yaml:"resend"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Bedrock    BedrockConfig    `yaml:"bedrock"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Booking    BookingConfig    `yaml:"booking"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Sequencer  SequencerConfig  `yaml:"sequencer"`
	Sender     SenderConfig     `yaml:"sender"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	SQS        SQSConfig        `yaml:"sqs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory repositories (local dev only).
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the lock backend. Empty URL falls back to PG advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// ResendConfig holds the Resend-compatible HTTP API settings.
type ResendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ClassifierConfig selects and configures the reply classifier.
type ClassifierConfig struct {
	Type           string `yaml:"type"` // "http" or "bedrock"
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings for the bedrock classifier.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// TrackingConfig controls open/click instrumentation.
type TrackingConfig struct {
	BaseURL string `yaml:"base_url"`
	// SigningKey is the HMAC key for pixel, click and unsubscribe URLs.
	SigningKey string `yaml:"signing_key"`
	// Async publishes open/click hits to SQS instead of writing inline.
	Async bool `yaml:"async"`
}

// DevSigningKey is used when no tracking signing key is configured.
const DevSigningKey = "outreach-signing-key-dev"

// BookingConfig holds the scheduling link sent to interested leads.
type BookingConfig struct {
	URL             string `yaml:"url"`
	Domain          string `yaml:"domain"`
	SubjectTemplate string `yaml:"subject_template"`
	BodyTemplate    string `yaml:"body_template"`
}

// SchedulingDomain returns the configured domain, or the host of URL.
func (c BookingConfig) SchedulingDomain() string {
	if c.Domain != "" {
		return strings.ToLower(c.Domain)
	}
	u := strings.TrimPrefix(strings.TrimPrefix(c.URL, "https://"), "http://")
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}

// WebhookConfig holds the shared HMAC secret for provider webhooks.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// SequencerConfig controls the follow-up sweep.
type SequencerConfig struct {
	IntervalMinutes    int  `yaml:"interval_minutes"`
	ThrottleSeconds    int  `yaml:"throttle_seconds"`
	SendTimeoutSeconds int  `yaml:"send_timeout_seconds"`
	RetryDelayHours    int  `yaml:"retry_delay_hours"`
	AutoStart          bool `yaml:"autostart"`
}

// Interval returns the sweep interval as a duration
func (c SequencerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Throttle returns the minimum gap between sends within a sweep.
func (c SequencerConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// SendTimeout bounds a single provider call.
func (c SequencerConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// RetryDelay is how far out wait_and_retry schedules the next attempt.
func (c SequencerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayHours) * time.Hour
}

// SenderConfig holds the outbound identity.
type SenderConfig struct {
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
}

// AnalyticsConfig holds the funnel window and S3 archive settings.
type AnalyticsConfig struct {
	WindowDays     int    `yaml:"window_days"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	ArchiveMinutes int    `yaml:"archive_interval_minutes"`
}

// ArchiveInterval returns the snapshot interval as a duration
func (c AnalyticsConfig) ArchiveInterval() time.Duration {
	return time.Duration(c.ArchiveMinutes) * time.Minute
}

// SQSConfig holds the async tracking queue.
type SQSConfig struct {
	TrackingQueueURL string `yaml:"tracking_queue_url"`
	Region           string `yaml:"region"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Provider == "" {
		cfg.Provider = "log"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Resend.BaseURL == "" {
		cfg.Resend.BaseURL = "https://api.resend.com"
	}
	if cfg.Classifier.Type == "" {
		cfg.Classifier.Type = "http"
	}
	if cfg.Classifier.TimeoutSeconds == 0 {
		cfg.Classifier.TimeoutSeconds = 30
	}
	if cfg.Classifier.MaxRetries == 0 {
		cfg.Classifier.MaxRetries = 2
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Tracking.BaseURL = strings.TrimRight(cfg.Tracking.BaseURL, "/")
	if cfg.Tracking.SigningKey == "" {
		cfg.Tracking.SigningKey = DevSigningKey
	}
	if cfg.Booking.SubjectTemplate == "" {
		cfg.Booking.SubjectTemplate = "Re: {{ subject }}"
	}
	if cfg.Sequencer.IntervalMinutes == 0 {
		cfg.Sequencer.IntervalMinutes = 60
	}
	if cfg.Sequencer.ThrottleSeconds == 0 {
		cfg.Sequencer.ThrottleSeconds = 10
	}
	if cfg.Sequencer.SendTimeoutSeconds == 0 {
		cfg.Sequencer.SendTimeoutSeconds = 30
	}
	if cfg.Sequencer.RetryDelayHours == 0 {
		cfg.Sequencer.RetryDelayHours = 72
	}
	if cfg.Analytics.WindowDays == 0 {
		cfg.Analytics.WindowDays = 30
	}
	if cfg.Analytics.ArchiveMinutes == 0 {
		cfg.Analytics.ArchiveMinutes = 24 * 60
	}
	if cfg.Analytics.S3Region == "" {
		cfg.Analytics.S3Region = cfg.SES.Region
	}
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = cfg.SES.Region
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production. An empty path
// skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	overrides := map[string]*string{
		"DATABASE_URL":           &cfg.Database.URL,
		"REDIS_URL":              &cfg.Redis.URL,
		"LOG_LEVEL":              &cfg.Logging.Level,
		"EMAIL_PROVIDER":         &cfg.Provider,
		"AWS_SES_ACCESS_KEY":     &cfg.SES.AccessKey,
		"AWS_SES_SECRET_KEY":     &cfg.SES.SecretKey,
		"AWS_SES_REGION":         &cfg.SES.Region,
		"SES_CONFIGURATION_SET":  &cfg.SES.ConfigurationSet,
		"RESEND_API_KEY":         &cfg.Resend.APIKey,
		"CLASSIFIER_TYPE":        &cfg.Classifier.Type,
		"CLASSIFIER_URL":         &cfg.Classifier.URL,
		"CLASSIFIER_API_KEY":     &cfg.Classifier.APIKey,
		"BEDROCK_MODEL_ID":       &cfg.Bedrock.ModelID,
		"TRACKING_BASE_URL":      &cfg.Tracking.BaseURL,
		"TRACKING_SIGNING_KEY":   &cfg.Tracking.SigningKey,
		"BOOKING_URL":            &cfg.Booking.URL,
		"BOOKING_DOMAIN":         &cfg.Booking.Domain,
		"WEBHOOK_SECRET":         &cfg.Webhook.Secret,
		"SENDER_FROM_NAME":       &cfg.Sender.FromName,
		"SENDER_FROM_EMAIL":      &cfg.Sender.FromEmail,
		"SENDER_REPLY_TO":        &cfg.Sender.ReplyTo,
		"ANALYTICS_S3_BUCKET":    &cfg.Analytics.S3Bucket,
		"SQS_TRACKING_QUEUE_URL": &cfg.SQS.TrackingQueueURL,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	cfg.Tracking.BaseURL = strings.TrimRight(cfg.Tracking.BaseURL, "/")

	if v := os.Getenv("SEQUENCER_AUTOSTART"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sequencer.AutoStart = b
		}
	}
	if v := os.Getenv("TRACKING_ASYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracking.Async = b
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}
