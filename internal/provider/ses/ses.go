// Package ses sends engine mail through AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// ErrNotConfigured is returned by Send when no client could be built.
var ErrNotConfigured = errors.New("ses client not initialized, check credentials")

// API is the part of *sesv2.Client the sender calls.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config selects the region, optional static credentials and configuration
// set. Without keys the default AWS credential chain is used.
type Config struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
}

// Sender implements delivery.Sender on SES.
type Sender struct {
	client    API
	configSet string
	log       *logger.Entry
	now       func() time.Time
}

// New builds a sender on the given client.
func New(client API, configSet string) *Sender {
	return &Sender{
		client:    client,
		configSet: configSet,
		log:       logger.With("component", "provider", "provider", "ses"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewFromConfig loads AWS configuration and builds the SES client.
func NewFromConfig(ctx context.Context, cfg Config) (*Sender, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

// Send delivers a single message. Any SES error is returned so the caller
// can count the failure and retry on the next sweep.
func (s *Sender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress(msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
				Headers: headers(msg.Headers),
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("message_type"), Value: aws.String(string(msg.Type))},
		},
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Warn("send failed", "to", msg.To, "campaign_id", msg.CampaignID, "error", err.Error())
		return nil, fmt.Errorf("ses send: %w", err)
	}

	return &domain.SendResult{
		MessageID: aws.ToString(out.MessageId),
		Provider:  domain.ProviderSES,
		SentAt:    s.now(),
	}, nil
}

func fromAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func headers(h map[string]string) []types.MessageHeader {
	if len(h) == 0 {
		return nil
	}
	out := make([]types.MessageHeader, 0, len(h))
	for k, v := range h {
		out = append(out, types.MessageHeader{Name: aws.String(k), Value: aws.String(v)})
	}
	return out
}
