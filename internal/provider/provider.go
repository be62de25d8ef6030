// Package provider holds the outbound transports. Subpackages ses and resend
// talk to real providers; LogSender only logs and is meant for local runs.
package provider

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// LogSender accepts every message and writes it to the log.
type LogSender struct {
	log *logger.Entry
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.With("component", "provider", "provider", "log")}
}

// Send implements delivery.Sender.
func (s *LogSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	id := "log-" + uuid.New().String()
	s.log.Info("dry-run send",
		"campaign_id", msg.CampaignID,
		"to", msg.To,
		"type", string(msg.Type),
		"subject", msg.Subject,
		"message_id", id,
	)
	return &domain.SendResult{MessageID: id, Provider: domain.ProviderLog, SentAt: time.Now().UTC()}, nil
}
