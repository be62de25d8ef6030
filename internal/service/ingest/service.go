package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Result reasons for events that changed nothing.
const (
	ReasonUnknownEventType = "unknown_event_type"
	ReasonNoCampaignFound  = "no_campaign_found"
)

// Result is the outcome of handling one event. Processed=false is not an
// error and must not trigger a provider retry.
type Result struct {
	Processed  bool   `json:"processed"`
	Reason     string `json:"reason,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
	Event      string `json:"event"`
}

// Deps are the collaborators of the ingestor.
type Deps struct {
	Campaigns CampaignRepository
	Events    EventRepository
	Guard     Guard
	Tracker   Tracker
	Metrics   *metrics.Metrics
}

// Service turns provider events into campaign transitions.
type Service struct {
	Deps
	log *logger.Entry
}

// NewService creates an ingestor.
func NewService(d Deps) *Service {
	return &Service{Deps: d, log: logger.With("component", "ingest")}
}

// Handle applies ev to the matching campaign.
func (s *Service) Handle(ctx context.Context, ev domain.ProviderEvent) (Result, error) {
	res := Result{Event: ev.RawType}
	s.Metrics.IncWebhookEvent(ev.RawType)

	if ev.Type == domain.EventUnknown {
		s.log.Info("ignoring unknown event type", "type", ev.RawType)
		res.Reason = ReasonUnknownEventType
		return res, nil
	}

	c, err := s.Campaigns.FindLatestByEmail(ctx, ev.To)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && c == nil) {
		s.log.Info("no campaign for event", "type", ev.RawType, "email", ev.To)
		res.Reason = ReasonNoCampaignFound
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lookup campaign: %w", err)
	}
	res.CampaignID = c.ID

	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch ev.Type {
	case domain.EventSent:
		err = s.onSent(ctx, c, ev, at)
	case domain.EventDelivered:
		err = s.onDelivered(ctx, c, at)
	case domain.EventOpened:
		_, err = s.Tracker.RecordOpen(ctx, c.ID, map[string]string{"source": "webhook"})
	case domain.EventClicked:
		_, err = s.Tracker.RecordClick(ctx, c.ID, ev.Link, map[string]string{"source": "webhook"})
	case domain.EventBounced:
		err = s.onBounced(ctx, c, ev, at)
	case domain.EventComplained:
		err = s.onComplained(ctx, c, at)
	case domain.EventDeliveryDelayed:
		err = s.Events.Append(ctx, &domain.EngagementEvent{
			CampaignID: c.ID,
			Type:       domain.EngagementDeliveryDelayed,
			Metadata:   map[string]string{"message_id": ev.MessageID},
			CreatedAt:  at,
		})
	case domain.EventUnknown:
		res.Reason = ReasonUnknownEventType
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("handle %s for campaign %s: %w", ev.RawType, c.ID, err)
	}

	res.Processed = true
	return res, nil
}

func (s *Service) onSent(ctx context.Context, c *domain.Campaign, ev domain.ProviderEvent, at time.Time) error {
	if ev.MessageID != "" {
		c.ProviderMessageID = ev.MessageID
	}
	if c.SentAt == nil {
		c.SentAt = &at
	}
	if c.Status == domain.StatusDraft {
		c.Status = domain.StatusSent
	}
	return s.Campaigns.Update(ctx, c)
}

func (s *Service) onDelivered(ctx context.Context, c *domain.Campaign, at time.Time) error {
	if c.DeliveredAt != nil {
		return nil
	}
	c.DeliveredAt = &at
	return s.Campaigns.Update(ctx, c)
}

// onBounced blocks the address before touching the campaign so any
// concurrent send is refused as early as possible.
func (s *Service) onBounced(ctx context.Context, c *domain.Campaign, ev domain.ProviderEvent, at time.Time) error {
	if err := s.Guard.Block(ctx, c.RecipientEmail, domain.BlockBounce, ev.BounceReason); err != nil {
		return err
	}
	if c.BouncedAt == nil {
		c.BouncedAt = &at
	}
	c.BounceReason = ev.BounceReason
	c.Status = domain.StatusBounced
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return err
	}
	s.log.Warn("campaign bounced", "campaign_id", c.ID, "email", c.RecipientEmail, "reason", ev.BounceReason)
	return s.Events.Append(ctx, &domain.EngagementEvent{
		CampaignID: c.ID,
		Type:       domain.EngagementBounce,
		Metadata:   map[string]string{"reason": ev.BounceReason},
		CreatedAt:  at,
	})
}

func (s *Service) onComplained(ctx context.Context, c *domain.Campaign, at time.Time) error {
	reason := string(domain.BlockSpamComplaint)
	if err := s.Guard.Block(ctx, c.RecipientEmail, domain.BlockSpamComplaint, "provider complaint"); err != nil {
		return err
	}
	if c.UnsubscribedAt == nil {
		c.UnsubscribedAt = &at
	}
	c.UnsubscribeReason = reason
	c.Status = domain.StatusUnsubscribed
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return err
	}
	s.log.Warn("spam complaint", "campaign_id", c.ID, "email", c.RecipientEmail)
	return s.Events.Append(ctx, &domain.EngagementEvent{
		CampaignID: c.ID,
		Type:       domain.EngagementComplaint,
		CreatedAt:  at,
	})
}
