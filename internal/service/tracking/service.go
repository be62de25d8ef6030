package tracking

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Pixel is a 1x1 transparent GIF.
var Pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// ClickResult describes what a click changed.
type ClickResult struct {
	First   bool `json:"first"`
	HotLead bool `json:"hot_lead"`
}

// Service applies open and click hits to campaigns.
type Service struct {
	*Instrumenter
	campaigns CampaignRepository
	events    EventRepository
	now       func() time.Time
	log       *logger.Entry
}

// NewService creates a tracker.
func NewService(campaigns CampaignRepository, events EventRepository, in *Instrumenter) *Service {
	return &Service{
		Instrumenter: in,
		campaigns:    campaigns,
		events:       events,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.With("component", "tracking"),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RecordOpen increments open_count and sets opened_at on the first open.
// Only the first open is written to the engagement log. Errors after the
// increment wrap ErrCounted.
func (s *Service) RecordOpen(ctx context.Context, campaignID string, meta map[string]string) (bool, error) {
	at := s.now()
	first, err := s.campaigns.IncrementOpen(ctx, campaignID, at)
	if err != nil {
		return false, fmt.Errorf("record open %s: %w", campaignID, err)
	}
	if !first {
		return false, nil
	}
	if err := s.events.Append(ctx, &domain.EngagementEvent{
		CampaignID: campaignID,
		Type:       domain.EngagementOpen,
		Metadata:   meta,
		CreatedAt:  at,
	}); err != nil {
		return true, fmt.Errorf("%w: log open %s: %w", ErrCounted, campaignID, err)
	}
	return true, nil
}

// RecordClick increments click_count, sets clicked_at on the first click and
// logs every click. A click on the scheduling domain moves the campaign to
// booking and stamps hot_lead_at.
func (s *Service) RecordClick(ctx context.Context, campaignID, target string, meta map[string]string) (ClickResult, error) {
	var res ClickResult
	at := s.now()

	first, err := s.campaigns.IncrementClick(ctx, campaignID, at)
	if err != nil {
		return res, fmt.Errorf("record click %s: %w", campaignID, err)
	}
	res.First = first

	md := map[string]string{"url": target}
	for k, v := range meta {
		md[k] = v
	}
	if err := s.events.Append(ctx, &domain.EngagementEvent{
		CampaignID: campaignID,
		Type:       domain.EngagementClick,
		Metadata:   md,
		CreatedAt:  at,
	}); err != nil {
		return res, fmt.Errorf("%w: log click %s: %w", ErrCounted, campaignID, err)
	}

	if !s.IsSchedulingURL(target) {
		return res, nil
	}
	hot, err := s.markHotLead(ctx, campaignID, target, at)
	res.HotLead = hot
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrCounted, err)
	}
	return res, nil
}

func (s *Service) markHotLead(ctx context.Context, campaignID, target string, at time.Time) (bool, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if c.Status.Terminal() || !c.Status.CanTransition(domain.StatusBooking) {
		s.log.Info("scheduling click ignored for status", "campaign_id", campaignID, "status", string(c.Status))
		return false, nil
	}
	if c.Status == domain.StatusBooking && c.HotLeadAt != nil {
		return true, nil
	}
	if c.HotLeadAt == nil {
		c.HotLeadAt = &at
	}
	c.Status = domain.StatusBooking
	if err := s.campaigns.Update(ctx, c); err != nil {
		return false, fmt.Errorf("mark hot lead %s: %w", campaignID, err)
	}
	if err := s.events.Append(ctx, &domain.EngagementEvent{
		CampaignID: campaignID,
		Type:       domain.EngagementHotLead,
		Metadata:   map[string]string{"url": target},
		CreatedAt:  at,
	}); err != nil {
		return true, fmt.Errorf("log hot lead %s: %w", campaignID, err)
	}
	s.log.Info("hot lead", "campaign_id", campaignID, "email", c.RecipientEmail)
	return true, nil
}

// DecodeTarget validates a click target taken from the redirect query. Only
// absolute http(s) URLs are accepted so the redirect cannot be abused for
// other schemes.
func DecodeTarget(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing target url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid target url %q", raw)
	}
	return u.String(), nil
}
