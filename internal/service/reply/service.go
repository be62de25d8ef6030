package reply

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/delivery"
	"github.com/ignite/outreach-engine/internal/templates"
)

// Result reasons for replies that were not dispatched.
const (
	ReasonNoCampaignFound = "no_campaign_found"
	ReasonTerminalStatus  = "terminal_status"
)

// DefaultRetryDelay is how long wait_and_retry parks a campaign.
const DefaultRetryDelay = 72 * time.Hour

// Result is the outcome of processing one reply.
type Result struct {
	Processed  bool                    `json:"processed"`
	Reason     string                  `json:"reason,omitempty"`
	CampaignID string                  `json:"campaign_id,omitempty"`
	Intent     string                  `json:"intent,omitempty"`
	Action     domain.ClassifierAction `json:"action,omitempty"`
	Sent       bool                    `json:"sent"`
	Blocked    bool                    `json:"blocked,omitempty"`
	Status     domain.CampaignStatus   `json:"status,omitempty"`
}

// Deps are the collaborators of the reply processor.
type Deps struct {
	Campaigns  CampaignRepository
	Events     EventRepository
	Messages   MessageRepository
	Classifier Classifier
	Guard      Guard
	Delivery   Deliverer
	Renderer   *templates.Renderer
	Booking    templates.Booking
	Metrics    *metrics.Metrics
	// RetryDelay is applied by wait_and_retry. Zero means 72h.
	RetryDelay time.Duration
}

// Service processes inbound replies. It is safe for concurrent use.
type Service struct {
	Deps
	now func() time.Time
	log *logger.Entry
}

// NewService creates a reply processor.
func NewService(d Deps) *Service {
	if d.RetryDelay <= 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	if d.Renderer == nil {
		d.Renderer = templates.NewRenderer()
	}
	return &Service{
		Deps: d,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.With("component", "reply"),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Process attributes, records, classifies and dispatches one reply.
//
// The replied state is persisted before the classifier is called, so a
// classifier failure leaves the campaign marked replied with no further
// automated action. That failure is returned to the caller.
func (s *Service) Process(ctx context.Context, in domain.InboundReply) (Result, error) {
	var res Result

	raw := in.Text
	if strings.TrimSpace(raw) == "" {
		if strings.TrimSpace(in.HTML) == "" {
			return res, ErrNoContent
		}
		raw = HTMLToText(in.HTML)
	}
	email := ExtractAddress(in.From)
	if email == "" {
		return res, ErrNoSender
	}

	c, err := s.Campaigns.FindLatestByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && c == nil) {
		s.log.Info("reply from unknown sender", "email", email)
		res.Reason = ReasonNoCampaignFound
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lookup campaign: %w", err)
	}
	res.CampaignID = c.ID

	cleaned := CleanReply(raw)
	prevStatus := c.Status
	if err := s.markReplied(ctx, c, in.Subject, cleaned); err != nil {
		return res, err
	}
	res.Status = c.Status

	if !prevStatus.CanTransition(domain.StatusReplied) {
		c.NeedsReview = true
		c.ReviewReason = fmt.Sprintf("reply received in terminal status %s", prevStatus)
		if err := s.Campaigns.Update(ctx, c); err != nil {
			return res, fmt.Errorf("flag campaign %s: %w", c.ID, err)
		}
		s.log.Warn("reply on terminal campaign", "campaign_id", c.ID, "status", string(prevStatus))
		res.Reason = ReasonTerminalStatus
		return res, nil
	}

	cr, err := s.Classifier.Classify(ctx, domain.ClassifierRequest{
		CampaignID:  c.ID,
		Email:       c.RecipientEmail,
		ContactName: c.ContactName,
		CompanyName: c.CompanyName,
		ReplyText:   cleaned,
		Metadata: map[string]string{
			"subject":         in.Subject,
			"previous_status": string(prevStatus),
			"followup_count":  strconv.Itoa(c.FollowupCount),
		},
	})
	if err != nil {
		s.log.Error("classifier failed", "campaign_id", c.ID, "error", err)
		return res, fmt.Errorf("classify reply for campaign %s: %w", c.ID, err)
	}
	if cr == nil {
		return res, fmt.Errorf("classify reply for campaign %s: empty result", c.ID)
	}

	res.Intent = cr.Classification.Intent
	res.Action = cr.Action
	c.LastIntent = cr.Classification.Intent

	if err := s.dispatch(ctx, c, in.Subject, cr, &res); err != nil {
		return res, err
	}
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return res, fmt.Errorf("persist %s for campaign %s: %w", cr.Action, c.ID, err)
	}
	s.Metrics.IncReply(string(cr.Action))
	s.log.Info("reply processed",
		"campaign_id", c.ID,
		"intent", cr.Classification.Intent,
		"action", string(cr.Action),
		"status", string(c.Status),
	)

	res.Processed = true
	res.Status = c.Status
	return res, nil
}

func (s *Service) markReplied(ctx context.Context, c *domain.Campaign, subject, text string) error {
	at := s.now()
	if c.RepliedAt == nil {
		c.RepliedAt = &at
	}
	if c.Status.CanTransition(domain.StatusReplied) {
		c.Status = domain.StatusReplied
	}
	c.LastReplyText = text
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return fmt.Errorf("mark campaign %s replied: %w", c.ID, err)
	}

	if err := s.Messages.Append(ctx, &domain.ConversationMessage{
		CampaignID: c.ID,
		Direction:  domain.DirectionInbound,
		Type:       domain.MessageInboundReply,
		Subject:    subject,
		Body:       text,
		CreatedAt:  at,
	}); err != nil {
		return fmt.Errorf("log inbound reply for campaign %s: %w", c.ID, err)
	}
	if err := s.Events.Append(ctx, &domain.EngagementEvent{
		CampaignID: c.ID,
		Type:       domain.EngagementReply,
		Metadata:   map[string]string{"subject": subject},
		CreatedAt:  at,
	}); err != nil {
		return fmt.Errorf("log reply event for campaign %s: %w", c.ID, err)
	}
	return nil
}

// dispatch applies the classifier's action to c in memory and performs any
// send. The caller persists c.
func (s *Service) dispatch(ctx context.Context, c *domain.Campaign, subject string, cr *domain.ClassifierResult, res *Result) error {
	at := s.now()

	switch cr.Action {
	case domain.ActionSendResponseAndMonitor:
		return s.sendResponse(ctx, c, subject, cr.Response, res)

	case domain.ActionSendResponseAndNurture:
		if err := s.sendResponse(ctx, c, subject, cr.Response, res); err != nil {
			return err
		}
		if c.Status.CanTransition(domain.StatusNurturing) {
			c.Status = domain.StatusNurturing
		}
		return nil

	case domain.ActionSendCalendarLink:
		return s.sendBooking(ctx, c, cr.Response, at, res)

	case domain.ActionMarkClosed:
		c.Status = domain.StatusClosedLost
		if c.ClosedAt == nil {
			c.ClosedAt = &at
		}
		return nil

	case domain.ActionRemoveFromList:
		detail := "reply opt-out"
		if cr.Classification.Intent != "" {
			detail += ": " + cr.Classification.Intent
		}
		if err := s.Guard.Block(ctx, c.RecipientEmail, domain.BlockUnsubscribe, detail); err != nil {
			return fmt.Errorf("block campaign %s recipient: %w", c.ID, err)
		}
		c.Status = domain.StatusUnsubscribed
		c.UnsubscribeReason = string(domain.BlockUnsubscribe)
		if c.UnsubscribedAt == nil {
			c.UnsubscribedAt = &at
		}
		return nil

	case domain.ActionWaitAndRetry:
		retryAt := at.Add(s.RetryDelay)
		c.RetryScheduledAt = &retryAt
		c.Status = domain.StatusRetryScheduled
		return nil

	case domain.ActionFlagForHumanReview:
		c.NeedsReview = true
		c.ReviewReason = cr.ReviewReason
		if c.ReviewReason == "" {
			c.ReviewReason = "classifier requested review"
			if cr.Classification.Intent != "" {
				c.ReviewReason += ": " + cr.Classification.Intent
			}
		}
		return nil
	}

	s.log.Error("classifier returned unknown action", "campaign_id", c.ID, "action", string(cr.Action))
	return fmt.Errorf("%w: %q", ErrUnknownAction, cr.Action)
}

func (s *Service) sendResponse(ctx context.Context, c *domain.Campaign, subject, response string, res *Result) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil
	}
	out, err := s.Delivery.Deliver(ctx, delivery.Outbound{
		Campaign: c,
		Type:     domain.MessageReplyResponse,
		Subject:  replySubject(subject, c.Subject),
		Body:     response,
	})
	if err != nil {
		return fmt.Errorf("send reply response for campaign %s: %w", c.ID, err)
	}
	res.Sent = !out.Blocked
	res.Blocked = out.Blocked
	return nil
}

func (s *Service) sendBooking(ctx context.Context, c *domain.Campaign, response string, at time.Time, res *Result) error {
	if s.Booking.URL == "" {
		c.NeedsReview = true
		c.ReviewReason = "booking requested but no booking url configured"
		s.log.Warn("no booking url configured", "campaign_id", c.ID)
		return nil
	}
	subject, body, err := s.Renderer.RenderBooking(s.Booking, c, response)
	if err != nil {
		return fmt.Errorf("render booking for campaign %s: %w", c.ID, err)
	}
	out, err := s.Delivery.Deliver(ctx, delivery.Outbound{
		Campaign: c,
		Type:     domain.MessageBookingInvitation,
		Subject:  subject,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("send booking for campaign %s: %w", c.ID, err)
	}
	res.Blocked = out.Blocked
	if out.Blocked {
		return nil
	}
	res.Sent = true
	c.Status = domain.StatusBookingSent
	if c.BookingSentAt == nil {
		c.BookingSentAt = &at
	}
	s.Metrics.IncBooking()
	return nil
}

// replySubject threads the response under the inbound subject when there
// is one, falling back to the campaign subject.
func replySubject(inbound, original string) string {
	subject := strings.TrimSpace(inbound)
	if subject == "" {
		subject = strings.TrimSpace(original)
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ResumeRetries flags campaigns whose retry window has elapsed for human
// review and returns how many were flagged.
func (s *Service) ResumeRetries(ctx context.Context) (int, error) {
	due, err := s.Campaigns.ListRetryDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list retry-due campaigns: %w", err)
	}
	flagged := 0
	for _, c := range due {
		c.NeedsReview = true
		c.ReviewReason = "retry window elapsed"
		if err := s.Campaigns.Update(ctx, c); err != nil {
			s.log.Error("failed to flag retry-due campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		flagged++
	}
	if flagged > 0 {
		s.log.Info("retry-due campaigns flagged for review", "count", flagged)
	}
	return flagged, nil
}
