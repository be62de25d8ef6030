package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Identity is the sender identity stamped on every message.
type Identity struct {
	FromName  string
	FromEmail string
	ReplyTo   string
}

// Outbound is one message to send on behalf of a campaign.
type Outbound struct {
	Campaign *domain.Campaign
	Type     domain.MessageType
	Subject  string
	Body     string
}

// Outcome reports what happened. Blocked is a result, not an error.
type Outcome struct {
	Blocked   bool      `json:"blocked"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

// Deps are the collaborators of the delivery path.
type Deps struct {
	Guard     Guard
	Tracker   Tracker
	Sender    Sender
	Messages  MessageRepository
	Campaigns CampaignRepository
	Locker    distlock.Locker
	Metrics   *metrics.Metrics
	Identity  Identity
	// SendTimeout bounds each provider call. Zero means 30s.
	SendTimeout time.Duration
}

// Service implements the shared send path. It is safe for concurrent use.
type Service struct {
	Deps
	now func() time.Time
	log *logger.Entry
}

// NewService creates the delivery path.
func NewService(d Deps) *Service {
	if d.SendTimeout <= 0 {
		d.SendTimeout = 30 * time.Second
	}
	if d.Locker == nil {
		d.Locker = distlock.NewLocker(nil, nil)
	}
	return &Service{
		Deps: d,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.With("component", "delivery"),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Deliver sends out unless the recipient is blocked.
func (s *Service) Deliver(ctx context.Context, out Outbound) (Outcome, error) {
	c := out.Campaign
	if c == nil || c.RecipientEmail == "" {
		return Outcome{}, ErrNoRecipient
	}

	blocked, err := s.Guard.IsBlocked(ctx, c.RecipientEmail)
	if err != nil {
		return Outcome{}, fmt.Errorf("blocklist check for campaign %s: %w", c.ID, err)
	}
	if blocked {
		s.Metrics.IncBlocked()
		s.log.Info("send blocked", "campaign_id", c.ID, "email", c.RecipientEmail, "type", string(out.Type))
		return Outcome{Blocked: true}, nil
	}

	var outcome Outcome
	lock := s.Locker.Lock(fmt.Sprintf("send:%s:%s", c.ID, out.Type), s.SendTimeout+time.Minute)
	err = distlock.Do(ctx, lock, func(ctx context.Context) error {
		var sendErr error
		outcome, sendErr = s.send(ctx, out)
		return sendErr
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return Outcome{}, fmt.Errorf("%w: %s %s", ErrSendInProgress, c.ID, out.Type)
	}
	return outcome, err
}

func (s *Service) send(ctx context.Context, out Outbound) (Outcome, error) {
	c := out.Campaign
	kind := string(out.Type)

	msg := &domain.EmailMessage{
		CampaignID:  c.ID,
		To:          c.RecipientEmail,
		FromName:    s.Identity.FromName,
		FromEmail:   s.Identity.FromEmail,
		ReplyTo:     s.Identity.ReplyTo,
		Subject:     out.Subject,
		HTMLContent: s.Tracker.Instrument(toHTML(out.Body), c.ID),
		Type:        out.Type,
		Headers:     s.unsubscribeHeaders(c.RecipientEmail),

		IdempotencyKey: IdempotencyKey(out),
	}
	if !looksLikeHTML(out.Body) {
		msg.TextContent = s.Tracker.RewriteLinks(out.Body, c.ID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.SendTimeout)
	defer cancel()
	res, err := s.Sender.Send(sendCtx, msg)
	if err != nil {
		s.Metrics.IncSendFailure(kind)
		return Outcome{}, fmt.Errorf("send %s for campaign %s: %w", kind, c.ID, err)
	}
	s.Metrics.IncSent(kind)

	sentAt := res.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	outcome := Outcome{MessageID: res.MessageID, SentAt: sentAt}

	// The provider accepted the message. A failed log write must not surface
	// as a send failure or the caller would retry and send twice.
	if err := s.Messages.Append(ctx, &domain.ConversationMessage{
		CampaignID:        c.ID,
		Direction:         domain.DirectionOutbound,
		Type:              out.Type,
		Subject:           out.Subject,
		Body:              out.Body,
		ProviderMessageID: res.MessageID,
		CreatedAt:         sentAt,
	}); err != nil {
		s.log.Error("conversation log write failed", "campaign_id", c.ID, "type", kind, "error", err.Error())
	}

	s.log.Info("message sent", "campaign_id", c.ID, "type", kind, "message_id", res.MessageID, "provider", string(res.Provider))
	return outcome, nil
}

// SendInitial sends the first message of a draft campaign and marks it sent.
func (s *Service) SendInitial(ctx context.Context, campaignID string) (Outcome, error) {
	c, err := s.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if c.Status != domain.StatusDraft {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrNotDraft, campaignID, c.Status)
	}

	outcome, err := s.Deliver(ctx, Outbound{Campaign: c, Type: domain.MessageInitial, Subject: c.Subject, Body: c.Body})
	if err != nil || outcome.Blocked {
		return outcome, err
	}

	c.Status = domain.StatusSent
	c.SentAt = &outcome.SentAt
	c.ProviderMessageID = outcome.MessageID
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return outcome, fmt.Errorf("mark campaign %s sent: %w", campaignID, err)
	}
	return outcome, nil
}

// IdempotencyKey derives a provider idempotency key from the campaign, the
// message type and the content, so a retried or repeated send of the same
// message collapses into one delivery.
func IdempotencyKey(out Outbound) string {
	h := sha256.Sum256([]byte(out.Subject + "\x00" + out.Body))
	return fmt.Sprintf("%s:%s:%s", out.Campaign.ID, out.Type, hex.EncodeToString(h[:8]))
}

func (s *Service) unsubscribeHeaders(email string) map[string]string {
	return map[string]string{
		"List-Unsubscribe":      fmt.Sprintf("<%s>", s.Tracker.UnsubscribeURL(email)),
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, tag := range []string{"<html", "<body", "<p>", "<p ", "<br", "<div", "<a "} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// toHTML wraps a plain-text body so it renders with its line breaks intact.
func toHTML(body string) string {
	if looksLikeHTML(body) {
		return body
	}
	r := strings.NewReplacer("<", "&lt;", ">", "&gt;", "\r\n", "<br>\n", "\n", "<br>\n")
	return "<html><body>" + r.Replace(body) + "</body></html>"
}
