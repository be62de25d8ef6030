package domain

import (
	"strings"
	"time"
)

// CampaignStatus enumerates where in the outreach lifecycle a campaign sits.
type CampaignStatus string

const (
	StatusDraft            CampaignStatus = "draft"
	StatusSent             CampaignStatus = "sent"
	StatusFollowUp1        CampaignStatus = "follow_up_1"
	StatusFollowUp2        CampaignStatus = "follow_up_2"
	StatusFollowUpFinal    CampaignStatus = "follow_up_final"
	StatusReplied          CampaignStatus = "replied"
	StatusBooking          CampaignStatus = "booking"
	StatusBookingSent      CampaignStatus = "booking_sent"
	StatusMeetingScheduled CampaignStatus = "meeting_scheduled"
	StatusBounced          CampaignStatus = "bounced"
	StatusUnsubscribed     CampaignStatus = "unsubscribed"
	StatusClosedLost       CampaignStatus = "closed_lost"
	StatusNurturing        CampaignStatus = "nurturing"
	StatusRetryScheduled   CampaignStatus = "retry_scheduled"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []CampaignStatus{
	StatusDraft, StatusSent, StatusFollowUp1, StatusFollowUp2, StatusFollowUpFinal,
	StatusReplied, StatusBooking, StatusBookingSent, StatusMeetingScheduled,
	StatusBounced, StatusUnsubscribed, StatusClosedLost, StatusNurturing, StatusRetryScheduled,
}

// InSequenceStatuses are the statuses the follow-up sequencer may advance.
var InSequenceStatuses = []CampaignStatus{StatusSent, StatusFollowUp1, StatusFollowUp2}

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// SequenceIndex maps an in-sequence status to the index of the next
// follow-up step. ok is false for any status that is not mid-sequence.
func (s CampaignStatus) SequenceIndex() (idx int, ok bool) {
	switch s {
	case StatusSent:
		return 0, true
	case StatusFollowUp1:
		return 1, true
	case StatusFollowUp2:
		return 2, true
	}
	return 0, false
}

// rank orders statuses along the forward path. Statuses on the same rank are
// siblings (terminal outcomes) and may replace each other.
var rank = map[CampaignStatus]int{
	StatusDraft:            0,
	StatusSent:             1,
	StatusFollowUp1:        2,
	StatusFollowUp2:        3,
	StatusFollowUpFinal:    4,
	StatusReplied:          5,
	StatusRetryScheduled:   6,
	StatusNurturing:        6,
	StatusBooking:          7,
	StatusBookingSent:      8,
	StatusMeetingScheduled: 9,
	StatusClosedLost:       10,
	StatusBounced:          10,
	StatusUnsubscribed:     10,
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic. A campaign replying again from a post-reply state (retry,
// nurturing, booking, closed_lost) re-enters "replied". Every other
// backwards move is a regression and requires an explicit reset.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	if s == next {
		return true
	}
	if !next.Valid() {
		return false
	}
	if next == StatusReplied && rank[s] >= rank[StatusReplied] && (!s.Terminal() || s == StatusClosedLost) {
		return true
	}
	return rank[next] >= rank[s]
}

// Terminal reports whether no automated action follows this status.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case StatusBounced, StatusUnsubscribed, StatusClosedLost, StatusMeetingScheduled:
		return true
	}
	return false
}

// Campaign is one outbound relationship with a single recipient.
type Campaign struct {
	ID                string         `json:"id" db:"id"`
	RecipientEmail    string         `json:"recipient_email" db:"recipient_email"`
	ContactName       string         `json:"contact_name" db:"contact_name"`
	CompanyName       string         `json:"company_name" db:"company_name"`
	Subject           string         `json:"subject" db:"subject"`
	Body              string         `json:"body" db:"body"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            CampaignStatus `json:"status" db:"status"`

	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	SentAt             *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt           *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt          *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
	RepliedAt          *time.Time `json:"replied_at,omitempty" db:"replied_at"`
	BouncedAt          *time.Time `json:"bounced_at,omitempty" db:"bounced_at"`
	UnsubscribedAt     *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	LastFollowupAt     *time.Time `json:"last_followup_at,omitempty" db:"last_followup_at"`
	BookingSentAt      *time.Time `json:"booking_sent_at,omitempty" db:"booking_sent_at"`
	HotLeadAt          *time.Time `json:"hot_lead_at,omitempty" db:"hot_lead_at"`
	RetryScheduledAt   *time.Time `json:"retry_scheduled_at,omitempty" db:"retry_scheduled_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	MeetingScheduledAt *time.Time `json:"meeting_scheduled_at,omitempty" db:"meeting_scheduled_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`

	OpenCount     int `json:"open_count" db:"open_count"`
	ClickCount    int `json:"click_count" db:"click_count"`
	FollowupCount int `json:"followup_count" db:"followup_count"`

	BounceReason      string `json:"bounce_reason,omitempty" db:"bounce_reason"`
	UnsubscribeReason string `json:"unsubscribe_reason,omitempty" db:"unsubscribe_reason"`
	LastReplyText     string `json:"last_reply_text,omitempty" db:"last_reply_text"`
	LastIntent        string `json:"last_intent,omitempty" db:"last_intent"`
	NeedsReview       bool   `json:"needs_review" db:"needs_review"`
	ReviewReason      string `json:"review_reason,omitempty" db:"review_reason"`
}

// Halted reports whether the recipient replied, bounced or unsubscribed.
// The follow-up sequencer must never advance a halted campaign.
func (c *Campaign) Halted() bool {
	return c.RepliedAt != nil || c.BouncedAt != nil || c.UnsubscribedAt != nil
}

// SequenceAnchor is the later of the original send and the last follow-up.
// Returns nil for a campaign that was never sent.
func (c *Campaign) SequenceAnchor() *time.Time {
	if c.SentAt == nil {
		return c.LastFollowupAt
	}
	if c.LastFollowupAt != nil && c.LastFollowupAt.After(*c.SentAt) {
		return c.LastFollowupAt
	}
	return c.SentAt
}

// FirstName returns the first word of the contact name, or "" if unknown.
func (c *Campaign) FirstName() string {
	fields := strings.Fields(c.ContactName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeEmail trims and lower-cases an address for keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MergeUpdate folds update, which may have been computed from a stale read,
// onto stored and returns the row to persist. Status only moves along
// CanTransition. Lifecycle stamps are set once and never cleared, and
// last_followup_at only moves later. Counters are owned by storage.
func MergeUpdate(stored, update *Campaign) *Campaign {
	out := *update
	out.ID = stored.ID
	out.RecipientEmail = stored.RecipientEmail
	out.CreatedAt = stored.CreatedAt
	out.OpenCount = stored.OpenCount
	out.ClickCount = stored.ClickCount
	out.FollowupCount = stored.FollowupCount

	if !stored.Status.CanTransition(update.Status) {
		out.Status = stored.Status
	}

	out.SentAt = firstSet(stored.SentAt, update.SentAt)
	out.DeliveredAt = firstSet(stored.DeliveredAt, update.DeliveredAt)
	out.OpenedAt = firstSet(stored.OpenedAt, update.OpenedAt)
	out.ClickedAt = firstSet(stored.ClickedAt, update.ClickedAt)
	out.RepliedAt = firstSet(stored.RepliedAt, update.RepliedAt)
	out.BouncedAt = firstSet(stored.BouncedAt, update.BouncedAt)
	out.UnsubscribedAt = firstSet(stored.UnsubscribedAt, update.UnsubscribedAt)
	out.BookingSentAt = firstSet(stored.BookingSentAt, update.BookingSentAt)
	out.HotLeadAt = firstSet(stored.HotLeadAt, update.HotLeadAt)
	out.ClosedAt = firstSet(stored.ClosedAt, update.ClosedAt)
	out.MeetingScheduledAt = firstSet(stored.MeetingScheduledAt, update.MeetingScheduledAt)
	out.LastFollowupAt = latest(stored.LastFollowupAt, update.LastFollowupAt)
	if update.RetryScheduledAt == nil {
		out.RetryScheduledAt = stored.RetryScheduledAt
	}

	out.ProviderMessageID = orStored(update.ProviderMessageID, stored.ProviderMessageID)
	out.BounceReason = orStored(update.BounceReason, stored.BounceReason)
	out.UnsubscribeReason = orStored(update.UnsubscribeReason, stored.UnsubscribeReason)
	out.LastReplyText = orStored(update.LastReplyText, stored.LastReplyText)
	out.LastIntent = orStored(update.LastIntent, stored.LastIntent)
	out.NeedsReview = stored.NeedsReview || update.NeedsReview
	out.ReviewReason = orStored(update.ReviewReason, stored.ReviewReason)
	return &out
}

func firstSet(stored, update *time.Time) *time.Time {
	if stored != nil {
		return stored
	}
	return update
}

func latest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}

func orStored(update, stored string) string {
	if update == "" {
		return stored
	}
	return update
}
