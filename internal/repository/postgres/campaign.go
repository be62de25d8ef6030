package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/lib/pq"
)

// CampaignRepo stores campaigns in outreach_campaigns.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, recipient_email, contact_name, company_name, subject, body,
	COALESCE(provider_message_id,''), status,
	created_at, sent_at, delivered_at, opened_at, clicked_at, replied_at,
	bounced_at, unsubscribed_at, last_followup_at, booking_sent_at, hot_lead_at,
	retry_scheduled_at, closed_at, meeting_scheduled_at, updated_at,
	open_count, click_count, followup_count,
	COALESCE(bounce_reason,''), COALESCE(unsubscribe_reason,''),
	COALESCE(last_reply_text,''), COALESCE(last_intent,''),
	needs_review, COALESCE(review_reason,'')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var sent, delivered, opened, clicked, replied, bounced, unsubscribed,
		lastFollowup, bookingSent, hotLead, retry, closed, meeting sql.NullTime
	err := row.Scan(
		&c.ID, &c.RecipientEmail, &c.ContactName, &c.CompanyName, &c.Subject, &c.Body,
		&c.ProviderMessageID, &c.Status,
		&c.CreatedAt, &sent, &delivered, &opened, &clicked, &replied,
		&bounced, &unsubscribed, &lastFollowup, &bookingSent, &hotLead,
		&retry, &closed, &meeting, &c.UpdatedAt,
		&c.OpenCount, &c.ClickCount, &c.FollowupCount,
		&c.BounceReason, &c.UnsubscribeReason,
		&c.LastReplyText, &c.LastIntent,
		&c.NeedsReview, &c.ReviewReason,
	)
	if err != nil {
		return nil, err
	}
	c.SentAt = timePtr(sent)
	c.DeliveredAt = timePtr(delivered)
	c.OpenedAt = timePtr(opened)
	c.ClickedAt = timePtr(clicked)
	c.RepliedAt = timePtr(replied)
	c.BouncedAt = timePtr(bounced)
	c.UnsubscribedAt = timePtr(unsubscribed)
	c.LastFollowupAt = timePtr(lastFollowup)
	c.BookingSentAt = timePtr(bookingSent)
	c.HotLeadAt = timePtr(hotLead)
	c.RetryScheduledAt = timePtr(retry)
	c.ClosedAt = timePtr(closed)
	c.MeetingScheduledAt = timePtr(meeting)
	return c, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.StatusDraft
	}
	c.RecipientEmail = domain.NormalizeEmail(c.RecipientEmail)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO outreach_campaigns (
			id, recipient_email, contact_name, company_name, subject, body, status, sent_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`, c.ID, c.RecipientEmail, c.ContactName, c.CompanyName, c.Subject, c.Body, c.Status, nullTime(c.SentAt),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: active campaign exists for recipient", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM outreach_campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// FindLatestByEmail returns the most recently created campaign for email.
func (r *CampaignRepo) FindLatestByEmail(ctx context.Context, email string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM outreach_campaigns
		WHERE recipient_email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, domain.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find campaign by email: %w", err)
	}
	return c, nil
}

// Update locks the row, merges c onto it with domain.MergeUpdate and writes
// the result. c is refreshed with what was persisted, so a caller holding a
// stale copy never moves status backwards or clears a stamp another writer set.
func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanCampaign(tx.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM outreach_campaigns WHERE id = $1 FOR UPDATE`, c.ID))
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock campaign: %w", err)
	}
	m := domain.MergeUpdate(cur, c)

	err = tx.QueryRowContext(ctx, `
		UPDATE outreach_campaigns SET
			contact_name = $2, company_name = $3, subject = $4, body = $5,
			provider_message_id = $6, status = $7,
			sent_at = $8, delivered_at = $9,
			opened_at = COALESCE(opened_at, $10), clicked_at = COALESCE(clicked_at, $11),
			replied_at = $12, bounced_at = $13, unsubscribed_at = $14,
			last_followup_at = GREATEST(last_followup_at, $15), booking_sent_at = $16,
			hot_lead_at = $17, retry_scheduled_at = $18, closed_at = $19, meeting_scheduled_at = $20,
			bounce_reason = $21, unsubscribe_reason = $22, last_reply_text = $23, last_intent = $24,
			needs_review = $25, review_reason = $26,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		m.ID, m.ContactName, m.CompanyName, m.Subject, m.Body,
		nullIfEmpty(m.ProviderMessageID), m.Status,
		nullTime(m.SentAt), nullTime(m.DeliveredAt), nullTime(m.OpenedAt), nullTime(m.ClickedAt), nullTime(m.RepliedAt),
		nullTime(m.BouncedAt), nullTime(m.UnsubscribedAt), nullTime(m.LastFollowupAt), nullTime(m.BookingSentAt),
		nullTime(m.HotLeadAt), nullTime(m.RetryScheduledAt), nullTime(m.ClosedAt), nullTime(m.MeetingScheduledAt),
		nullIfEmpty(m.BounceReason), nullIfEmpty(m.UnsubscribeReason), nullIfEmpty(m.LastReplyText), nullIfEmpty(m.LastIntent),
		m.NeedsReview, nullIfEmpty(m.ReviewReason),
	).Scan(&m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign update: %w", err)
	}
	*c = *m
	return nil
}

// IncrementOpen bumps open_count and sets opened_at if unset. first reports
// whether this call set opened_at.
func (r *CampaignRepo) IncrementOpen(ctx context.Context, id string, at time.Time) (bool, error) {
	var first bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE outreach_campaigns c
		SET open_count = c.open_count + 1,
		    opened_at = COALESCE(c.opened_at, $2),
		    updated_at = NOW()
		FROM (SELECT id, opened_at FROM outreach_campaigns WHERE id = $1 FOR UPDATE) prev
		WHERE c.id = prev.id
		RETURNING prev.opened_at IS NULL
	`, id, at).Scan(&first)
	if err == sql.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("increment open: %w", err)
	}
	return first, nil
}

// IncrementClick bumps click_count and sets clicked_at if unset.
func (r *CampaignRepo) IncrementClick(ctx context.Context, id string, at time.Time) (bool, error) {
	var first bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE outreach_campaigns c
		SET click_count = c.click_count + 1,
		    clicked_at = COALESCE(c.clicked_at, $2),
		    updated_at = NOW()
		FROM (SELECT id, clicked_at FROM outreach_campaigns WHERE id = $1 FOR UPDATE) prev
		WHERE c.id = prev.id
		RETURNING prev.clicked_at IS NULL
	`, id, at).Scan(&first)
	if err == sql.ErrNoRows {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("increment click: %w", err)
	}
	return first, nil
}

// AdvanceFollowup is a compare-and-swap on status. It refuses halted rows.
func (r *CampaignRepo) AdvanceFollowup(ctx context.Context, id string, expected, next domain.CampaignStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_campaigns
		SET status = $3,
		    followup_count = followup_count + 1,
		    last_followup_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		  AND replied_at IS NULL AND bounced_at IS NULL AND unsubscribed_at IS NULL
	`, id, expected, next, at)
	if err != nil {
		return false, fmt.Errorf("advance followup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *CampaignRepo) ListEligibleForFollowup(ctx context.Context) ([]*domain.Campaign, error) {
	statuses := make([]string, len(domain.InSequenceStatuses))
	for i, s := range domain.InSequenceStatuses {
		statuses[i] = string(s)
	}
	return r.list(ctx, `
		SELECT `+campaignColumns+`
		FROM outreach_campaigns
		WHERE status = ANY($1)
		  AND replied_at IS NULL AND bounced_at IS NULL AND unsubscribed_at IS NULL
		ORDER BY created_at
	`, pq.Array(statuses))
}

func (r *CampaignRepo) ListRetryDue(ctx context.Context, before time.Time) ([]*domain.Campaign, error) {
	return r.list(ctx, `
		SELECT `+campaignColumns+`
		FROM outreach_campaigns
		WHERE status = $1 AND needs_review = false AND retry_scheduled_at <= $2
		ORDER BY retry_scheduled_at
	`, domain.StatusRetryScheduled, before)
}

func (r *CampaignRepo) list(ctx context.Context, q string, args ...interface{}) ([]*domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FunnelCounts counts stages over campaigns created at or after since.
// booked is campaigns currently in meeting_scheduled.
func (r *CampaignRepo) FunnelCounts(ctx context.Context, since time.Time) (domain.FunnelCounts, error) {
	var fc domain.FunnelCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE sent_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE delivered_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE replied_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE bounced_at IS NOT NULL)
		FROM outreach_campaigns
		WHERE created_at >= $1
	`, since, domain.StatusMeetingScheduled).Scan(
		&fc.Total, &fc.Sent, &fc.Delivered, &fc.Opened,
		&fc.Clicked, &fc.Replied, &fc.Booked, &fc.Bounced,
	)
	if err != nil {
		return fc, fmt.Errorf("funnel counts: %w", err)
	}
	return fc, nil
}
