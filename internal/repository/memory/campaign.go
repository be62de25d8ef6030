package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// CampaignRepo is a concurrency-safe in-memory campaign store.
type CampaignRepo struct {
	mu    sync.RWMutex
	store map[string]*domain.Campaign
}

// NewCampaignRepo creates an empty campaign store.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{store: make(map[string]*domain.Campaign)}
}

func clone(c *domain.Campaign) *domain.Campaign {
	cp := *c
	return &cp
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.RecipientEmail = domain.NormalizeEmail(c.RecipientEmail)
	if c.Status == "" {
		c.Status = domain.StatusDraft
	}
	r.store[c.ID] = clone(c)
	return nil
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(c), nil
}

func (r *CampaignRepo) FindLatestByEmail(_ context.Context, email string) (*domain.Campaign, error) {
	email = domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Campaign
	for _, c := range r.store {
		if c.RecipientEmail != email {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return clone(latest), nil
}

// Update merges c onto the stored row with domain.MergeUpdate and copies the
// persisted result back into c.
func (r *CampaignRepo) Update(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	next := domain.MergeUpdate(cur, c)
	next.UpdatedAt = time.Now().UTC()
	r.store[c.ID] = next
	*c = *clone(next)
	return nil
}

func (r *CampaignRepo) IncrementOpen(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	c.OpenCount++
	if c.OpenedAt == nil {
		c.OpenedAt = &at
		return true, nil
	}
	return false, nil
}

func (r *CampaignRepo) IncrementClick(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	c.ClickCount++
	if c.ClickedAt == nil {
		c.ClickedAt = &at
		return true, nil
	}
	return false, nil
}

// AdvanceFollowup moves status from expected to next only if the stored
// status still equals expected.
func (r *CampaignRepo) AdvanceFollowup(_ context.Context, id string, expected, next domain.CampaignStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Status != expected || c.Halted() {
		return false, nil
	}
	c.Status = next
	c.FollowupCount++
	c.LastFollowupAt = &at
	c.UpdatedAt = at
	return true, nil
}

func (r *CampaignRepo) ListEligibleForFollowup(_ context.Context) ([]*domain.Campaign, error) {
	return r.filter(func(c *domain.Campaign) bool {
		_, inSeq := c.Status.SequenceIndex()
		return inSeq && !c.Halted()
	}), nil
}

func (r *CampaignRepo) ListRetryDue(_ context.Context, before time.Time) ([]*domain.Campaign, error) {
	return r.filter(func(c *domain.Campaign) bool {
		return c.Status == domain.StatusRetryScheduled && !c.NeedsReview &&
			c.RetryScheduledAt != nil && !c.RetryScheduledAt.After(before)
	}), nil
}

func (r *CampaignRepo) FunnelCounts(_ context.Context, since time.Time) (domain.FunnelCounts, error) {
	var fc domain.FunnelCounts
	for _, c := range r.filter(func(c *domain.Campaign) bool { return !c.CreatedAt.Before(since) }) {
		fc.Total++
		if c.SentAt != nil {
			fc.Sent++
		}
		if c.DeliveredAt != nil {
			fc.Delivered++
		}
		if c.OpenedAt != nil {
			fc.Opened++
		}
		if c.ClickedAt != nil {
			fc.Clicked++
		}
		if c.RepliedAt != nil {
			fc.Replied++
		}
		if c.Status == domain.StatusMeetingScheduled {
			fc.Booked++
		}
		if c.BouncedAt != nil {
			fc.Bounced++
		}
	}
	return fc, nil
}

// filter returns copies ordered by creation time, oldest first.
func (r *CampaignRepo) filter(keep func(*domain.Campaign) bool) []*domain.Campaign {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Campaign
	for _, c := range r.store {
		if keep(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
