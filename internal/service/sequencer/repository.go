package sequencer

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/delivery"
)

// CampaignRepository is the campaign access the sequencer needs.
type CampaignRepository interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	ListEligibleForFollowup(ctx context.Context) ([]*domain.Campaign, error)
	// AdvanceFollowup moves the campaign from expected to next, increments
	// followup_count and stamps last_followup_at. It returns false without
	// writing when the stored status no longer equals expected.
	AdvanceFollowup(ctx context.Context, id string, expected, next domain.CampaignStatus, at time.Time) (bool, error)
}

// SequenceSource yields the sequence currently in force.
type SequenceSource interface {
	Active(ctx context.Context) (*domain.FollowupSequence, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, out delivery.Outbound) (delivery.Outcome, error)
}

type Renderer interface {
	RenderStep(step domain.SequenceStep, c *domain.Campaign) (subject, body string, err error)
}

// RetryResumer is polled after every scheduled sweep.
type RetryResumer interface {
	ResumeRetries(ctx context.Context) (int, error)
}
