package tracking

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// CampaignRepository is the subset of campaign storage the tracker needs.
type CampaignRepository interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error

	// IncrementOpen bumps open_count and sets opened_at if unset. first is
	// true when this call set it.
	IncrementOpen(ctx context.Context, id string, at time.Time) (first bool, err error)
	IncrementClick(ctx context.Context, id string, at time.Time) (first bool, err error)
}

// EventRepository appends to the engagement log.
type EventRepository interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}
