package engine

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// CampaignRepository is the union of campaign access used by the services
// the engine wires together. Both repository/postgres and
// repository/memory satisfy it.
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	FindLatestByEmail(ctx context.Context, email string) (*domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error
	IncrementOpen(ctx context.Context, id string, at time.Time) (bool, error)
	IncrementClick(ctx context.Context, id string, at time.Time) (bool, error)
	AdvanceFollowup(ctx context.Context, id string, expected, next domain.CampaignStatus, at time.Time) (bool, error)
	ListEligibleForFollowup(ctx context.Context) ([]*domain.Campaign, error)
	ListRetryDue(ctx context.Context, before time.Time) ([]*domain.Campaign, error)
	FunnelCounts(ctx context.Context, since time.Time) (domain.FunnelCounts, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}

type MessageRepository interface {
	Append(ctx context.Context, m *domain.ConversationMessage) error
}

type BlocklistRepository interface {
	IsBlocked(ctx context.Context, email string) (bool, error)
	Upsert(ctx context.Context, e *domain.BlocklistEntry) error
	Remove(ctx context.Context, email string) error
	List(ctx context.Context, f domain.BlocklistFilter) ([]domain.BlocklistEntry, int, error)
	CountByReason(ctx context.Context) (map[domain.BlockReason]int, error)
}

type SequenceRepository interface {
	GetDefault(ctx context.Context) (*domain.FollowupSequence, error)
	SaveDefault(ctx context.Context, seq *domain.FollowupSequence) error
}
