package reply

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/delivery"
)

// CampaignRepository is the campaign access the processor needs.
type CampaignRepository interface {
	FindLatestByEmail(ctx context.Context, email string) (*domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error
	ListRetryDue(ctx context.Context, before time.Time) ([]*domain.Campaign, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}

type MessageRepository interface {
	Append(ctx context.Context, m *domain.ConversationMessage) error
}

// Classifier maps a cleaned reply to an intent and a next action.
type Classifier interface {
	Classify(ctx context.Context, req domain.ClassifierRequest) (*domain.ClassifierResult, error)
}

// Guard is the blocklist write side.
type Guard interface {
	Block(ctx context.Context, email string, reason domain.BlockReason, detail string) error
}

// Deliverer is the shared send path.
type Deliverer interface {
	Deliver(ctx context.Context, out delivery.Outbound) (delivery.Outcome, error)
}
