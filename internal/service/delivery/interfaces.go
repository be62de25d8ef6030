package delivery

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sender sends a single email through a provider. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// Guard performs the pre-send blocklist check.
type Guard interface {
	IsBlocked(ctx context.Context, email string) (bool, error)
}

// Tracker rewrites links, adds the open pixel and builds the unsubscribe link.
type Tracker interface {
	Instrument(body, campaignID string) string
	RewriteLinks(body, campaignID string) string
	UnsubscribeURL(email string) string
}

// MessageRepository appends to the conversation log.
type MessageRepository interface {
	Append(ctx context.Context, m *domain.ConversationMessage) error
}

// CampaignRepository is used by SendInitial to load and mark campaigns.
type CampaignRepository interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error
}
