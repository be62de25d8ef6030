package ingest

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// CampaignRepository is the subset of campaign storage the ingestor needs.
type CampaignRepository interface {
	FindLatestByEmail(ctx context.Context, email string) (*domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error
}

// EventRepository appends to the engagement log.
type EventRepository interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}

// Guard receives bounce and complaint blocks.
type Guard interface {
	Block(ctx context.Context, email string, reason domain.BlockReason, detail string) error
}

// Tracker applies opens and clicks.
type Tracker interface {
	RecordOpen(ctx context.Context, campaignID string, meta map[string]string) (bool, error)
	RecordClick(ctx context.Context, campaignID, target string, meta map[string]string) (tracking.ClickResult, error)
}
