package analytics

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository counts funnel stages over campaigns created at or after since.
type Repository interface {
	FunnelCounts(ctx context.Context, since time.Time) (domain.FunnelCounts, error)
}
