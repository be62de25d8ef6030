package compliance

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for the blocklist.
// Emails passed in are already normalized.
type Repository interface {
	IsBlocked(ctx context.Context, email string) (bool, error)

	// Upsert inserts the entry or overwrites reason and detail of an
	// existing one.
	Upsert(ctx context.Context, e *domain.BlocklistEntry) error

	// Remove deletes an entry. Returns domain.ErrNotFound if absent.
	Remove(ctx context.Context, email string) error

	List(ctx context.Context, filter domain.BlocklistFilter) ([]domain.BlocklistEntry, int, error)
	CountByReason(ctx context.Context) (map[domain.BlockReason]int, error)
}
