package compliance

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service implements blocklist business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	log  *logger.Entry
}

// NewService creates a compliance service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logger.With("component", "compliance")}
}

// IsBlocked reports whether email may not receive mail.
func (s *Service) IsBlocked(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmailRequired
	}
	return s.repo.IsBlocked(ctx, email)
}

// Block adds or updates a blocklist entry. Repeated calls are idempotent and
// the latest reason wins.
func (s *Service) Block(ctx context.Context, email string, reason domain.BlockReason, detail string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if !reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	if err := s.repo.Upsert(ctx, &domain.BlocklistEntry{Email: email, Reason: reason, Detail: detail}); err != nil {
		return fmt.Errorf("block %s: %w", logger.RedactEmail(email), err)
	}
	s.log.Info("address blocked", "email", email, "reason", string(reason))
	return nil
}

// Unblock removes an entry. Operator action only; automated paths never call it.
func (s *Service) Unblock(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if err := s.repo.Remove(ctx, email); err != nil {
		return err
	}
	s.log.Warn("address unblocked", "email", email)
	return nil
}

// List returns entries matching the filter and the unpaginated total.
func (s *Service) List(ctx context.Context, filter domain.BlocklistFilter) ([]domain.BlocklistEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// Stats is the blocklist size broken down by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes blocklist statistics for the control surface.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByReason(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByReason: make(map[string]int, len(counts))}
	for reason, n := range counts {
		stats.ByReason[string(reason)] = n
		stats.Total += n
	}
	return stats, nil
}
