package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// SequenceRepo holds the default follow-up sequence.
type SequenceRepo struct {
	mu  sync.RWMutex
	def *domain.FollowupSequence
}

func NewSequenceRepo() *SequenceRepo { return &SequenceRepo{} }

func (r *SequenceRepo) GetDefault(_ context.Context) (*domain.FollowupSequence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil, domain.ErrNotFound
	}
	cp := *r.def
	cp.Steps = append([]domain.SequenceStep(nil), r.def.Steps...)
	return &cp, nil
}

// SaveDefault replaces the default sequence.
func (r *SequenceRepo) SaveDefault(_ context.Context, seq *domain.FollowupSequence) error {
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	seq.IsDefault = true
	cp := *seq
	cp.Steps = append([]domain.SequenceStep(nil), seq.Steps...)
	r.mu.Lock()
	r.def = &cp
	r.mu.Unlock()
	return nil
}
