package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// BlocklistRepo is an in-memory blocklist keyed by normalized email.
type BlocklistRepo struct {
	mu    sync.RWMutex
	store map[string]*domain.BlocklistEntry
}

// NewBlocklistRepo creates an empty blocklist.
func NewBlocklistRepo() *BlocklistRepo {
	return &BlocklistRepo{store: make(map[string]*domain.BlocklistEntry)}
}

func (r *BlocklistRepo) IsBlocked(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.store[email]
	return ok, nil
}

// Upsert inserts or overwrites the entry. The latest reason wins.
func (r *BlocklistRepo) Upsert(_ context.Context, e *domain.BlocklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if cur, ok := r.store[e.Email]; ok {
		e.CreatedAt = cur.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := *e
	r.store[e.Email] = &cp
	return nil
}

func (r *BlocklistRepo) Remove(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[email]; !ok {
		return domain.ErrNotFound
	}
	delete(r.store, email)
	return nil
}

func (r *BlocklistRepo) List(_ context.Context, f domain.BlocklistFilter) ([]domain.BlocklistEntry, int, error) {
	r.mu.RLock()
	var all []domain.BlocklistEntry
	for _, e := range r.store {
		if f.Reason != "" && e.Reason != f.Reason {
			continue
		}
		if f.Search != "" && !strings.Contains(e.Email, strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, *e)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return nil, total, nil
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (r *BlocklistRepo) CountByReason(_ context.Context) (map[domain.BlockReason]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.BlockReason]int)
	for _, e := range r.store {
		out[e.Reason]++
	}
	return out, nil
}
