package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// EventRepo is an append-only in-memory engagement log.
type EventRepo struct {
	mu     sync.RWMutex
	events []domain.EngagementEvent
}

func NewEventRepo() *EventRepo { return &EventRepo{} }

func (r *EventRepo) Append(_ context.Context, e *domain.EngagementEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.events = append(r.events, *e)
	r.mu.Unlock()
	return nil
}

func (r *EventRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EngagementEvent
	for _, e := range r.events {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MessageRepo is an append-only in-memory conversation log.
type MessageRepo struct {
	mu       sync.RWMutex
	messages []domain.ConversationMessage
}

func NewMessageRepo() *MessageRepo { return &MessageRepo{} }

func (r *MessageRepo) Append(_ context.Context, m *domain.ConversationMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.messages = append(r.messages, *m)
	r.mu.Unlock()
	return nil
}

func (r *MessageRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ConversationMessage
	for _, m := range r.messages {
		if m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

// Len returns the number of stored messages.
func (r *MessageRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}
