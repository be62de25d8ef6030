package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// MessageRepo appends to outreach_conversation_messages.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Append(ctx context.Context, m *domain.ConversationMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_conversation_messages
			(id, campaign_id, direction, message_type, subject, body, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.CampaignID, m.Direction, m.Type, m.Subject, m.Body, nullIfEmpty(m.ProviderMessageID), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append conversation message: %w", err)
	}
	return nil
}

// ListByCampaign returns the thread in send order.
func (r *MessageRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.ConversationMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, direction, message_type, COALESCE(subject,''), body,
		       COALESCE(provider_message_id,''), created_at
		FROM outreach_conversation_messages
		WHERE campaign_id = $1
		ORDER BY created_at
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationMessage
	for rows.Next() {
		var m domain.ConversationMessage
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Direction, &m.Type, &m.Subject, &m.Body,
			&m.ProviderMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
