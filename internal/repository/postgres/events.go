package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// EventRepo appends to outreach_engagement_events.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e *domain.EngagementEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	if e.Metadata == nil {
		meta = []byte(`{}`)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO outreach_engagement_events (id, campaign_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.CampaignID, e.Type, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append engagement event: %w", err)
	}
	return nil
}

func (r *EventRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, event_type, metadata, created_at
		FROM outreach_engagement_events
		WHERE campaign_id = $1
		ORDER BY created_at
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list engagement events: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementEvent
	for rows.Next() {
		var e domain.EngagementEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Type, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engagement event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
