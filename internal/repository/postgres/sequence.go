package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
)

// SequenceRepo stores follow-up sequences. Exactly one row is the default.
type SequenceRepo struct{ db *sql.DB }

func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

func (r *SequenceRepo) GetDefault(ctx context.Context) (*domain.FollowupSequence, error) {
	seq := &domain.FollowupSequence{}
	var steps []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_default, steps
		FROM outreach_followup_sequences
		WHERE is_default = true
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&seq.ID, &seq.Name, &seq.IsDefault, &steps)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default sequence: %w", err)
	}
	if err := json.Unmarshal(steps, &seq.Steps); err != nil {
		return nil, fmt.Errorf("decode sequence steps: %w", err)
	}
	return seq, nil
}

// SaveDefault inserts seq as the new default and demotes the previous one
// in a single transaction.
func (r *SequenceRepo) SaveDefault(ctx context.Context, seq *domain.FollowupSequence) error {
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	steps, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("encode sequence steps: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE outreach_followup_sequences SET is_default = false, updated_at = NOW() WHERE is_default = true`,
	); err != nil {
		return fmt.Errorf("demote default sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outreach_followup_sequences (id, name, is_default, steps, created_at, updated_at)
		VALUES ($1, $2, true, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET name = $2, is_default = true, steps = $3, updated_at = NOW()
	`, seq.ID, seq.Name, steps); err != nil {
		return fmt.Errorf("save default sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	seq.IsDefault = true
	return nil
}
