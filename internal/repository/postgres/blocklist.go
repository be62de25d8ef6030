package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// BlocklistRepo stores blocked addresses in outreach_blocklist.
type BlocklistRepo struct{ db *sql.DB }

// NewBlocklistRepo creates a Postgres-backed blocklist repository.
func NewBlocklistRepo(db *sql.DB) *BlocklistRepo { return &BlocklistRepo{db: db} }

func (r *BlocklistRepo) IsBlocked(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM outreach_blocklist WHERE email = $1)`,
		domain.NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blocklist: %w", err)
	}
	return exists, nil
}

// Upsert inserts or overwrites the entry. The latest reason wins.
func (r *BlocklistRepo) Upsert(ctx context.Context, e *domain.BlocklistEntry) error {
	e.Email = domain.NormalizeEmail(e.Email)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO outreach_blocklist (email, reason, detail, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET reason = $2, detail = $3, updated_at = NOW()
		RETURNING created_at, updated_at
	`, e.Email, e.Reason, nullIfEmpty(e.Detail)).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert blocklist: %w", err)
	}
	return nil
}

func (r *BlocklistRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outreach_blocklist WHERE email = $1`,
		domain.NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("remove blocklist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BlocklistRepo) List(ctx context.Context, f domain.BlocklistFilter) ([]domain.BlocklistEntry, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.Reason != "" {
		where += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, f.Reason)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND email ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outreach_blocklist`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blocklist: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT email, reason, COALESCE(detail,''), created_at, updated_at FROM outreach_blocklist` + where +
		fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocklist: %w", err)
	}
	defer rows.Close()

	var out []domain.BlocklistEntry
	for rows.Next() {
		var e domain.BlocklistEntry
		if err := rows.Scan(&e.Email, &e.Reason, &e.Detail, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan blocklist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *BlocklistRepo) CountByReason(ctx context.Context) (map[domain.BlockReason]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM outreach_blocklist GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("count blocklist by reason: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.BlockReason]int)
	for rows.Next() {
		var reason domain.BlockReason
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}
