package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (email, reason, campaign_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
			SET reason = EXCLUDED.reason, campaign_id = EXCLUDED.campaign_id, created_at = EXCLUDED.created_at
			WHERE suppressions.reason = $5 AND EXCLUDED.reason <> $5
	`, s.Email, s.Reason, s.CampaignID, s.CreatedAt, domain.ReasonManual)
	if err != nil {
		return false, fmt.Errorf("suppress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE email = $1 AND reason = $2`, email, domain.ReasonManual)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var reason domain.SuppressionReason
	err = r.db.QueryRowContext(ctx, `SELECT reason FROM suppressions WHERE email = $1`, email).Scan(&reason)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return suppression.ErrNotFound
	case err != nil:
		return fmt.Errorf("check suppression: %w", err)
	}
	return suppression.ErrOptOut
}

func (r *SuppressionRepo) Suppressed(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM suppressions WHERE email = ANY($1)`, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("check suppressions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[email] = true
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	cond := ""
	var args []interface{}
	if f.Reason != "" {
		args = append(args, f.Reason)
		cond = ` WHERE reason = $1`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	q := `SELECT email, reason, campaign_id, created_at FROM suppressions` + cond + ` ORDER BY created_at DESC, email`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, f.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	out := []domain.Suppression{}
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.Email, &s.Reason, &s.CampaignID, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
