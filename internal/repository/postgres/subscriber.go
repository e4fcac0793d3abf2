package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SubscriberRepo reads the audience store.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber source.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

// ActiveSubscribers returns active subscribers matching a, ordered by email.
// Segment groups are pushed into the query; an empty group matches any.
func (r *SubscriberRepo) ActiveSubscribers(ctx context.Context, a domain.Audience) ([]domain.Subscriber, error) {
	q := `SELECT email, status, source, tags FROM subscribers WHERE status = 'active'`
	var args []interface{}
	if a.Kind == domain.AudienceSegment {
		q += ` AND (cardinality($1::text[]) = 0 OR source = ANY($1))
		       AND (cardinality($2::text[]) = 0 OR tags && $2)`
		args = append(args, textArray(a.Sources), textArray(a.Tags))
	}
	q += ` ORDER BY email`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("active subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var (
			s    domain.Subscriber
			tags pq.StringArray
		)
		if err := rows.Scan(&s.Email, &s.Status, &s.Source, &tags); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		s.Tags = []string(tags)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert adds or replaces a subscriber keyed by canonical email.
func (r *SubscriberRepo) Upsert(ctx context.Context, s domain.Subscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, source, tags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET status = EXCLUDED.status, source = EXCLUDED.source, tags = EXCLUDED.tags
	`, domain.CanonicalEmail(s.Email), s.Status, s.Source, textArray(s.Tags))
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}
