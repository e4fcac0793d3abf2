package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
)

// EventRepo implements events.Repository. The unique index on
// idempotency_key makes Append exactly-once.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event log.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e *domain.EngagementEvent) (bool, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal event metadata: %w", err)
	}
	if e.Metadata == nil {
		meta = []byte("{}")
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO engagement_events
			(idempotency_key, campaign_id, email, event_type, occurred_at, provider_event_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING seq
	`, e.IdempotencyKey, e.CampaignID, e.Email, e.Type, e.OccurredAt, e.ProviderEventID, meta).Scan(&e.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return true, nil
}

func (r *EventRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, idempotency_key, campaign_id, email, event_type, occurred_at, provider_event_id, metadata
		FROM engagement_events
		WHERE campaign_id = $1
		ORDER BY occurred_at, seq
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementEvent
	for rows.Next() {
		var (
			e    domain.EngagementEvent
			meta []byte
		)
		if err := rows.Scan(&e.Seq, &e.IdempotencyKey, &e.CampaignID, &e.Email, &e.Type,
			&e.OccurredAt, &e.ProviderEventID, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
