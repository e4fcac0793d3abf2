package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/delivery"
)

// DeliveryRepo implements delivery.Repository against PostgreSQL.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery repository.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

const deliveryColumns = `id, campaign_id, email, COALESCE(outcome, ''), attempts,
	last_error, provider_message_id, attempted_at`

func scanDelivery(row rowScanner) (*domain.RecipientDelivery, error) {
	var d domain.RecipientDelivery
	if err := row.Scan(&d.ID, &d.CampaignID, &d.Email, &d.Outcome, &d.Attempts,
		&d.LastError, &d.ProviderMessageID, &d.AttemptedAt); err != nil {
		return nil, err
	}
	d.AttemptedAt = d.AttemptedAt.UTC()
	return &d, nil
}

func (r *DeliveryRepo) Begin(ctx context.Context, d *domain.RecipientDelivery) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recipient_deliveries (id, campaign_id, email, attempted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (campaign_id, email) DO NOTHING
	`, d.ID, d.CampaignID, d.Email, d.AttemptedAt)
	if err != nil {
		return false, fmt.Errorf("begin delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *DeliveryRepo) Complete(ctx context.Context, d *domain.RecipientDelivery) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipient_deliveries
		SET outcome = $3, attempts = $4, last_error = $5, provider_message_id = $6
		WHERE campaign_id = $1 AND email = $2
	`, d.CampaignID, d.Email, d.Outcome, d.Attempts, d.LastError, d.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("complete delivery: %w", err)
	}
	return affectedOrNotFound(res)
}

func (r *DeliveryRepo) Get(ctx context.Context, campaignID, email string) (*domain.RecipientDelivery, error) {
	d, err := scanDelivery(r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM recipient_deliveries WHERE campaign_id = $1 AND email = $2`,
		campaignID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepo) SetOutcome(ctx context.Context, campaignID, email string, outcome domain.DeliveryOutcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recipient_deliveries SET outcome = $3 WHERE campaign_id = $1 AND email = $2`,
		campaignID, email, outcome)
	if err != nil {
		return fmt.Errorf("set delivery outcome: %w", err)
	}
	return affectedOrNotFound(res)
}

func (r *DeliveryRepo) List(ctx context.Context, f delivery.ListFilter) ([]domain.RecipientDelivery, int, error) {
	cond := ` WHERE campaign_id = $1`
	args := []interface{}{f.CampaignID}
	switch f.Outcome {
	case "":
	case delivery.OutcomePending:
		cond += ` AND outcome IS NULL`
	default:
		args = append(args, f.Outcome)
		cond += ` AND outcome = $2`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipient_deliveries`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	q := `SELECT ` + deliveryColumns + ` FROM recipient_deliveries` + cond + ` ORDER BY email`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, f.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	out := []domain.RecipientDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *DeliveryRepo) Counts(ctx context.Context, campaignID string) (domain.DeliveryCounts, error) {
	var c domain.DeliveryCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE outcome = 'delivered'),
		       COUNT(*) FILTER (WHERE outcome = 'bounced'),
		       COUNT(*) FILTER (WHERE outcome = 'failed'),
		       COUNT(*) FILTER (WHERE outcome IS NULL)
		FROM recipient_deliveries WHERE campaign_id = $1
	`, campaignID).Scan(&c.Total, &c.Delivered, &c.Bounced, &c.Failed, &c.Pending)
	if err != nil {
		return domain.DeliveryCounts{}, fmt.Errorf("count delivery outcomes: %w", err)
	}
	return c, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return delivery.ErrNotFound
	}
	return nil
}
