package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

const campaignColumns = `id, subject, body_ref, from_name, from_email,
	audience_kind, audience_sources, audience_tags, status,
	scheduled_for, sent_at, recipient_count, completed_at, created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c                          domain.Campaign
		scheduled, sent, completed sql.NullTime
		recipients                 sql.NullInt64
		sources, tags              pq.StringArray
	)
	if err := row.Scan(
		&c.ID, &c.Subject, &c.BodyRef, &c.FromName, &c.FromEmail,
		&c.Audience.Kind, &sources, &tags, &c.Status,
		&scheduled, &sent, &recipients, &completed, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Audience.Sources = []string(sources)
	c.Audience.Tags = []string(tags)
	c.ScheduledFor = timePtr(scheduled)
	c.SentAt = timePtr(sent)
	c.CompletedAt = timePtr(completed)
	if recipients.Valid {
		n := int(recipients.Int64)
		c.RecipientCount = &n
	}
	return &c, nil
}

// textArray never binds NULL; the array columns are NOT NULL.
func textArray(s []string) pq.StringArray {
	return append(pq.StringArray{}, s...)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// campaignOrder maps sort keys onto ORDER BY clauses. id breaks ties so
// pages are stable.
var campaignOrder = map[string]string{
	campaign.SortCreatedDesc:  "created_at DESC, id",
	campaign.SortCreatedAsc:   "created_at, id",
	campaign.SortSubject:      "LOWER(subject), id",
	campaign.SortStatus:       "status, id",
	campaign.SortScheduledFor: "scheduled_for NULLS LAST, id",
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	order, ok := campaignOrder[f.Sort]
	if !ok {
		order = campaignOrder[campaign.SortCreatedDesc]
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DueBefore != nil {
		add("scheduled_for <= $%d", *f.DueBefore)
	}
	if f.SentBefore != nil {
		add("sent_at < $%d", *f.SentBefore)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + cond + ` ORDER BY ` + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, f.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, subject, body_ref, from_name, from_email, audience_kind,
			 audience_sources, audience_tags, status, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.Subject, c.BodyRef, c.FromName, c.FromEmail, c.Audience.Kind,
		textArray(c.Audience.Sources), textArray(c.Audience.Tags), c.Status, c.ScheduledFor,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Save(ctx context.Context, c *domain.Campaign, expect domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			subject = $3, body_ref = $4, from_name = $5, from_email = $6,
			audience_kind = $7, audience_sources = $8, audience_tags = $9,
			status = $10, scheduled_for = $11, updated_at = $12
		WHERE id = $1 AND status = $2
	`, c.ID, expect, c.Subject, c.BodyRef, c.FromName, c.FromEmail,
		c.Audience.Kind, textArray(c.Audience.Sources), textArray(c.Audience.Tags),
		c.Status, c.ScheduledFor, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	return r.checkAffected(ctx, res, c.ID)
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND status IN ('draft', 'scheduled')`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *CampaignRepo) MarkSending(ctx context.Context, id string, from domain.CampaignStatus, sentAt time.Time, recipients int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', sent_at = $3, recipient_count = $4, updated_at = $3
		WHERE id = $1 AND status = $2 AND sent_at IS NULL AND recipient_count IS NULL
	`, id, from, sentAt, recipients)
	if err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *CampaignRepo) Transition(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	q := `UPDATE campaigns SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	if to.IsTerminal() {
		q = `UPDATE campaigns SET status = $3, updated_at = $4, completed_at = $4 WHERE id = $1 AND status = $2`
	}
	res, err := r.db.ExecContext(ctx, q, id, from, to, at)
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// checkAffected turns a conditional write that matched nothing into
// ErrNotFound or ErrConflict.
func (r *CampaignRepo) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrConflict
}
