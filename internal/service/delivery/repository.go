// Package delivery exposes per-recipient delivery records: the rows the
// pipeline writes for every dispatched recipient and the read side used by
// the inspection endpoint, the event ingestor and the stuck-send sweeper.
package delivery

import (
	"context"
	"errors"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Sentinel errors for the delivery service layer.
var (
	ErrNotFound      = errors.New("delivery record not found")
	ErrInvalidFilter = errors.New("invalid delivery filter")
)

// Repository defines the data access contract for delivery records.
// Rows are unique per (campaign_id, email) and never deleted.
type Repository interface {
	// Begin inserts a pending row. created is false when a row for the pair
	// already exists, in which case nothing is written.
	Begin(ctx context.Context, d *domain.RecipientDelivery) (created bool, err error)

	// Complete writes the terminal outcome, attempt count, last error and
	// provider message id of d.
	Complete(ctx context.Context, d *domain.RecipientDelivery) error

	// Get returns the row for a (campaign, email) pair or ErrNotFound.
	Get(ctx context.Context, campaignID, email string) (*domain.RecipientDelivery, error)

	// SetOutcome overwrites the outcome of an existing row.
	SetOutcome(ctx context.Context, campaignID, email string, outcome domain.DeliveryOutcome) error

	// List returns one page of rows for a campaign ordered by email.
	List(ctx context.Context, filter ListFilter) ([]domain.RecipientDelivery, int, error)

	// Counts aggregates rows for a campaign by outcome.
	Counts(ctx context.Context, campaignID string) (domain.DeliveryCounts, error)
}

// ListFilter selects delivery rows. Outcome "pending" selects rows without
// a terminal outcome.
type ListFilter struct {
	CampaignID string
	Outcome    string
	Limit      int
	Offset     int
}

// OutcomePending is the filter value for rows still awaiting an outcome.
const OutcomePending = "pending"
