package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use. Every write that changes
// status is conditional on the expected current status and returns
// ErrConflict when it no longer holds.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns one page of campaigns matching the filter plus the total
	// number of matches, in the filter's deterministic order.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Save writes the editable fields, status and scheduled_for of c when the
	// stored status still equals expect.
	Save(ctx context.Context, c *domain.Campaign, expect domain.CampaignStatus) error

	// Delete removes a campaign while its status is draft or scheduled.
	Delete(ctx context.Context, id string) error

	// MarkSending moves the campaign from `from` to sending and sets sentAt
	// and recipientCount. Both are only written while still unset.
	MarkSending(ctx context.Context, id string, from domain.CampaignStatus, sentAt time.Time, recipients int) error

	// Transition moves the campaign from `from` to `to`. Terminal targets also
	// stamp completed_at.
	Transition(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error
}

// Sort orders accepted by ListFilter.
const (
	SortCreatedDesc  = "-created_at"
	SortCreatedAsc   = "created_at"
	SortSubject      = "subject"
	SortStatus       = "status"
	SortScheduledFor = "scheduled_for"
)

// ListFilter controls pagination and filtering for campaign lists. Results
// are always ordered by Sort and then by id so pages are stable.
type ListFilter struct {
	Status     domain.CampaignStatus
	DueBefore  *time.Time // scheduled_for <= DueBefore
	SentBefore *time.Time // sent_at < SentBefore
	Sort       string
	Limit      int
	Offset     int
}

// Normalize fills defaults and rejects unknown sort keys or statuses.
func (f *ListFilter) Normalize() error {
	switch f.Sort {
	case "":
		f.Sort = SortCreatedDesc
	case SortCreatedDesc, SortCreatedAsc, SortSubject, SortStatus, SortScheduledFor:
	default:
		return fmt.Errorf("%w: unknown sort %q", ErrValidation, f.Sort)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}
