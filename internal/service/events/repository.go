package events

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository is the append-only event log.
type Repository interface {
	// Append stores e unless an event with the same idempotency key exists.
	// On insert it assigns e.Seq and returns inserted=true.
	Append(ctx context.Context, e *domain.EngagementEvent) (inserted bool, err error)

	// ListByCampaign returns every event of a campaign ordered by
	// occurred_at, then seq.
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error)
}

// DeliveryLookup is the slice of the delivery records the ingestor needs.
type DeliveryLookup interface {
	Exists(ctx context.Context, campaignID, email string) (bool, error)
	MarkBounced(ctx context.Context, campaignID, email string) error
}

// Suppressor adds opted-out addresses to the global suppression list.
type Suppressor interface {
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, campaignID string) error
}
