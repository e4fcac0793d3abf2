package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/pii"
)

// Service is the read side of delivery records plus the narrow write hooks
// the event ingestor needs.
type Service struct {
	repo Repository
}

// NewService creates a delivery service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Exists reports whether the pipeline ever dispatched to the pair.
func (s *Service) Exists(ctx context.Context, campaignID, email string) (bool, error) {
	_, err := s.repo.Get(ctx, campaignID, domain.CanonicalEmail(email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkBounced records a provider bounce against an earlier dispatch.
func (s *Service) MarkBounced(ctx context.Context, campaignID, email string) error {
	return s.repo.SetOutcome(ctx, campaignID, domain.CanonicalEmail(email), domain.OutcomeBounced)
}

// Counts aggregates the delivery rows of a campaign.
func (s *Service) Counts(ctx context.Context, campaignID string) (domain.DeliveryCounts, error) {
	return s.repo.Counts(ctx, campaignID)
}

// List returns delivery rows for inspection with masked email addresses.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.RecipientDelivery, int, error) {
	switch domain.DeliveryOutcome(filter.Outcome) {
	case "", domain.OutcomeDelivered, domain.OutcomeBounced, domain.OutcomeFailed, OutcomePending:
	default:
		return nil, 0, fmt.Errorf("%w: unknown outcome %q", ErrInvalidFilter, filter.Outcome)
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].Email = pii.MaskEmail(rows[i].Email)
	}
	return rows, total, nil
}
