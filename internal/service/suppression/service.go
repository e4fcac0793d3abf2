package suppression

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// IsSuppressed checks whether an email address is blocked from campaigns.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = domain.CanonicalEmail(email)
	if email == "" {
		return false, ErrInvalidEmail
	}
	set, err := s.repo.Suppressed(ctx, []string{email})
	if err != nil {
		return false, err
	}
	return set[email], nil
}

// Filter returns the suppressed subset of emails, keyed by canonical form.
func (s *Service) Filter(ctx context.Context, emails []string) (map[string]bool, error) {
	if len(emails) == 0 {
		return map[string]bool{}, nil
	}
	canon := make([]string, 0, len(emails))
	for _, e := range emails {
		canon = append(canon, domain.CanonicalEmail(e))
	}
	return s.repo.Suppressed(ctx, canon)
}

// Suppress adds an email to the global suppression list. Idempotent: if the
// email is already suppressed the existing record is preserved, except that
// an opt-out upgrades a manual entry.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, campaignID string) error {
	email = domain.CanonicalEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}

	added, err := s.repo.Suppress(ctx, &domain.Suppression{
		Email:      email,
		Reason:     reason,
		CampaignID: campaignID,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if added {
		logger.Info("email suppressed", "email", email, "reason", reason, "campaign_id", campaignID)
	}
	return nil
}

// Remove deletes a manually added suppression. Opt-out entries stay for good
// and return ErrOptOut; ErrNotFound if the email is not suppressed.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = domain.CanonicalEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	return s.repo.Remove(ctx, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}
