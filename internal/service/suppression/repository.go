package suppression

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Emails are always passed in canonical form.
type Repository interface {
	// Suppress adds an email to the suppression list. An opt-out replaces an
	// existing manual entry; any other existing record is preserved and
	// added is false.
	Suppress(ctx context.Context, s *domain.Suppression) (added bool, err error)

	// Remove deletes a manual entry. Returns ErrNotFound if the email is not
	// listed and ErrOptOut if the entry came from an opt-out.
	Remove(ctx context.Context, email string) error

	// Suppressed returns the subset of emails that are on the list.
	Suppressed(ctx context.Context, emails []string) (map[string]bool, error)

	// List returns suppression entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason domain.SuppressionReason
	Limit  int
	Offset int
}
