// Package audience turns a campaign's audience descriptor into a concrete,
// deduplicated recipient list at send time.
package audience

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SubscriberSource is the external audience store. It returns active
// subscribers and may pre-filter by the descriptor; the resolver re-applies
// the match either way.
type SubscriberSource interface {
	ActiveSubscribers(ctx context.Context, audience domain.Audience) ([]domain.Subscriber, error)
}

// SuppressionFilter reports which canonical addresses must be excluded.
type SuppressionFilter interface {
	Filter(ctx context.Context, emails []string) (map[string]bool, error)
}

// Resolver materializes recipients. It is stateless apart from its
// collaborators and safe for concurrent use.
type Resolver struct {
	source      SubscriberSource
	suppression SuppressionFilter
}

// NewResolver creates a resolver.
func NewResolver(source SubscriberSource, suppression SuppressionFilter) *Resolver {
	return &Resolver{source: source, suppression: suppression}
}

// Resolve returns the recipients of a, sorted by canonical email. The same
// descriptor over the same snapshot always yields the same list.
func (r *Resolver) Resolve(ctx context.Context, a domain.Audience) ([]domain.Recipient, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	subs, err := r.source.ActiveSubscribers(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	seen := make(map[string]struct{}, len(subs))
	emails := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.Status != domain.SubscriberActive || !a.Matches(s) {
			continue
		}
		email := domain.CanonicalEmail(s.Email)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}

	suppressed, err := r.suppression.Filter(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("check suppression: %w", err)
	}

	sort.Strings(emails)
	out := make([]domain.Recipient, 0, len(emails))
	for _, e := range emails {
		if suppressed[e] {
			continue
		}
		out = append(out, domain.Recipient{Email: e})
	}
	return out, nil
}
