package memory

import (
	"context"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SubscriberRepo is an in-process audience store.
type SubscriberRepo struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscriber // keyed by canonical email
	// order keeps iteration deterministic
	order []string
}

// NewSubscriberRepo creates a store seeded with subs.
func NewSubscriberRepo(subs ...domain.Subscriber) *SubscriberRepo {
	r := &SubscriberRepo{subs: make(map[string]domain.Subscriber)}
	for _, s := range subs {
		_ = r.Upsert(context.Background(), s)
	}
	return r
}

// Upsert adds or replaces a subscriber.
func (r *SubscriberRepo) Upsert(_ context.Context, s domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.CanonicalEmail(s.Email)
	if _, ok := r.subs[key]; !ok {
		r.order = append(r.order, key)
	}
	s.Tags = append([]string(nil), s.Tags...)
	r.subs[key] = s
	return nil
}

// ActiveSubscribers returns active subscribers matching a.
func (r *SubscriberRepo) ActiveSubscribers(_ context.Context, a domain.Audience) ([]domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Subscriber, 0, len(r.order))
	for _, key := range r.order {
		s := r.subs[key]
		if s.Status != domain.SubscriberActive || !a.Matches(s) {
			continue
		}
		s.Tags = append([]string(nil), s.Tags...)
		out = append(out, s)
	}
	return out, nil
}
