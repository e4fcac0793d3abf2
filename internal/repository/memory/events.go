package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
)

// EventRepo implements events.Repository as an append-only slice with a
// unique index on the idempotency key.
type EventRepo struct {
	mu   sync.RWMutex
	seq  int64
	keys map[string]struct{}
	log  map[string][]domain.EngagementEvent // by campaign, in insertion order
}

// NewEventRepo creates an empty event log.
func NewEventRepo() *EventRepo {
	return &EventRepo{
		keys: make(map[string]struct{}),
		log:  make(map[string][]domain.EngagementEvent),
	}
}

func (r *EventRepo) Append(_ context.Context, e *domain.EngagementEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.keys[e.IdempotencyKey]; dup {
		return false, nil
	}
	r.seq++
	e.Seq = r.seq
	r.keys[e.IdempotencyKey] = struct{}{}

	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	r.log[e.CampaignID] = append(r.log[e.CampaignID], cp)
	return true, nil
}

func (r *EventRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	r.mu.RLock()
	out := append([]domain.EngagementEvent(nil), r.log[campaignID]...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// Len returns the number of stored events across all campaigns.
func (r *EventRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}
