package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository.
type SuppressionRepo struct {
	mu    sync.RWMutex
	store map[string]domain.Suppression
}

// NewSuppressionRepo creates an empty suppression list.
func NewSuppressionRepo() *SuppressionRepo {
	return &SuppressionRepo{store: make(map[string]domain.Suppression)}
}

func (r *SuppressionRepo) Suppress(_ context.Context, s *domain.Suppression) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.store[s.Email]; ok && (cur.Reason != domain.ReasonManual || !s.Reason.OptOut()) {
		return false, nil
	}
	r.store[s.Email] = *s
	return true, nil
}

func (r *SuppressionRepo) Remove(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[email]
	if !ok {
		return suppression.ErrNotFound
	}
	if cur.Reason.OptOut() {
		return suppression.ErrOptOut
	}
	delete(r.store, email)
	return nil
}

func (r *SuppressionRepo) Suppressed(_ context.Context, emails []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool)
	for _, e := range emails {
		if _, ok := r.store[e]; ok {
			out[e] = true
		}
	}
	return out, nil
}

func (r *SuppressionRepo) List(_ context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	r.mu.RLock()
	var out []domain.Suppression
	for _, s := range r.store {
		if f.Reason != "" && s.Reason != f.Reason {
			continue
		}
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	total := len(out)
	if f.Offset >= total {
		return []domain.Suppression{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return out[f.Offset:end], total, nil
}
