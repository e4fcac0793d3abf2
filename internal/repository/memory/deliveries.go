package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/delivery"
)

// DeliveryRepo implements delivery.Repository.
type DeliveryRepo struct {
	mu   sync.RWMutex
	rows map[string]map[string]*domain.RecipientDelivery // campaign -> email -> row
}

// NewDeliveryRepo creates an empty delivery store.
func NewDeliveryRepo() *DeliveryRepo {
	return &DeliveryRepo{rows: make(map[string]map[string]*domain.RecipientDelivery)}
}

func (r *DeliveryRepo) Begin(_ context.Context, d *domain.RecipientDelivery) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byEmail, ok := r.rows[d.CampaignID]
	if !ok {
		byEmail = make(map[string]*domain.RecipientDelivery)
		r.rows[d.CampaignID] = byEmail
	}
	if _, exists := byEmail[d.Email]; exists {
		return false, nil
	}
	cp := *d
	byEmail[d.Email] = &cp
	return true, nil
}

func (r *DeliveryRepo) Complete(_ context.Context, d *domain.RecipientDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[d.CampaignID][d.Email]
	if !ok {
		return delivery.ErrNotFound
	}
	row.Outcome = d.Outcome
	row.Attempts = d.Attempts
	row.LastError = d.LastError
	row.ProviderMessageID = d.ProviderMessageID
	return nil
}

func (r *DeliveryRepo) Get(_ context.Context, campaignID, email string) (*domain.RecipientDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[campaignID][email]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *DeliveryRepo) SetOutcome(_ context.Context, campaignID, email string, outcome domain.DeliveryOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[campaignID][email]
	if !ok {
		return delivery.ErrNotFound
	}
	row.Outcome = outcome
	return nil
}

func (r *DeliveryRepo) List(_ context.Context, f delivery.ListFilter) ([]domain.RecipientDelivery, int, error) {
	r.mu.RLock()
	var out []domain.RecipientDelivery
	for _, row := range r.rows[f.CampaignID] {
		switch {
		case f.Outcome == "":
		case f.Outcome == delivery.OutcomePending && row.Outcome == "":
		case string(row.Outcome) == f.Outcome:
		default:
			continue
		}
		out = append(out, *row)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	total := len(out)
	if f.Offset >= total {
		return []domain.RecipientDelivery{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return out[f.Offset:end], total, nil
}

func (r *DeliveryRepo) Counts(_ context.Context, campaignID string) (domain.DeliveryCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c domain.DeliveryCounts
	for _, row := range r.rows[campaignID] {
		c.Total++
		switch row.Outcome {
		case domain.OutcomeDelivered:
			c.Delivered++
		case domain.OutcomeBounced:
			c.Bounced++
		case domain.OutcomeFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c, nil
}
