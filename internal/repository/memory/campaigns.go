package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*domain.Campaign
}

// NewCampaignRepo creates an empty campaign store.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.Audience.Sources = append([]string(nil), c.Audience.Sources...)
	cp.Audience.Tags = append([]string(nil), c.Audience.Tags...)
	if c.ScheduledFor != nil {
		t := *c.ScheduledFor
		cp.ScheduledFor = &t
	}
	if c.SentAt != nil {
		t := *c.SentAt
		cp.SentAt = &t
	}
	if c.RecipientCount != nil {
		n := *c.RecipientCount
		cp.RecipientCount = &n
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.mu.RLock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.DueBefore != nil && (c.ScheduledFor == nil || c.ScheduledFor.After(*f.DueBefore)) {
			continue
		}
		if f.SentBefore != nil && (c.SentAt == nil || !c.SentAt.Before(*f.SentBefore)) {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(f.Sort, &out[i], &out[j]) })

	total := len(out)
	if f.Offset >= total {
		return []domain.Campaign{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return out[f.Offset:end], total, nil
}

// less mirrors the ORDER BY clauses of the postgres repository.
func less(sortKey string, a, b *domain.Campaign) bool {
	switch sortKey {
	case campaign.SortSubject:
		if a.Subject != b.Subject {
			return strings.ToLower(a.Subject) < strings.ToLower(b.Subject)
		}
	case campaign.SortStatus:
		if a.Status != b.Status {
			return a.Status < b.Status
		}
	case campaign.SortScheduledFor:
		at, bt := a.ScheduledFor, b.ScheduledFor
		switch {
		case at == nil && bt != nil:
			return false
		case at != nil && bt == nil:
			return true
		case at != nil && bt != nil && !at.Equal(*bt):
			return at.Before(*bt)
		}
	case campaign.SortCreatedAsc:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *CampaignRepo) Save(_ context.Context, c *domain.Campaign, expect domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.campaigns[c.ID]
	if !ok {
		return campaign.ErrNotFound
	}
	if cur.Status != expect {
		return campaign.ErrConflict
	}
	next := cloneCampaign(c)
	// write-once and lifecycle columns are not touched by Save
	next.SentAt, next.RecipientCount, next.CompletedAt, next.CreatedAt = cur.SentAt, cur.RecipientCount, cur.CompletedAt, cur.CreatedAt
	r.campaigns[c.ID] = next
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if !c.Status.Editable() {
		return campaign.ErrConflict
	}
	delete(r.campaigns, id)
	return nil
}

func (r *CampaignRepo) MarkSending(_ context.Context, id string, from domain.CampaignStatus, sentAt time.Time, recipients int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != from || c.SentAt != nil || c.RecipientCount != nil {
		return campaign.ErrConflict
	}
	at := sentAt
	n := recipients
	c.Status = domain.CampaignSending
	c.SentAt = &at
	c.RecipientCount = &n
	c.UpdatedAt = sentAt
	return nil
}

func (r *CampaignRepo) Transition(_ context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != from {
		return campaign.ErrConflict
	}
	c.Status = to
	c.UpdatedAt = at
	if to.IsTerminal() {
		t := at
		c.CompletedAt = &t
	}
	return nil
}
