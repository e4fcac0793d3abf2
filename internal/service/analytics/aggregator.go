// Package analytics derives campaign reports from the engagement event log.
// Nothing here is stored; every report is recomputed from one snapshot.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/pii"
)

// DefaultRecentLimit caps the recent events page when the caller gives none.
const DefaultRecentLimit = 50

// MaxRecentLimit is the hard cap on the recent events page.
const MaxRecentLimit = 500

// CampaignReader loads campaign metadata.
type CampaignReader interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// EventReader reads the event log, possibly from a replica.
type EventReader interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error)
}

// Aggregator serves analytics reports. Safe for concurrent use.
type Aggregator struct {
	campaigns   CampaignReader
	events      EventReader
	recentLimit int
}

// NewAggregator creates an aggregator. recentLimit <= 0 uses DefaultRecentLimit.
func NewAggregator(campaigns CampaignReader, events EventReader, recentLimit int) *Aggregator {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Aggregator{campaigns: campaigns, events: events, recentLimit: recentLimit}
}

// Report builds the analytics report for a campaign. recent <= 0 uses the
// configured default.
func (a *Aggregator) Report(ctx context.Context, campaignID string, recent int) (*domain.AnalyticsReport, error) {
	c, err := a.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	evs, err := a.events.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if recent <= 0 {
		recent = a.recentLimit
	}
	if recent > MaxRecentLimit {
		recent = MaxRecentLimit
	}
	report := Compute(c, evs, recent)
	return &report, nil
}

// Compute derives a report from a campaign and its events. evs must be
// ordered by occurred_at then seq.
func Compute(c *domain.Campaign, evs []domain.EngagementEvent, recent int) domain.AnalyticsReport {
	return domain.AnalyticsReport{
		Campaign: domain.CampaignOverview{
			ID:             c.ID,
			Subject:        c.Subject,
			Status:         c.Status,
			SentAt:         c.SentAt,
			RecipientCount: c.RecipientCount,
		},
		Summary:      Summarize(evs),
		Clicks:       ClickBreakdown(evs),
		Timeline:     Timeline(c.SentAt, evs),
		RecentEvents: Recent(evs, recent),
	}
}

// Summarize counts unique recipients per event type and derives rates
// against delivered recipients.
func Summarize(evs []domain.EngagementEvent) domain.Summary {
	recipients := make(map[domain.EventType]map[string]struct{})
	var s domain.Summary
	for _, e := range evs {
		set, ok := recipients[e.Type]
		if !ok {
			set = make(map[string]struct{})
			recipients[e.Type] = set
		}
		set[e.Email] = struct{}{}
		switch e.Type {
		case domain.EventOpened:
			s.TotalOpens++
		case domain.EventClicked:
			s.TotalClicks++
		}
	}

	s.Delivered = len(recipients[domain.EventDelivered])
	s.Opened = len(recipients[domain.EventOpened])
	s.Clicked = len(recipients[domain.EventClicked])
	s.Bounced = len(recipients[domain.EventBounced])
	s.Complained = len(recipients[domain.EventComplained])
	s.Unsubscribed = len(recipients[domain.EventUnsubscribed])
	s.OpenRate = rate(s.Opened, s.Delivered)
	s.ClickRate = rate(s.Clicked, s.Delivered)
	return s
}

// rate is n/d clamped to [0, 1]; engagement can arrive for recipients whose
// delivered event has not been ingested yet.
func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}

// ClickBreakdown groups clicks by URL, ordered by clicks desc then URL.
func ClickBreakdown(evs []domain.EngagementEvent) []domain.ClickStat {
	type acc struct {
		clicks int
		who    map[string]struct{}
	}
	byURL := make(map[string]*acc)
	for _, e := range evs {
		if e.Type != domain.EventClicked {
			continue
		}
		u := e.URL()
		a, ok := byURL[u]
		if !ok {
			a = &acc{who: make(map[string]struct{})}
			byURL[u] = a
		}
		a.clicks++
		a.who[e.Email] = struct{}{}
	}

	out := make([]domain.ClickStat, 0, len(byURL))
	for u, a := range byURL {
		out = append(out, domain.ClickStat{URL: u, Clicks: a.clicks, UniqueClicks: len(a.who)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Timeline buckets raw opens and clicks by whole hours elapsed since sentAt.
// Events before sentAt land in the first bucket. Empty buckets are omitted.
func Timeline(sentAt *time.Time, evs []domain.EngagementEvent) []domain.TimelineBucket {
	if sentAt == nil {
		return []domain.TimelineBucket{}
	}
	buckets := make(map[int]*domain.TimelineBucket)
	for _, e := range evs {
		if e.Type != domain.EventOpened && e.Type != domain.EventClicked {
			continue
		}
		hour := int(e.OccurredAt.Sub(*sentAt) / time.Hour)
		if hour < 0 {
			hour = 0
		}
		b, ok := buckets[hour]
		if !ok {
			b = &domain.TimelineBucket{Hour: hour, Label: fmt.Sprintf("%dh", hour+1)}
			buckets[hour] = b
		}
		if e.Type == domain.EventOpened {
			b.Opens++
		} else {
			b.Clicks++
		}
	}

	out := make([]domain.TimelineBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}

// Recent returns up to limit events, most recent first, with masked emails.
func Recent(evs []domain.EngagementEvent, limit int) []domain.RecentEvent {
	if limit > len(evs) {
		limit = len(evs)
	}
	out := make([]domain.RecentEvent, 0, limit)
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		e := evs[i]
		out = append(out, domain.RecentEvent{
			Email:      pii.MaskEmail(e.Email),
			Type:       e.Type,
			OccurredAt: e.OccurredAt,
			URL:        e.URL(),
		})
	}
	return out
}
