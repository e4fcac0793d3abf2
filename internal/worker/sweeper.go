package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// Sweeper defaults.
const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultStuckAfter    = time.Hour
)

// CampaignFinisher is the slice of the campaign service the sweeper needs.
type CampaignFinisher interface {
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Finish(ctx context.Context, id string, report domain.RunReport) error
}

// DeliveryCounter aggregates delivery rows per campaign.
type DeliveryCounter interface {
	Counts(ctx context.Context, campaignID string) (domain.DeliveryCounts, error)
}

// RunTracker reports runs still in flight in this process.
type RunTracker interface {
	Running() []string
}

// Sweeper resolves campaigns left in sending with no live run, typically
// after a crash. The outcome is rebuilt from stored delivery rows; recipients
// with no row, or a row still pending, count as failed.
type Sweeper struct {
	campaigns  CampaignFinisher
	deliveries DeliveryCounter
	runs       RunTracker
	stuckAfter time.Duration
	now        func() time.Time
	periodic
}

// NewSweeper creates a sweeper. lock may be nil for a single instance.
func NewSweeper(campaigns CampaignFinisher, deliveries DeliveryCounter, runs RunTracker, interval, stuckAfter time.Duration, lock distlock.DistLock) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	s := &Sweeper{campaigns: campaigns, deliveries: deliveries, runs: runs, stuckAfter: stuckAfter, now: time.Now}
	s.periodic = periodic{name: "sweeper", interval: interval, lock: lock, tick: s.sweep}
	return s
}

// Start begins sweeping.
func (s *Sweeper) Start() error { return s.start() }

// Stop ends sweeping and waits for the current tick.
func (s *Sweeper) Stop() { s.stop() }

// Tick runs one pass and returns how many campaigns were resolved.
func (s *Sweeper) Tick(ctx context.Context) (int, error) { return s.run(ctx) }

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.stuckAfter)
	list, _, err := s.campaigns.List(ctx, campaign.ListFilter{
		Status:     domain.CampaignSending,
		SentBefore: &cutoff,
		Sort:       campaign.SortCreatedAsc,
	})
	if err != nil {
		return 0, fmt.Errorf("list sending campaigns: %w", err)
	}

	live := make(map[string]bool)
	if s.runs != nil {
		for _, id := range s.runs.Running() {
			live[id] = true
		}
	}

	resolved := 0
	for _, c := range list {
		if live[c.ID] {
			continue
		}
		counts, err := s.deliveries.Counts(ctx, c.ID)
		if err != nil {
			logger.Error("sweep counts failed", "campaign_id", c.ID, "error", err)
			continue
		}
		report := counts.Report()
		if c.RecipientCount != nil && *c.RecipientCount > report.Recipients {
			report.Failed += *c.RecipientCount - report.Recipients
			report.Recipients = *c.RecipientCount
		}
		if err := s.campaigns.Finish(ctx, c.ID, report); err != nil {
			logger.Error("sweep finish failed", "campaign_id", c.ID, "error", err)
			continue
		}
		logger.Warn("stuck campaign resolved", "campaign_id", c.ID, "delivered", report.Delivered, "failed", report.Failed)
		resolved++
	}
	return resolved, nil
}
