package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// DefaultSchedulerPollInterval is how often due campaigns are checked.
const DefaultSchedulerPollInterval = 30 * time.Second

// schedulerBatch caps campaigns started per tick.
const schedulerBatch = 100

// CampaignStarter is the slice of the campaign service the scheduler needs.
type CampaignStarter interface {
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Send(ctx context.Context, id string) (*domain.Campaign, error)
}

// Scheduler starts scheduled campaigns once scheduled_for has passed.
type Scheduler struct {
	campaigns CampaignStarter
	now       func() time.Time
	periodic
}

// NewScheduler creates a scheduler. lock may be nil for a single instance.
func NewScheduler(campaigns CampaignStarter, interval time.Duration, lock distlock.DistLock) *Scheduler {
	if interval <= 0 {
		interval = DefaultSchedulerPollInterval
	}
	s := &Scheduler{campaigns: campaigns, now: time.Now}
	s.periodic = periodic{name: "scheduler", interval: interval, lock: lock, tick: s.startDue}
	return s
}

// Start begins polling.
func (s *Scheduler) Start() error { return s.start() }

// Stop ends polling and waits for the current tick.
func (s *Scheduler) Stop() { s.stop() }

// Tick runs one pass and returns how many campaigns were started.
func (s *Scheduler) Tick(ctx context.Context) (int, error) { return s.run(ctx) }

func (s *Scheduler) startDue(ctx context.Context) (int, error) {
	due := s.now().UTC()
	list, _, err := s.campaigns.List(ctx, campaign.ListFilter{
		Status:    domain.CampaignScheduled,
		DueBefore: &due,
		Sort:      campaign.SortScheduledFor,
		Limit:     schedulerBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list due campaigns: %w", err)
	}

	started := 0
	for _, c := range list {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		_, err := s.campaigns.Send(ctx, c.ID)
		switch {
		case err == nil:
			started++
		case errors.Is(err, domain.ErrEmptyAudience):
			logger.Warn("scheduled campaign has no recipients, reverted to draft", "campaign_id", c.ID)
		case errors.Is(err, domain.ErrInvalidState):
			logger.Debug("scheduled campaign already moved on", "campaign_id", c.ID)
		default:
			logger.Error("start scheduled campaign failed", "campaign_id", c.ID, "error", err)
		}
	}
	return started, nil
}
