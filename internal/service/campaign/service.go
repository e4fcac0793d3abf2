package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// DefaultFailureThreshold is the failure ratio above which a run fails the
// campaign.
const DefaultFailureThreshold = 0.5

// AudienceResolver materializes the recipients of an audience descriptor.
type AudienceResolver interface {
	Resolve(ctx context.Context, audience domain.Audience) ([]domain.Recipient, error)
}

// Dispatcher starts and stops delivery runs. Dispatch must return once the
// run is accepted; the run reports back through Service.Finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, c domain.Campaign, recipients []domain.Recipient) error
	Cancel(campaignID string) bool
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo       Repository
	resolver   AudienceResolver
	locker     distlock.Locker
	dispatcher Dispatcher
	threshold  float64
	now        func() time.Time
}

// NewService creates a campaign service. A nil locker serializes
// transitions inside this process only.
func NewService(repo Repository, resolver AudienceResolver, locker distlock.Locker) *Service {
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Service{
		repo:      repo,
		resolver:  resolver,
		locker:    locker,
		threshold: DefaultFailureThreshold,
		now:       time.Now,
	}
}

// SetDispatcher wires the delivery pipeline. The pipeline in turn reports to
// Finish, so it is attached after both are built.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// SetFailureThreshold overrides DefaultFailureThreshold.
func (s *Service) SetFailureThreshold(t float64) { s.threshold = t }

// FailureThreshold returns the ratio used to decide sent versus failed.
func (s *Service) FailureThreshold() float64 { return s.threshold }

// SetClock replaces time.Now, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "campaign:"+id)
	if err != nil {
		return nil, fmt.Errorf("lock campaign %s: %w", id, err)
	}
	return unlock, nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter with the total match count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	if err := f.Normalize(); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Subject      string          `json:"subject"`
	BodyRef      string          `json:"body_ref"`
	FromName     string          `json:"from_name"`
	FromEmail    string          `json:"from_email"`
	Audience     domain.Audience `json:"audience"`
	ScheduledFor *time.Time      `json:"scheduled_for"`
}

// Create validates and persists a new campaign. It starts in draft, or in
// scheduled when a future ScheduledFor is given.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if err := input.Audience.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:        uuid.New().String(),
		Subject:   input.Subject,
		BodyRef:   input.BodyRef,
		FromName:  input.FromName,
		FromEmail: input.FromEmail,
		Audience:  input.Audience,
		Status:    domain.CampaignDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.ScheduledFor != nil {
		if !input.ScheduledFor.After(now) {
			return nil, fmt.Errorf("%w: scheduled_for must be in the future", ErrValidation)
		}
		at := input.ScheduledFor.UTC()
		c.ScheduledFor = &at
		c.Status = domain.CampaignScheduled
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "status", c.Status)
	return c, nil
}

// UpdateInput holds the mutable fields. Nil fields are left unchanged.
// ScheduledFor reschedules an already scheduled campaign.
type UpdateInput struct {
	Subject      *string          `json:"subject"`
	BodyRef      *string          `json:"body_ref"`
	FromName     *string          `json:"from_name"`
	FromEmail    *string          `json:"from_email"`
	Audience     *domain.Audience `json:"audience"`
	ScheduledFor *time.Time       `json:"scheduled_for"`
}

// Update edits a draft or scheduled campaign.
func (s *Service) Update(ctx context.Context, id string, u UpdateInput) (*domain.Campaign, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Editable() {
		return nil, fmt.Errorf("update campaign in status %s: %w", c.Status, domain.ErrInvalidState)
	}

	if u.Subject != nil {
		if strings.TrimSpace(*u.Subject) == "" {
			return nil, fmt.Errorf("%w: subject is required", ErrValidation)
		}
		c.Subject = *u.Subject
	}
	if u.BodyRef != nil {
		c.BodyRef = *u.BodyRef
	}
	if u.FromName != nil {
		c.FromName = *u.FromName
	}
	if u.FromEmail != nil {
		c.FromEmail = *u.FromEmail
	}
	if u.Audience != nil {
		if err := u.Audience.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		c.Audience = *u.Audience
	}
	now := s.now().UTC()
	if u.ScheduledFor != nil {
		if c.Status != domain.CampaignScheduled {
			return nil, fmt.Errorf("reschedule campaign in status %s: %w", c.Status, domain.ErrInvalidState)
		}
		if !u.ScheduledFor.After(now) {
			return nil, fmt.Errorf("%w: scheduled_for must be in the future", ErrValidation)
		}
		at := u.ScheduledFor.UTC()
		c.ScheduledFor = &at
	}
	c.UpdatedAt = now

	if err := s.save(ctx, c, c.Status); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a draft or scheduled campaign.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.Status.Editable() {
		return fmt.Errorf("delete campaign in status %s: %w", c.Status, domain.ErrInvalidState)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return stateErr(err)
	}
	logger.Info("campaign deleted", "campaign_id", id)
	return nil
}

// Schedule moves a draft campaign to scheduled for a future time.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*domain.Campaign, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CampaignScheduled) {
		return nil, fmt.Errorf("schedule campaign in status %s: %w", c.Status, domain.ErrInvalidState)
	}
	now := s.now().UTC()
	if !at.After(now) {
		return nil, fmt.Errorf("%w: scheduled_for must be in the future", ErrValidation)
	}

	from := c.Status
	at = at.UTC()
	c.ScheduledFor = &at
	c.Status = domain.CampaignScheduled
	c.UpdatedAt = now
	if err := s.save(ctx, c, from); err != nil {
		return nil, err
	}
	logger.Info("campaign scheduled", "campaign_id", id, "scheduled_for", at)
	return c, nil
}

// Send resolves the audience and moves a draft or scheduled campaign to
// sending, then hands the recipients to the dispatcher. Calling Send on a
// campaign already past scheduled returns it unchanged. An empty audience
// leaves the campaign in (or returns it to) draft with ErrEmptyAudience.
func (s *Service) Send(ctx context.Context, id string) (*domain.Campaign, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CampaignSending) {
		return c, nil
	}

	recipients, err := s.resolver.Resolve(ctx, c.Audience)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	now := s.now().UTC()

	if len(recipients) == 0 {
		if c.Status == domain.CampaignScheduled {
			c.Status = domain.CampaignDraft
			c.ScheduledFor = nil
			c.UpdatedAt = now
			if err := s.save(ctx, c, domain.CampaignScheduled); err != nil {
				return nil, err
			}
		}
		logger.Warn("campaign audience empty", "campaign_id", id)
		return c, fmt.Errorf("send campaign %s: %w", id, domain.ErrEmptyAudience)
	}

	if err := s.repo.MarkSending(ctx, id, c.Status, now, len(recipients)); err != nil {
		return nil, stateErr(err)
	}
	count := len(recipients)
	c.Status = domain.CampaignSending
	c.SentAt = &now
	c.RecipientCount = &count
	c.UpdatedAt = now
	logger.Info("campaign sending", "campaign_id", id, "recipients", count)

	if s.dispatcher == nil {
		return c, nil
	}
	if err := s.dispatcher.Dispatch(ctx, *c, recipients); err != nil {
		// Nothing was dispatched, but sentAt is already fixed; the campaign
		// cannot return to draft.
		if tErr := s.repo.Transition(ctx, id, domain.CampaignSending, domain.CampaignFailed, s.now().UTC()); tErr != nil {
			logger.Error("campaign fail transition failed", "campaign_id", id, "error", tErr)
		}
		c.Status = domain.CampaignFailed
		return c, fmt.Errorf("dispatch campaign %s: %w", id, err)
	}
	return c, nil
}

// Cancel stops an in-flight send. Messages already handed to the transport
// are not revoked; the campaign moves to cancelled immediately.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CampaignCancelled) {
		return nil, fmt.Errorf("cancel campaign in status %s: %w", c.Status, domain.ErrInvalidState)
	}

	active := false
	if s.dispatcher != nil {
		active = s.dispatcher.Cancel(id)
	}
	now := s.now().UTC()
	if err := s.repo.Transition(ctx, id, domain.CampaignSending, domain.CampaignCancelled, now); err != nil {
		return nil, stateErr(err)
	}
	c.Status = domain.CampaignCancelled
	c.CompletedAt = &now
	c.UpdatedAt = now
	logger.Info("campaign cancelled", "campaign_id", id, "run_active", active)
	return c, nil
}

// Finish applies the outcome of a delivery run. It is a no-op when the
// campaign already left sending (cancelled, or resolved by the sweeper).
func (s *Service) Finish(ctx context.Context, id string, report domain.RunReport) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignSending {
		logger.Debug("campaign finish ignored", "campaign_id", id, "status", c.Status)
		return nil
	}

	next := report.FinalStatus(s.threshold)
	if err := s.repo.Transition(ctx, id, domain.CampaignSending, next, s.now().UTC()); err != nil {
		return stateErr(err)
	}
	logger.Info("campaign finished",
		"campaign_id", id,
		"status", next,
		"recipients", report.Recipients,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)
	return nil
}

func (s *Service) save(ctx context.Context, c *domain.Campaign, expect domain.CampaignStatus) error {
	if err := s.repo.Save(ctx, c, expect); err != nil {
		return stateErr(err)
	}
	return nil
}

// stateErr maps a lost compare-and-set to the public InvalidState error.
func stateErr(err error) error {
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	return err
}
