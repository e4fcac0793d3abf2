package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Result describes what happened to one ingested notification.
type Result struct {
	Event     domain.EngagementEvent `json:"event"`
	Duplicate bool                   `json:"duplicate"`
}

// Ingestor validates and appends engagement events. Safe for concurrent use.
type Ingestor struct {
	repo       Repository
	deliveries DeliveryLookup
	suppressor Suppressor
	now        func() time.Time
}

// NewIngestor creates an ingestor. suppressor may be nil when opt-outs are
// recorded elsewhere.
func NewIngestor(repo Repository, deliveries DeliveryLookup, suppressor Suppressor) *Ingestor {
	return &Ingestor{repo: repo, deliveries: deliveries, suppressor: suppressor, now: time.Now}
}

// Ingest records in exactly once. A repeated notification returns the
// stored identity with Duplicate set and no error.
func (i *Ingestor) Ingest(ctx context.Context, in domain.EventInput) (Result, error) {
	ev, err := i.normalize(in)
	if err != nil {
		return Result{}, err
	}

	known, err := i.deliveries.Exists(ctx, ev.CampaignID, ev.Email)
	if err != nil {
		return Result{}, fmt.Errorf("lookup delivery: %w", err)
	}
	if !known {
		return Result{}, fmt.Errorf("campaign %s: %w", ev.CampaignID, domain.ErrUnknownRecipient)
	}

	inserted, err := i.repo.Append(ctx, &ev)
	if err != nil {
		return Result{}, fmt.Errorf("append event: %w", err)
	}
	if !inserted {
		logger.Debug("duplicate event ignored", "campaign_id", ev.CampaignID, "event_type", ev.Type, "email", ev.Email)
		return Result{Event: ev, Duplicate: true}, nil
	}

	i.applySideEffects(ctx, ev)
	return Result{Event: ev}, nil
}

// normalize validates the input and builds the keyed event.
func (i *Ingestor) normalize(in domain.EventInput) (domain.EngagementEvent, error) {
	campaignID := strings.TrimSpace(in.CampaignID)
	email := domain.CanonicalEmail(in.Email)
	switch {
	case campaignID == "":
		return domain.EngagementEvent{}, fmt.Errorf("%w: campaign_id is required", domain.ErrMalformedEvent)
	case email == "" || !strings.Contains(email, "@"):
		return domain.EngagementEvent{}, fmt.Errorf("%w: email is required", domain.ErrMalformedEvent)
	case !in.Type.Valid():
		return domain.EngagementEvent{}, fmt.Errorf("%w: unknown event type %q", domain.ErrMalformedEvent, in.Type)
	}

	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	if in.Type == domain.EventClicked {
		link := strings.TrimSpace(meta[domain.MetaURL])
		if link == "" {
			return domain.EngagementEvent{}, fmt.Errorf("%w: clicked event without url", domain.ErrMalformedEvent)
		}
		if u, err := url.Parse(link); err != nil || u.Scheme == "" || u.Host == "" {
			return domain.EngagementEvent{}, fmt.Errorf("%w: clicked url %q is not absolute", domain.ErrMalformedEvent, link)
		}
		meta[domain.MetaURL] = link
	}

	at := in.OccurredAt
	if at.IsZero() {
		// an untimed repeatable event without a provider id has no stable key
		if in.Type.Repeatable() && strings.TrimSpace(in.ProviderEventID) == "" {
			return domain.EngagementEvent{}, fmt.Errorf("%w: %s event needs a timestamp or provider_event_id", domain.ErrMalformedEvent, in.Type)
		}
		at = i.now()
	}
	at = at.UTC()

	return domain.EngagementEvent{
		IdempotencyKey:  IdempotencyKey(campaignID, email, in.Type, in.ProviderEventID, at, meta),
		CampaignID:      campaignID,
		Email:           email,
		Type:            in.Type,
		OccurredAt:      at,
		ProviderEventID: in.ProviderEventID,
		Metadata:        meta,
	}, nil
}

// applySideEffects runs once per stored event. Failures are logged; the
// event itself is already durable.
func (i *Ingestor) applySideEffects(ctx context.Context, ev domain.EngagementEvent) {
	if reason, ok := domain.SuppressionReasonFor(ev.Type); ok && i.suppressor != nil {
		if err := i.suppressor.Suppress(ctx, ev.Email, reason, ev.CampaignID); err != nil {
			logger.Error("suppress after opt-out failed", "campaign_id", ev.CampaignID, "email", ev.Email, "error", err)
		}
	}
	if ev.Type == domain.EventBounced {
		if err := i.deliveries.MarkBounced(ctx, ev.CampaignID, ev.Email); err != nil {
			logger.Error("mark delivery bounced failed", "campaign_id", ev.CampaignID, "email", ev.Email, "error", err)
		}
	}
}
