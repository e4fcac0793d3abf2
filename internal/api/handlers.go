package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/service/analytics"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/events"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// Deps are the services behind the engine API.
type Deps struct {
	Campaigns    *campaign.Service
	Analytics    *analytics.Aggregator
	Deliveries   *delivery.Service
	Ingestor     *events.Ingestor
	Suppressions *suppression.Service
	Health       *HealthChecker
}

// Handlers holds the HTTP handlers for the engine API.
type Handlers struct {
	campaigns    *campaign.Service
	analytics    *analytics.Aggregator
	deliveries   *delivery.Service
	ingestor     *events.Ingestor
	suppressions *suppression.Service
	health       *HealthChecker

	// confirmSNS visits an SNS SubscribeURL. Replaced in tests.
	confirmSNS func(ctx context.Context, subscribeURL string) error
}

// NewHandlers creates handlers over d.
func NewHandlers(d Deps) *Handlers {
	if d.Health == nil {
		d.Health = NewHealthChecker(nil, nil, nil)
	}
	return &Handlers{
		campaigns:    d.Campaigns,
		analytics:    d.Analytics,
		deliveries:   d.Deliveries,
		ingestor:     d.Ingestor,
		suppressions: d.Suppressions,
		health:       d.Health,
		confirmSNS:   confirmSubscription,
	}
}

var snsClient = &http.Client{Timeout: 10 * time.Second}

// confirmSubscription GETs an SNS SubscribeURL. Only https URLs on an
// amazonaws.com host are followed.
func confirmSubscription(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(subscribeURL)
	if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("refusing subscribe url %q", subscribeURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := snsClient.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}
