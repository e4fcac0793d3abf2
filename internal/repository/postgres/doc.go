// Package postgres implements the repositories on PostgreSQL via lib/pq.
// Status changes are conditional UPDATEs; uniqueness (delivery pair, event
// idempotency key, suppressed email) is enforced by the schema and
// surfaced through ON CONFLICT DO NOTHING.
package postgres

import (
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/events"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

var (
	_ campaign.Repository       = (*CampaignRepo)(nil)
	_ delivery.Repository       = (*DeliveryRepo)(nil)
	_ events.Repository         = (*EventRepo)(nil)
	_ suppression.Repository    = (*SuppressionRepo)(nil)
	_ audience.SubscriberSource = (*SubscriberRepo)(nil)
)
