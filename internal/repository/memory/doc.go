// Package memory provides in-process implementations of every repository.
// They back the "memory" database driver and the service tests. All types
// are safe for concurrent use and hand out copies, never internal pointers.
package memory

import (
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/events"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

var (
	_ campaign.Repository       = (*CampaignRepo)(nil)
	_ audience.SubscriberSource = (*SubscriberRepo)(nil)
	_ delivery.Repository       = (*DeliveryRepo)(nil)
	_ events.Repository         = (*EventRepo)(nil)
	_ suppression.Repository    = (*SuppressionRepo)(nil)
)
