package domain

import "time"

// EventType enumerates engagement and delivery facts.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
)

// MetaURL is the metadata key carrying a clicked link.
const MetaURL = "url"

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventDelivered, EventOpened, EventClicked, EventBounced, EventComplained, EventUnsubscribed:
		return true
	}
	return false
}

// Repeatable reports whether a recipient can legitimately produce the event
// more than once for the same campaign.
func (t EventType) Repeatable() bool {
	return t == EventOpened || t == EventClicked
}

// EngagementEvent is one immutable fact in the append-only event log.
// Seq is assigned by the store and breaks timestamp ties.
type EngagementEvent struct {
	Seq             int64             `json:"seq" db:"seq"`
	IdempotencyKey  string            `json:"-" db:"idempotency_key"`
	CampaignID      string            `json:"campaign_id" db:"campaign_id"`
	Email           string            `json:"email" db:"email"`
	Type            EventType         `json:"event_type" db:"event_type"`
	OccurredAt      time.Time         `json:"occurred_at" db:"occurred_at"`
	ProviderEventID string            `json:"provider_event_id,omitempty" db:"provider_event_id"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// URL returns the clicked link, if any.
func (e EngagementEvent) URL() string {
	return e.Metadata[MetaURL]
}

// EventInput is an inbound notification before validation and keying.
type EventInput struct {
	CampaignID      string            `json:"campaign_id"`
	Email           string            `json:"email"`
	Type            EventType         `json:"event_type"`
	OccurredAt      time.Time         `json:"timestamp"`
	ProviderEventID string            `json:"provider_event_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
