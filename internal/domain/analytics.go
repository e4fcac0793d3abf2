package domain

import "time"

// Summary holds unique-recipient counts per event type and the derived rates.
// Rates are computed against Delivered and always lie in [0, 1].
type Summary struct {
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Bounced      int     `json:"bounced"`
	Complained   int     `json:"complained"`
	Unsubscribed int     `json:"unsubscribed"`
	TotalOpens   int     `json:"total_opens"`
	TotalClicks  int     `json:"total_clicks"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// ClickStat is the per-URL click breakdown row.
type ClickStat struct {
	URL          string `json:"url"`
	Clicks       int    `json:"clicks"`
	UniqueClicks int    `json:"unique_clicks"`
}

// TimelineBucket counts raw opens and clicks inside one elapsed hour since
// send. Hour is zero-based; Label is the human form ("1h" for Hour 0).
type TimelineBucket struct {
	Hour   int    `json:"hour"`
	Label  string `json:"label"`
	Opens  int    `json:"opens"`
	Clicks int    `json:"clicks"`
}

// RecentEvent is a raw event prepared for the read API with a masked address.
type RecentEvent struct {
	Email      string    `json:"email"`
	Type       EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	URL        string    `json:"url,omitempty"`
}

// CampaignOverview is the campaign metadata slice embedded in a report.
type CampaignOverview struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	Status         CampaignStatus `json:"status"`
	SentAt         *time.Time     `json:"sent_at"`
	RecipientCount *int           `json:"recipient_count"`
}

// AnalyticsReport is the full analytics read model for one campaign.
type AnalyticsReport struct {
	Campaign     CampaignOverview `json:"campaign"`
	Summary      Summary          `json:"summary"`
	Clicks       []ClickStat      `json:"clicks"`
	Timeline     []TimelineBucket `json:"timeline"`
	RecentEvents []RecentEvent    `json:"recent_events"`
}
