package domain

import "time"

// DeliveryOutcome is the terminal result of dispatching to one recipient.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeBounced   DeliveryOutcome = "bounced"
	OutcomeFailed    DeliveryOutcome = "failed"
)

// Recipient is one entry of a resolved audience.
type Recipient struct {
	Email string `json:"email"`
}

// RecipientDelivery records the dispatch attempt for a (campaign, recipient)
// pair. Outcome is empty until the attempt reaches a terminal state.
type RecipientDelivery struct {
	ID                string          `json:"id" db:"id"`
	CampaignID        string          `json:"campaign_id" db:"campaign_id"`
	Email             string          `json:"email" db:"email"`
	Outcome           DeliveryOutcome `json:"outcome,omitempty" db:"outcome"`
	Attempts          int             `json:"attempts" db:"attempts"`
	LastError         string          `json:"last_error,omitempty" db:"last_error"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	AttemptedAt       time.Time       `json:"attempted_at" db:"attempted_at"`
}

// DeliveryCounts aggregates delivery rows for a campaign.
type DeliveryCounts struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Bounced   int `json:"bounced"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Report converts stored delivery rows into a run report. Rows still pending
// count as failures; bounced rows were dispatched and count as delivered.
func (c DeliveryCounts) Report() RunReport {
	return RunReport{
		Recipients: c.Total,
		Delivered:  c.Delivered + c.Bounced,
		Failed:     c.Failed + c.Pending,
	}
}

// RunReport is what a finished (or cancelled) delivery run hands back to the
// campaign lifecycle.
type RunReport struct {
	Recipients int  `json:"recipients"`
	Delivered  int  `json:"delivered"`
	Failed     int  `json:"failed"`
	Cancelled  bool `json:"cancelled"`
}

// FailureRatio is Failed / Recipients, 0 for an empty run.
func (r RunReport) FailureRatio() float64 {
	if r.Recipients == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Recipients)
}

// FinalStatus picks the terminal campaign status for the run. Zero deliveries
// means the transport was unreachable for the whole campaign.
func (r RunReport) FinalStatus(failureThreshold float64) CampaignStatus {
	switch {
	case r.Cancelled:
		return CampaignCancelled
	case r.Delivered == 0:
		return CampaignFailed
	case r.FailureRatio() > failureThreshold:
		return CampaignFailed
	default:
		return CampaignSent
	}
}
