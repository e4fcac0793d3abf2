package domain

import "time"

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonComplaint   SuppressionReason = "spam_complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual      SuppressionReason = "manual"
)

// OptOut reports whether the entry came from the recipient's own
// unsubscribe or complaint. Opt-out entries are permanent.
func (r SuppressionReason) OptOut() bool {
	return r == ReasonUnsubscribe || r == ReasonComplaint
}

// SuppressionReasonFor maps an opt-out event to its suppression reason.
// ok is false for events that do not suppress.
func SuppressionReasonFor(t EventType) (reason SuppressionReason, ok bool) {
	switch t {
	case EventUnsubscribed:
		return ReasonUnsubscribe, true
	case EventComplained:
		return ReasonComplaint, true
	}
	return "", false
}

// Suppression is a single entry in the global suppression list.
type Suppression struct {
	Email      string            `json:"email" db:"email"`
	Reason     SuppressionReason `json:"reason" db:"reason"`
	CampaignID string            `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
