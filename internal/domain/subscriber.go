package domain

import "strings"

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Subscriber is one address in the external audience store. Source and Tags
// are opaque labels used only for segment matching.
type Subscriber struct {
	Email  string           `json:"email" db:"email"`
	Status SubscriberStatus `json:"status" db:"status"`
	Source string           `json:"source" db:"source"`
	Tags   []string         `json:"tags" db:"tags"`
}

// CanonicalEmail lower-cases and trims an address. All recipient identity
// comparisons go through this.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
