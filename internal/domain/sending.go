package domain

import "time"

// EmailMessage is the fully-resolved message handed to a transport. Body
// content comes from the campaign's body reference; rendering is not the
// engine's concern.
type EmailMessage struct {
	CampaignID string            `json:"campaign_id"`
	Email      string            `json:"email"`
	FromName   string            `json:"from_name"`
	FromEmail  string            `json:"from_email"`
	Subject    string            `json:"subject"`
	HTMLBody   string            `json:"html_body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by a transport after the provider accepted a message.
type SendResult struct {
	MessageID string    `json:"message_id"`
	Transport string    `json:"transport"`
	SentAt    time.Time `json:"sent_at"`
}
