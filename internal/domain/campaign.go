package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// transitions lists every permitted status edge. Anything absent is rejected.
var transitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignSending},
	CampaignScheduled: {CampaignSending},
	CampaignSending:   {CampaignSent, CampaignFailed, CampaignCancelled},
}

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine has an edge from s to next.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Editable reports whether a campaign in this status may be updated or deleted.
func (s CampaignStatus) Editable() bool {
	return s == CampaignDraft || s == CampaignScheduled
}

// IsTerminal returns true if no further transition is possible.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignSent || s == CampaignFailed || s == CampaignCancelled
}

// AudienceKind selects how recipients are chosen.
type AudienceKind string

const (
	AudienceAll     AudienceKind = "all"
	AudienceSegment AudienceKind = "segment"
)

// Audience describes who receives a campaign. For segments, Sources and Tags
// are each OR'd internally and AND'd together; an empty group matches any.
type Audience struct {
	Kind    AudienceKind `json:"kind"`
	Sources []string     `json:"sources,omitempty"`
	Tags    []string     `json:"tags,omitempty"`
}

// Validate checks the descriptor shape.
func (a Audience) Validate() error {
	switch a.Kind {
	case AudienceAll, AudienceSegment:
		return nil
	}
	return ErrInvalidAudience
}

// Matches reports whether a subscriber falls inside the audience. It does not
// look at subscription status; callers filter inactive subscribers first.
func (a Audience) Matches(s Subscriber) bool {
	if a.Kind == AudienceAll {
		return true
	}
	return matchAny(a.Sources, []string{s.Source}) && matchAny(a.Tags, s.Tags)
}

func matchAny(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// Campaign is a single outbound email broadcast with its own lifecycle.
// SentAt and RecipientCount are write-once: they stay nil until the campaign
// enters sending and never change afterwards.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	Subject        string         `json:"subject" db:"subject"`
	BodyRef        string         `json:"body_ref" db:"body_ref"`
	FromName       string         `json:"from_name" db:"from_name"`
	FromEmail      string         `json:"from_email" db:"from_email"`
	Audience       Audience       `json:"audience" db:"-"`
	Status         CampaignStatus `json:"status" db:"status"`
	ScheduledFor   *time.Time     `json:"scheduled_for" db:"scheduled_for"`
	SentAt         *time.Time     `json:"sent_at" db:"sent_at"`
	RecipientCount *int           `json:"recipient_count" db:"recipient_count"`
	CompletedAt    *time.Time     `json:"completed_at" db:"completed_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status.IsTerminal()
}
