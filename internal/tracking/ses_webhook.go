package tracking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SNS envelope types.
const (
	SNSNotification             = "Notification"
	SNSSubscriptionConfirmation = "SubscriptionConfirmation"
)

// CampaignTag is the SES message tag carrying the campaign id.
const CampaignTag = "campaign_id"

// SNSEnvelope is the outer SNS HTTP payload.
type SNSEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

// sesNotification covers both configuration-set event publishing
// ("eventType") and identity notifications ("notificationType").
type sesNotification struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID   string              `json:"messageId"`
		Timestamp   string              `json:"timestamp"`
		Destination []string            `json:"destination"`
		Tags        map[string][]string `json:"tags"`
	} `json:"mail"`
	Delivery struct {
		Timestamp  string   `json:"timestamp"`
		Recipients []string `json:"recipients"`
	} `json:"delivery"`
	Bounce struct {
		BounceType        string         `json:"bounceType"`
		BounceSubType     string         `json:"bounceSubType"`
		Timestamp         string         `json:"timestamp"`
		BouncedRecipients []sesRecipient `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint struct {
		Timestamp            string         `json:"timestamp"`
		ComplainedRecipients []sesRecipient `json:"complainedRecipients"`
	} `json:"complaint"`
	Open struct {
		Timestamp string `json:"timestamp"`
		UserAgent string `json:"userAgent"`
	} `json:"open"`
	Click struct {
		Timestamp string `json:"timestamp"`
		Link      string `json:"link"`
		UserAgent string `json:"userAgent"`
	} `json:"click"`
}

// ParseSNS decodes the SNS envelope.
func ParseSNS(body []byte) (SNSEnvelope, error) {
	var env SNSEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return SNSEnvelope{}, fmt.Errorf("%w: sns envelope: %v", domain.ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return SNSEnvelope{}, fmt.Errorf("%w: sns envelope without Type", domain.ErrMalformedEvent)
	}
	return env, nil
}

// SESEvents maps one SES notification onto engagement events, one per
// affected recipient. Transient bounces and unknown notification kinds
// yield no events. A notification without a campaign tag is malformed.
func SESEvents(message string) ([]domain.EventInput, error) {
	var n sesNotification
	if err := json.Unmarshal([]byte(message), &n); err != nil {
		return nil, fmt.Errorf("%w: ses notification: %v", domain.ErrMalformedEvent, err)
	}
	kind := n.EventType
	if kind == "" {
		kind = n.NotificationType
	}

	var (
		typ        domain.EventType
		recipients []string
		ts         string
		meta       = map[string]string{}
	)
	switch kind {
	case "Delivery":
		typ, recipients, ts = domain.EventDelivered, n.Delivery.Recipients, n.Delivery.Timestamp
	case "Bounce":
		if !strings.EqualFold(n.Bounce.BounceType, "Permanent") {
			return nil, nil
		}
		typ, ts = domain.EventBounced, n.Bounce.Timestamp
		recipients = addresses(n.Bounce.BouncedRecipients)
		meta["bounce_subtype"] = n.Bounce.BounceSubType
	case "Complaint":
		typ, ts = domain.EventComplained, n.Complaint.Timestamp
		recipients = addresses(n.Complaint.ComplainedRecipients)
	case "Open":
		typ, recipients, ts = domain.EventOpened, n.Mail.Destination, n.Open.Timestamp
		meta["device"] = detectDevice(n.Open.UserAgent)
	case "Click":
		typ, recipients, ts = domain.EventClicked, n.Mail.Destination, n.Click.Timestamp
		meta[domain.MetaURL] = n.Click.Link
		meta["device"] = detectDevice(n.Click.UserAgent)
	default:
		return nil, nil
	}

	campaignID := ""
	if tags := n.Mail.Tags[CampaignTag]; len(tags) > 0 {
		campaignID = tags[0]
	}
	if campaignID == "" {
		return nil, fmt.Errorf("%w: ses %s notification without %s tag", domain.ErrMalformedEvent, kind, CampaignTag)
	}

	at := parseSESTime(ts)
	if at.IsZero() {
		at = parseSESTime(n.Mail.Timestamp)
	}

	providerID := ""
	if typ.Repeatable() && n.Mail.MessageID != "" {
		providerID = n.Mail.MessageID + "/" + ts
	}

	out := make([]domain.EventInput, 0, len(recipients))
	for _, r := range recipients {
		m := make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
		out = append(out, domain.EventInput{
			CampaignID:      campaignID,
			Email:           r,
			Type:            typ,
			OccurredAt:      at,
			ProviderEventID: providerID,
			Metadata:        m,
		})
	}
	return out, nil
}

func addresses(rs []sesRecipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.EmailAddress)
	}
	return out
}

func parseSESTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
