// Package tracking serves signed open, click and unsubscribe links and moves
// the resulting notifications into the event log, either directly or through
// an SQS queue drained by Consumer. It also maps SES notifications delivered
// over SNS onto engagement events.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/ignite/campaign-engine/internal/domain"
)

// ErrBadSignature is returned when a link token fails verification.
var ErrBadSignature = errors.New("tracking: bad link signature")

// Link kinds carried in a token.
const (
	KindOpen        = "o"
	KindClick       = "c"
	KindUnsubscribe = "u"
)

// Link is the decoded payload of a tracking token.
type Link struct {
	Kind       string
	CampaignID string
	Email      string
	URL        string
}

// EventType maps the link kind to the event it records.
func (l Link) EventType() domain.EventType {
	switch l.Kind {
	case KindOpen:
		return domain.EventOpened
	case KindClick:
		return domain.EventClicked
	case KindUnsubscribe:
		return domain.EventUnsubscribed
	}
	return ""
}

// Signer issues and verifies HMAC-SHA256 tracking links.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner creates a signer. baseURL is the public origin of the tracking
// service, e.g. "https://t.example.com".
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL returns the pixel URL for one recipient.
func (s *Signer) OpenURL(campaignID, email string) string {
	return s.url(Link{Kind: KindOpen, CampaignID: campaignID, Email: email})
}

// ClickURL wraps target in a signed redirect.
func (s *Signer) ClickURL(campaignID, email, target string) string {
	return s.url(Link{Kind: KindClick, CampaignID: campaignID, Email: email, URL: target})
}

// UnsubscribeURL returns the one-click unsubscribe URL for one recipient.
func (s *Signer) UnsubscribeURL(campaignID, email string) string {
	return s.url(Link{Kind: KindUnsubscribe, CampaignID: campaignID, Email: email})
}

func (s *Signer) url(l Link) string {
	token, sig := s.Sign(l)
	return s.baseURL + "/t/" + l.Kind + "/" + token + "/" + sig
}

// Sign encodes l and returns the token and its signature.
func (s *Signer) Sign(l Link) (token, sig string) {
	payload := l.Kind + "|" + l.CampaignID + "|" + domain.CanonicalEmail(l.Email)
	if l.URL != "" {
		payload += "|" + l.URL
	}
	token = base64.RawURLEncoding.EncodeToString([]byte(payload))
	return token, s.mac(token)
}

// Verify checks sig against token and decodes it. kind must match the kind
// embedded in the token so a pixel token cannot be replayed as an
// unsubscribe.
func (s *Signer) Verify(kind, token, sig string) (Link, error) {
	if !hmac.Equal([]byte(sig), []byte(s.mac(token))) {
		return Link{}, ErrBadSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Link{}, ErrBadSignature
	}
	parts := strings.SplitN(string(raw), "|", 4)
	if len(parts) < 3 || parts[0] != kind {
		return Link{}, ErrBadSignature
	}
	l := Link{Kind: parts[0], CampaignID: parts[1], Email: parts[2]}
	if len(parts) == 4 {
		l.URL = parts[3]
	}
	if l.Kind == KindClick && l.URL == "" {
		return Link{}, ErrBadSignature
	}
	return l, nil
}

func (s *Signer) mac(token string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
