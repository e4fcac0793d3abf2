package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func splitLink(t *testing.T, raw string) (kind, token, sig string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	require.Len(t, parts, 4)
	require.Equal(t, "t", parts[0])
	return parts[1], parts[2], parts[3]
}

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("secret", "https://t.example.com/")

	kind, token, sig := splitLink(t, s.ClickURL("c1", " Ann@Example.com", "https://shop.example.com/a?b=1|2"))
	assert.Equal(t, KindClick, kind)

	link, err := s.Verify(KindClick, token, sig)
	require.NoError(t, err)
	assert.Equal(t, "c1", link.CampaignID)
	assert.Equal(t, "ann@example.com", link.Email)
	assert.Equal(t, "https://shop.example.com/a?b=1|2", link.URL)
	assert.Equal(t, domain.EventClicked, link.EventType())
}

func TestSigner_UnsubscribeURL(t *testing.T) {
	s := NewSigner("secret", "https://t.example.com")
	raw := s.UnsubscribeURL("c1", "ann@example.com")
	assert.True(t, strings.HasPrefix(raw, "https://t.example.com/t/u/"))

	_, token, sig := splitLink(t, raw)
	link, err := s.Verify(KindUnsubscribe, token, sig)
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnsubscribed, link.EventType())
}

func TestSigner_RejectsTampering(t *testing.T) {
	s := NewSigner("secret", "https://t.example.com")
	_, token, sig := splitLink(t, s.OpenURL("c1", "ann@example.com"))

	_, err := s.Verify(KindOpen, token, sig+"x")
	assert.ErrorIs(t, err, ErrBadSignature)

	other := NewSigner("other", "https://t.example.com")
	_, err = other.Verify(KindOpen, token, sig)
	assert.ErrorIs(t, err, ErrBadSignature)

	forged, _ := s.Sign(Link{Kind: KindOpen, CampaignID: "c2", Email: "ann@example.com"})
	_, err = s.Verify(KindOpen, forged, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSigner_KindMustMatch(t *testing.T) {
	s := NewSigner("secret", "https://t.example.com")
	_, token, sig := splitLink(t, s.OpenURL("c1", "ann@example.com"))

	_, err := s.Verify(KindUnsubscribe, token, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}
