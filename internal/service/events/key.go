package events

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// onceDiscriminator keys event types a recipient can produce only once per
// campaign, so a synthesized delivered event and the provider's later
// confirmation collapse into one row.
const onceDiscriminator = "once"

// IdempotencyKey derives the deduplication identity of an event. email must
// already be canonical.
func IdempotencyKey(campaignID, email string, t domain.EventType, providerEventID string, at time.Time, meta map[string]string) string {
	h := sha256.New()
	for _, part := range []string{campaignID, email, string(t), discriminator(t, providerEventID, at, meta)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func discriminator(t domain.EventType, providerEventID string, at time.Time, meta map[string]string) string {
	if !t.Repeatable() {
		return onceDiscriminator
	}
	if providerEventID != "" {
		return "id:" + providerEventID
	}
	return "ts:" + contentHash(at, meta)
}

// contentHash hashes the timestamp and metadata in a stable key order.
func contentHash(at time.Time, meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(at.UTC().Format(time.RFC3339Nano))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(meta[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
