// Package sending implements the delivery pipeline: paced, concurrent
// dispatch of one message per resolved recipient through an outbound
// transport, with a delivery record per recipient.
//
// Transports (SES, a generic HTTP send API, a log sink) implement Transport
// and classify failures with domain.Unavailable or domain.Rejected. The
// pipeline retries only transient failures.
package sending

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/events"
)

// Transport sends a single email. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Name() string
}

// BodySource resolves a campaign body reference to HTML.
type BodySource interface {
	Body(ctx context.Context, ref string) (string, error)
}

// Limiter enforces the shared rate ceiling. Wait blocks until one send may
// proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// DeliveryStore persists per-recipient delivery records.
type DeliveryStore interface {
	Begin(ctx context.Context, d *domain.RecipientDelivery) (bool, error)
	Complete(ctx context.Context, d *domain.RecipientDelivery) error
}

// EventSink receives the synthesized delivered event for each success.
type EventSink interface {
	Ingest(ctx context.Context, in domain.EventInput) (events.Result, error)
}

// CompletionSink receives the outcome of a run.
type CompletionSink interface {
	Finish(ctx context.Context, campaignID string, report domain.RunReport) error
}

// UnsubscribeLinker builds the per-recipient one-click unsubscribe URL.
type UnsubscribeLinker interface {
	UnsubscribeURL(campaignID, email string) string
}
