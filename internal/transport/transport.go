// Package transport holds the outbound providers the delivery pipeline
// sends through, and the body stores that resolve campaign body references.
//
// Every transport classifies its failures: domain.Unavailable for errors
// worth retrying (timeouts, throttling, 5xx) and domain.Rejected for
// per-recipient failures that will not change on retry.
package transport

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/service/sending"
)

// New builds the transport selected by cfg.Kind.
func New(ctx context.Context, cfg config.TransportConfig) (sending.Transport, error) {
	switch cfg.Kind {
	case "ses":
		return NewSESTransport(ctx, cfg.SES)
	case "http":
		return NewHTTPTransport(cfg.HTTP.Endpoint, cfg.HTTP.APIKey, nil), nil
	case "log", "":
		return NewLogTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// NewBodySource builds the body store selected by cfg.Kind.
func NewBodySource(ctx context.Context, cfg config.BodyStoreConfig) (sending.BodySource, error) {
	switch cfg.Kind {
	case "s3":
		return NewS3BodyStore(ctx, cfg.Bucket, cfg.Region, cfg.Prefix)
	case "inline", "":
		return InlineBodies{}, nil
	default:
		return nil, fmt.Errorf("unknown body store kind %q", cfg.Kind)
	}
}
