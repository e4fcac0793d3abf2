package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// LogTransport accepts every message and only logs it. It backs local runs
// and demos where no provider is configured.
type LogTransport struct {
	sent int64
}

// NewLogTransport creates a log transport.
func NewLogTransport() *LogTransport { return &LogTransport{} }

func (t *LogTransport) Name() string { return "log" }

// Send logs msg and returns a random message id.
func (t *LogTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("cancelled", err)
	}
	atomic.AddInt64(&t.sent, 1)
	id := uuid.New().String()
	logger.Info("message accepted", "campaign_id", msg.CampaignID, "email", msg.Email, "subject", msg.Subject, "message_id", id)
	return &domain.SendResult{MessageID: id, Transport: "log", SentAt: time.Now().UTC()}, nil
}

// Sent returns how many messages were accepted.
func (t *LogTransport) Sent() int64 { return atomic.LoadInt64(&t.sent) }
