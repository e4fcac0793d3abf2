package sending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/pkg/retry"
)

// ErrAlreadyRunning is returned when a campaign already has an active run.
var ErrAlreadyRunning = errors.New("delivery run already active for campaign")

// Config tunes a pipeline.
type Config struct {
	Workers     int
	CallTimeout time.Duration
	Retry       *retry.Policy
	// FinishTimeout bounds the completion callback after a run ends.
	FinishTimeout time.Duration
}

// Pipeline dispatches campaign runs. One Pipeline serves every campaign;
// the limiter is shared by all of its runs.
type Pipeline struct {
	cfg        Config
	transport  Transport
	bodies     BodySource
	limiter    Limiter
	deliveries DeliveryStore
	events     EventSink
	completion CompletionSink
	links      UnsubscribeLinker
	now        func() time.Time

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// NewPipeline creates a pipeline. links may be nil, in which case messages
// carry no List-Unsubscribe header.
func NewPipeline(cfg Config, transport Transport, bodies BodySource, limiter Limiter, deliveries DeliveryStore, events EventSink, completion CompletionSink, links UnsubscribeLinker) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = NewLocalLimiter(0, 1)
	}
	return &Pipeline{
		cfg:        cfg,
		transport:  transport,
		bodies:     bodies,
		limiter:    limiter,
		deliveries: deliveries,
		events:     events,
		completion: completion,
		links:      links,
		now:        time.Now,
		active:     make(map[string]context.CancelFunc),
	}
}

// Dispatch resolves the campaign body and starts the run in the background.
// It returns once the run is accepted; the run outlives ctx.
func (p *Pipeline) Dispatch(ctx context.Context, c domain.Campaign, recipients []domain.Recipient) error {
	body, err := p.bodies.Body(ctx, c.BodyRef)
	if err != nil {
		return fmt.Errorf("load body %q: %w", c.BodyRef, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if _, running := p.active[c.ID]; running {
		p.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	p.active[c.ID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.run(runCtx, c, body, recipients)
	}()
	return nil
}

// Cancel stops the campaign's run from pulling new work. It reports whether
// a run was active.
func (p *Pipeline) Cancel(campaignID string) bool {
	p.mu.Lock()
	cancel, ok := p.active[campaignID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether the campaign has a run in this process.
func (p *Pipeline) Active(campaignID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[campaignID]
	return ok
}

// Running lists the campaigns with a run in this process.
func (p *Pipeline) Running() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every run has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Shutdown cancels every active run and waits for them, or for ctx.
// Interrupted runs are not finished: their campaigns stay in sending until
// the sweeper settles them from the delivery records.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.stopping.Store(true)
	p.mu.Lock()
	for _, cancel := range p.active {
		cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) run(ctx context.Context, c domain.Campaign, body string, recipients []domain.Recipient) {
	log := logger.With("campaign_id", c.ID)
	start := p.now()
	log.Info("delivery run started", "recipients", len(recipients), "workers", p.cfg.Workers, "transport", p.transport.Name())

	jobs := make(chan domain.Recipient)
	var delivered int64
	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for r := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if p.deliver(ctx, c, body, r) {
					atomic.AddInt64(&delivered, 1)
				}
			}
		}()
	}

feed:
	for _, r := range recipients {
		select {
		case jobs <- r:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	workers.Wait()

	report := domain.RunReport{
		Recipients: len(recipients),
		Delivered:  int(delivered),
		Cancelled:  ctx.Err() != nil,
	}
	report.Failed = report.Recipients - report.Delivered

	p.mu.Lock()
	delete(p.active, c.ID)
	p.mu.Unlock()

	log.Info("delivery run finished",
		"delivered", report.Delivered,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"duration", p.now().Sub(start),
	)

	if p.completion == nil {
		return
	}
	if report.Cancelled && p.stopping.Load() {
		log.Warn("delivery run interrupted by shutdown, left for the sweeper")
		return
	}
	finishCtx, cancel := context.WithTimeout(context.Background(), p.cfg.FinishTimeout)
	defer cancel()
	if err := p.completion.Finish(finishCtx, c.ID, report); err != nil {
		log.Error("campaign completion failed", "error", err)
	}
}

// deliver dispatches to one recipient and records the outcome. It reports
// whether the transport accepted the message.
func (p *Pipeline) deliver(ctx context.Context, c domain.Campaign, body string, r domain.Recipient) bool {
	d := &domain.RecipientDelivery{
		ID:          uuid.New().String(),
		CampaignID:  c.ID,
		Email:       r.Email,
		AttemptedAt: p.now().UTC(),
	}
	created, err := p.deliveries.Begin(ctx, d)
	if err != nil {
		logger.Error("record delivery failed", "campaign_id", c.ID, "email", r.Email, "error", err)
		return false
	}
	if !created {
		logger.Warn("recipient already dispatched, skipping", "campaign_id", c.ID, "email", r.Email)
		return false
	}

	msg := p.buildMessage(c, body, r)
	var result *domain.SendResult
	attempts, sendErr := p.cfg.Retry.Do(ctx, isTransient, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.Unavailable("rate limiter", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
		res, err := p.transport.Send(callCtx, msg)
		if err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return domain.Unavailable("timeout", err)
			}
			return err
		}
		result = res
		return nil
	})
	d.Attempts = attempts

	// The run may be cancelled; the record still has to be written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()

	if sendErr != nil {
		d.Outcome = domain.OutcomeFailed
		d.LastError = sendErr.Error()
		if err := p.deliveries.Complete(writeCtx, d); err != nil {
			logger.Error("complete delivery failed", "campaign_id", c.ID, "email", r.Email, "error", err)
		}
		logger.Warn("delivery failed", "campaign_id", c.ID, "email", r.Email, "attempts", attempts, "error", sendErr)
		return false
	}

	d.Outcome = domain.OutcomeDelivered
	sentAt := p.now().UTC()
	if result != nil {
		d.ProviderMessageID = result.MessageID
		if !result.SentAt.IsZero() {
			sentAt = result.SentAt.UTC()
		}
	}
	if err := p.deliveries.Complete(writeCtx, d); err != nil {
		logger.Error("complete delivery failed", "campaign_id", c.ID, "email", r.Email, "error", err)
	}
	if p.events != nil {
		if _, err := p.events.Ingest(writeCtx, domain.EventInput{
			CampaignID:      c.ID,
			Email:           r.Email,
			Type:            domain.EventDelivered,
			OccurredAt:      sentAt,
			ProviderEventID: d.ProviderMessageID,
		}); err != nil {
			logger.Error("synthesize delivered event failed", "campaign_id", c.ID, "email", r.Email, "error", err)
		}
	}
	return true
}

func (p *Pipeline) buildMessage(c domain.Campaign, body string, r domain.Recipient) *domain.EmailMessage {
	msg := &domain.EmailMessage{
		CampaignID: c.ID,
		Email:      r.Email,
		FromName:   c.FromName,
		FromEmail:  c.FromEmail,
		Subject:    c.Subject,
		HTMLBody:   body,
		Headers:    map[string]string{},
	}
	if p.links != nil {
		msg.Headers["List-Unsubscribe"] = "<" + p.links.UnsubscribeURL(c.ID, r.Email) + ">"
		msg.Headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}
	return msg
}

// isTransient decides whether a failed attempt is retried. Unclassified
// errors are retried; transports mark permanent failures explicitly.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrTransportRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
