package sending_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/retry"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/events"
	"github.com/ignite/campaign-engine/internal/service/sending"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport fails each address according to its script, then succeeds.
type scriptedTransport struct {
	mu       sync.Mutex
	calls    map[string]int
	script   map[string][]error
	inFlight int32
	peak     int32
	delay    time.Duration
	headers  map[string]map[string]string
}

func newTransport() *scriptedTransport {
	return &scriptedTransport{calls: map[string]int{}, script: map[string][]error{}, headers: map[string]map[string]string{}}
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	attempt := s.calls[msg.Email]
	s.calls[msg.Email]++
	s.headers[msg.Email] = msg.Headers
	var err error
	if script := s.script[msg.Email]; attempt < len(script) {
		err = script[attempt]
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &domain.SendResult{MessageID: "msg-" + msg.Email, Transport: "scripted", SentAt: time.Now()}, nil
}

type inlineBodies struct{ err error }

func (b inlineBodies) Body(_ context.Context, ref string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return "<p>" + ref + "</p>", nil
}

type completion struct {
	ch chan domain.RunReport
}

func (c *completion) Finish(_ context.Context, _ string, r domain.RunReport) error {
	c.ch <- r
	return nil
}

type links struct{}

func (links) UnsubscribeURL(campaignID, email string) string {
	return "https://t.example.com/u/" + campaignID + "/" + email
}

type fixture struct {
	pipe       *sending.Pipeline
	transport  *scriptedTransport
	deliveries *memory.DeliveryRepo
	events     *memory.EventRepo
	done       *completion
}

func newFixture(t *testing.T, workers int, transport *scriptedTransport, maxAttempts int) *fixture {
	t.Helper()
	deliveries := memory.NewDeliveryRepo()
	log := memory.NewEventRepo()
	ingestor := events.NewIngestor(log, delivery.NewService(deliveries), nil)
	done := &completion{ch: make(chan domain.RunReport, 1)}
	pipe := sending.NewPipeline(sending.Config{
		Workers:     workers,
		CallTimeout: time.Second,
		Retry:       &retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, transport, inlineBodies{}, sending.NewLocalLimiter(0, 1), deliveries, ingestor, done, links{})
	return &fixture{pipe: pipe, transport: transport, deliveries: deliveries, events: log, done: done}
}

func recipients(emails ...string) []domain.Recipient {
	out := make([]domain.Recipient, len(emails))
	for i, e := range emails {
		out[i] = domain.Recipient{Email: e}
	}
	return out
}

func (f *fixture) wait(t *testing.T) domain.RunReport {
	t.Helper()
	select {
	case r := <-f.done.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return domain.RunReport{}
	}
}

var camp = domain.Campaign{ID: "c1", Subject: "Hello", BodyRef: "spring", FromEmail: "shop@example.com", Status: domain.CampaignSending}

func TestPipeline_AllDelivered(t *testing.T) {
	f := newFixture(t, 2, newTransport(), 3)
	ctx := context.Background()

	require.NoError(t, f.pipe.Dispatch(ctx, camp, recipients("a@example.com", "b@example.com", "c@example.com")))
	report := f.wait(t)

	assert.Equal(t, domain.RunReport{Recipients: 3, Delivered: 3}, report)
	assert.Equal(t, domain.CampaignSent, report.FinalStatus(0.5))

	counts, err := f.deliveries.Counts(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryCounts{Total: 3, Delivered: 3}, counts)

	evs, err := f.events.ListByCampaign(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for _, e := range evs {
		assert.Equal(t, domain.EventDelivered, e.Type)
	}

	h := f.transport.headers["a@example.com"]
	assert.Equal(t, "<https://t.example.com/u/c1/a@example.com>", h["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", h["List-Unsubscribe-Post"])
}

func TestPipeline_RetriesTransientThenSucceeds(t *testing.T) {
	tr := newTransport()
	tr.script["a@example.com"] = []error{
		domain.Unavailable("503", errors.New("service unavailable")),
		domain.Unavailable("503", errors.New("service unavailable")),
	}
	f := newFixture(t, 1, tr, 3)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com")))
	report := f.wait(t)
	assert.Equal(t, 1, report.Delivered)

	row, err := f.deliveries.Get(context.Background(), "c1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDelivered, row.Outcome)
	assert.Equal(t, 3, row.Attempts)
	assert.Equal(t, "msg-a@example.com", row.ProviderMessageID)
}

func TestPipeline_TransientExhaustsCap(t *testing.T) {
	tr := newTransport()
	down := domain.Unavailable("timeout", errors.New("dial tcp: i/o timeout"))
	tr.script["a@example.com"] = []error{down, down, down, down}
	f := newFixture(t, 1, tr, 3)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com", "b@example.com")))
	report := f.wait(t)
	assert.Equal(t, domain.RunReport{Recipients: 2, Delivered: 1, Failed: 1}, report)

	row, _ := f.deliveries.Get(context.Background(), "c1", "a@example.com")
	assert.Equal(t, domain.OutcomeFailed, row.Outcome)
	assert.Equal(t, 3, row.Attempts)
	assert.Contains(t, row.LastError, "i/o timeout")
	assert.Equal(t, 3, tr.calls["a@example.com"])
}

func TestPipeline_RejectedNotRetried(t *testing.T) {
	tr := newTransport()
	tr.script["bad@example.com"] = []error{domain.Rejected("InvalidAddress", errors.New("mailbox does not exist"))}
	f := newFixture(t, 2, tr, 5)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("bad@example.com", "ok@example.com")))
	report := f.wait(t)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, tr.calls["bad@example.com"])

	rows, _, err := delivery.NewService(f.deliveries).List(context.Background(), delivery.ListFilter{CampaignID: "c1", Outcome: "failed"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ba***@example.com", rows[0].Email)
	assert.True(t, strings.Contains(rows[0].LastError, "InvalidAddress"))
}

func TestPipeline_TransportDownFailsCampaign(t *testing.T) {
	tr := newTransport()
	down := domain.Unavailable("conn", errors.New("connection refused"))
	for _, e := range []string{"a@example.com", "b@example.com"} {
		tr.script[e] = []error{down, down}
	}
	f := newFixture(t, 2, tr, 2)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com", "b@example.com")))
	report := f.wait(t)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, domain.CampaignFailed, report.FinalStatus(0.5))
	assert.Equal(t, 0, f.events.Len())
}

func TestPipeline_BoundedConcurrency(t *testing.T) {
	tr := newTransport()
	tr.delay = 10 * time.Millisecond
	f := newFixture(t, 3, tr, 1)

	var emails []string
	for i := 0; i < 20; i++ {
		emails = append(emails, string(rune('a'+i))+"@example.com")
	}
	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients(emails...)))
	report := f.wait(t)
	assert.Equal(t, 20, report.Delivered)
	assert.LessOrEqual(t, atomic.LoadInt32(&tr.peak), int32(3))
}

func TestPipeline_CancelStopsNewWork(t *testing.T) {
	tr := newTransport()
	tr.delay = 20 * time.Millisecond
	f := newFixture(t, 1, tr, 1)

	var emails []string
	for i := 0; i < 50; i++ {
		emails = append(emails, string(rune('a'+i%26))+string(rune('a'+i/26))+"@example.com")
	}
	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients(emails...)))
	time.Sleep(30 * time.Millisecond)
	assert.True(t, f.pipe.Active("c1"))
	assert.Equal(t, []string{"c1"}, f.pipe.Running())
	assert.True(t, f.pipe.Cancel("c1"))

	report := f.wait(t)
	assert.True(t, report.Cancelled)
	assert.Less(t, report.Delivered, 50)
	assert.Equal(t, 50, report.Recipients)
	assert.False(t, f.pipe.Active("c1"))
	assert.Empty(t, f.pipe.Running())
	assert.False(t, f.pipe.Cancel("c1"))

	counts, _ := f.deliveries.Counts(context.Background(), "c1")
	assert.Less(t, counts.Total, 50, "recipients never pulled have no delivery row")
	assert.Equal(t, 0, counts.Pending)
}

type downLimiter struct{ calls int32 }

func (l *downLimiter) Wait(context.Context) error {
	atomic.AddInt32(&l.calls, 1)
	return errors.New("redis: connection refused")
}

func TestPipeline_LimiterFailureRecordsEachRecipient(t *testing.T) {
	tr := newTransport()
	deliveries := memory.NewDeliveryRepo()
	done := &completion{ch: make(chan domain.RunReport, 1)}
	limiter := &downLimiter{}
	pipe := sending.NewPipeline(sending.Config{
		Workers: 2,
		Retry:   &retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, tr, inlineBodies{}, limiter, deliveries, nil, done, nil)

	require.NoError(t, pipe.Dispatch(context.Background(), camp, recipients("a@example.com", "b@example.com")))
	f := &fixture{done: done}
	assert.Equal(t, domain.RunReport{Recipients: 2, Failed: 2}, f.wait(t))

	for _, email := range []string{"a@example.com", "b@example.com"} {
		row, err := deliveries.Get(context.Background(), "c1", email)
		require.NoError(t, err, email)
		assert.Equal(t, domain.OutcomeFailed, row.Outcome)
		assert.Equal(t, 2, row.Attempts)
		assert.Contains(t, row.LastError, "connection refused")
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&limiter.calls))
	assert.Empty(t, tr.calls, "nothing reaches the transport without a token")
}

func TestPipeline_ShutdownLeavesCampaignForSweeper(t *testing.T) {
	tr := newTransport()
	tr.delay = 20 * time.Millisecond
	f := newFixture(t, 1, tr, 1)

	var emails []string
	for i := 0; i < 20; i++ {
		emails = append(emails, string(rune('a'+i))+"@example.com")
	}
	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients(emails...)))
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.pipe.Shutdown(ctx))
	assert.Empty(t, f.pipe.Running())

	select {
	case r := <-f.done.ch:
		t.Fatalf("shutdown must not finish the campaign, got %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	counts, _ := f.deliveries.Counts(context.Background(), "c1")
	assert.Less(t, counts.Total, 20)
	assert.Equal(t, 0, counts.Pending)
}

func TestPipeline_DispatchErrors(t *testing.T) {
	tr := newTransport()
	tr.delay = 50 * time.Millisecond
	f := newFixture(t, 1, tr, 1)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com")))
	assert.ErrorIs(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com")), sending.ErrAlreadyRunning)
	f.wait(t)
	f.pipe.Wait()

	broken := sending.NewPipeline(sending.Config{}, tr, inlineBodies{err: errors.New("no such key")}, nil, memory.NewDeliveryRepo(), nil, nil, nil)
	assert.Error(t, broken.Dispatch(context.Background(), camp, recipients("a@example.com")))
	assert.False(t, broken.Active("c1"))
}

func TestPipeline_SkipsAlreadyDispatched(t *testing.T) {
	tr := newTransport()
	f := newFixture(t, 1, tr, 1)
	_, err := f.deliveries.Begin(context.Background(), &domain.RecipientDelivery{CampaignID: "c1", Email: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, f.pipe.Dispatch(context.Background(), camp, recipients("a@example.com", "b@example.com")))
	report := f.wait(t)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 0, tr.calls["a@example.com"])
}
