package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type nopDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *nopDispatcher) Dispatch(_ context.Context, c domain.Campaign, _ []domain.Recipient) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, c.ID)
	return nil
}

func (d *nopDispatcher) Cancel(string) bool { return false }

type stubLock struct {
	free     bool
	acquires int
	releases int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	return l.free, nil
}

func (l *stubLock) Release(context.Context) error {
	l.releases++
	return nil
}

type harness struct {
	svc        *campaign.Service
	subs       *memory.SubscriberRepo
	deliveries *memory.DeliveryRepo
	disp       *nopDispatcher
}

func newHarness(t *testing.T, emails ...string) *harness {
	t.Helper()
	var subs []domain.Subscriber
	for _, e := range emails {
		subs = append(subs, domain.Subscriber{Email: e, Status: domain.SubscriberActive})
	}
	subRepo := memory.NewSubscriberRepo(subs...)
	supp := suppression.NewService(memory.NewSuppressionRepo())
	svc := campaign.NewService(memory.NewCampaignRepo(), audience.NewResolver(subRepo, supp), nil)
	svc.SetClock(func() time.Time { return baseTime })
	disp := &nopDispatcher{}
	svc.SetDispatcher(disp)
	return &harness{svc: svc, subs: subRepo, deliveries: memory.NewDeliveryRepo(), disp: disp}
}

func (h *harness) scheduled(t *testing.T, at time.Time) *domain.Campaign {
	t.Helper()
	c, err := h.svc.Create(context.Background(), campaign.CreateInput{
		Subject: "Weekly", BodyRef: "<p>hi</p>", FromEmail: "news@shop.test",
		Audience: domain.Audience{Kind: domain.AudienceAll}, ScheduledFor: &at,
	})
	require.NoError(t, err)
	require.Equal(t, domain.CampaignScheduled, c.Status)
	return c
}

func TestScheduler_StartsDueCampaigns(t *testing.T) {
	h := newHarness(t, "ann@example.com", "bob@example.com")
	due := h.scheduled(t, baseTime.Add(30*time.Minute))
	later := h.scheduled(t, baseTime.Add(3*time.Hour))

	s := NewScheduler(h.svc, time.Minute, nil)
	s.now = func() time.Time { return baseTime.Add(time.Hour) }

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{due.ID}, h.disp.ids)

	got, err := h.svc.Get(context.Background(), later.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignScheduled, got.Status)

	got, err = h.svc.Get(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignSending, got.Status)
}

func TestScheduler_EmptyAudienceRevertsToDraft(t *testing.T) {
	h := newHarness(t)
	c := h.scheduled(t, baseTime.Add(time.Minute))

	s := NewScheduler(h.svc, time.Minute, nil)
	s.now = func() time.Time { return baseTime.Add(time.Hour) }

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := h.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, got.Status)
	assert.Nil(t, got.ScheduledFor)
}

func TestScheduler_SkipsWhenLockHeldElsewhere(t *testing.T) {
	h := newHarness(t, "ann@example.com")
	h.scheduled(t, baseTime.Add(time.Minute))

	lock := &stubLock{free: false}
	s := NewScheduler(h.svc, time.Minute, lock)
	s.now = func() time.Time { return baseTime.Add(time.Hour) }

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.disp.ids)
	assert.Equal(t, 1, lock.acquires)
	assert.Zero(t, lock.releases)

	lock.free = true
	n, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, lock.releases)
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t)
	s := NewScheduler(h.svc, 10*time.Millisecond, nil)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
}
