package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(email string, t domain.EventType, offset time.Duration, url string) domain.EngagementEvent {
	e := domain.EngagementEvent{CampaignID: "c1", Email: email, Type: t, OccurredAt: sentAt.Add(offset)}
	if url != "" {
		e.Metadata = map[string]string{domain.MetaURL: url}
	}
	return e
}

func TestSummarize_UniqueRecipientsAgainstDelivered(t *testing.T) {
	var evs []domain.EngagementEvent
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"} {
		evs = append(evs, ev(e, domain.EventDelivered, 0, ""))
	}
	evs = append(evs,
		ev("a@x.com", domain.EventOpened, time.Minute, ""),
		ev("a@x.com", domain.EventOpened, 2*time.Minute, ""),
		ev("b@x.com", domain.EventOpened, 3*time.Minute, ""),
		ev("a@x.com", domain.EventClicked, 4*time.Minute, "https://shop.example.com/a"),
		ev("e@x.com", domain.EventBounced, 0, ""),
		ev("c@x.com", domain.EventUnsubscribed, 5*time.Minute, ""),
	)

	s := Summarize(evs)
	assert.Equal(t, 4, s.Delivered)
	assert.Equal(t, 2, s.Opened)
	assert.Equal(t, 3, s.TotalOpens)
	assert.Equal(t, 1, s.Clicked)
	assert.Equal(t, 1, s.Bounced)
	assert.Equal(t, 1, s.Unsubscribed)
	assert.Equal(t, 0.5, s.OpenRate)
	assert.Equal(t, 0.25, s.ClickRate)
}

func TestSummarize_RatesBounded(t *testing.T) {
	s := Summarize([]domain.EngagementEvent{ev("a@x.com", domain.EventOpened, 0, "")})
	assert.Equal(t, 0.0, s.OpenRate, "no deliveries means zero rate")

	s = Summarize([]domain.EngagementEvent{
		ev("a@x.com", domain.EventDelivered, 0, ""),
		ev("a@x.com", domain.EventOpened, 0, ""),
		ev("b@x.com", domain.EventOpened, 0, ""),
	})
	assert.Equal(t, 1.0, s.OpenRate)
}

func TestSummarize_RateUsesDeliveredNotRecipients(t *testing.T) {
	var evs []domain.EngagementEvent
	for i := 0; i < 80; i++ {
		email := string(rune('a'+i%26)) + string(rune('a'+i/26)) + "@x.com"
		evs = append(evs, ev(email, domain.EventDelivered, 0, ""))
		if i < 40 {
			evs = append(evs, ev(email, domain.EventOpened, time.Minute, ""))
		}
	}
	s := Summarize(evs)
	assert.Equal(t, 80, s.Delivered)
	assert.Equal(t, 0.5, s.OpenRate)
}

func TestClickBreakdown(t *testing.T) {
	evs := []domain.EngagementEvent{
		ev("a@x.com", domain.EventClicked, 0, "https://b.example.com"),
		ev("a@x.com", domain.EventClicked, 0, "https://b.example.com"),
		ev("b@x.com", domain.EventClicked, 0, "https://b.example.com"),
		ev("a@x.com", domain.EventClicked, 0, "https://a.example.com"),
		ev("b@x.com", domain.EventClicked, 0, "https://c.example.com"),
		ev("c@x.com", domain.EventOpened, 0, ""),
	}
	got := ClickBreakdown(evs)
	require.Len(t, got, 3)
	assert.Equal(t, domain.ClickStat{URL: "https://b.example.com", Clicks: 3, UniqueClicks: 2}, got[0])
	assert.Equal(t, domain.ClickStat{URL: "https://a.example.com", Clicks: 1, UniqueClicks: 1}, got[1])
	assert.Equal(t, domain.ClickStat{URL: "https://c.example.com", Clicks: 1, UniqueClicks: 1}, got[2])
	for _, c := range got {
		assert.LessOrEqual(t, c.UniqueClicks, c.Clicks)
	}
}

func TestTimeline_SparseHourBuckets(t *testing.T) {
	evs := []domain.EngagementEvent{
		ev("a@x.com", domain.EventOpened, 10*time.Minute, ""),
		ev("a@x.com", domain.EventOpened, 50*time.Minute, ""),
		ev("b@x.com", domain.EventOpened, 70*time.Minute, ""),
		ev("b@x.com", domain.EventClicked, 5*time.Hour+time.Minute, "https://a.example.com"),
		ev("b@x.com", domain.EventDelivered, 0, ""),
	}
	got := Timeline(&sentAt, evs)
	assert.Equal(t, []domain.TimelineBucket{
		{Hour: 0, Label: "1h", Opens: 2},
		{Hour: 1, Label: "2h", Opens: 1},
		{Hour: 5, Label: "6h", Clicks: 1},
	}, got)
}

func TestTimeline_EarlyEventsAndUnsent(t *testing.T) {
	got := Timeline(&sentAt, []domain.EngagementEvent{ev("a@x.com", domain.EventOpened, -time.Minute, "")})
	assert.Equal(t, []domain.TimelineBucket{{Hour: 0, Label: "1h", Opens: 1}}, got)

	assert.Empty(t, Timeline(nil, []domain.EngagementEvent{ev("a@x.com", domain.EventOpened, 0, "")}))
}

func TestRecent_NewestFirstMaskedCapped(t *testing.T) {
	evs := []domain.EngagementEvent{
		ev("alice@example.com", domain.EventDelivered, 0, ""),
		ev("alice@example.com", domain.EventOpened, time.Minute, ""),
		ev("bob@example.com", domain.EventClicked, 2*time.Minute, "https://a.example.com"),
	}
	got := Recent(evs, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "bo***@example.com", got[0].Email)
	assert.Equal(t, domain.EventClicked, got[0].Type)
	assert.Equal(t, "https://a.example.com", got[0].URL)
	assert.Equal(t, "al***@example.com", got[1].Email)
	assert.Len(t, Recent(evs, 10), 3)
}

type stubCampaigns map[string]*domain.Campaign

func (s stubCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := s[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

type stubEvents []domain.EngagementEvent

func (s stubEvents) ListByCampaign(context.Context, string) ([]domain.EngagementEvent, error) {
	return s, nil
}

func TestAggregator_Report(t *testing.T) {
	count := 3
	c := &domain.Campaign{ID: "c1", Subject: "Spring sale", Status: domain.CampaignSent, SentAt: &sentAt, RecipientCount: &count}
	evs := stubEvents{
		ev("a@x.com", domain.EventDelivered, 0, ""),
		ev("b@x.com", domain.EventDelivered, 0, ""),
		ev("c@x.com", domain.EventDelivered, 0, ""),
		ev("a@x.com", domain.EventOpened, 10*time.Minute, ""),
	}

	agg := NewAggregator(stubCampaigns{"c1": c}, evs, 2)
	report, err := agg.Report(context.Background(), "c1", 0)
	require.NoError(t, err)

	assert.Equal(t, "Spring sale", report.Campaign.Subject)
	assert.Equal(t, 3, *report.Campaign.RecipientCount)
	assert.Equal(t, 3, report.Summary.Delivered)
	assert.InDelta(t, 1.0/3.0, report.Summary.OpenRate, 1e-9)
	assert.Len(t, report.RecentEvents, 2)
	assert.Empty(t, report.Clicks)

	_, err = agg.Report(context.Background(), "missing", 0)
	assert.Error(t, err)
}
