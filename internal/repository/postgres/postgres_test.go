package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/delivery"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	t0           = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	campaignCols = []string{"id", "subject", "body_ref", "from_name", "from_email", "audience_kind", "audience_sources", "audience_tags", "status", "scheduled_for", "sent_at", "recipient_count", "completed_at", "created_at", "updated_at"}
	deliveryCols = []string{"id", "campaign_id", "email", "outcome", "attempts", "last_error", "provider_message_id", "attempted_at"}
)

// =============================================================================
// CAMPAIGNS
// =============================================================================

func TestCampaignRepo_Get(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("FROM campaigns WHERE id = $1")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			"c1", "Spring sale", "<p>hi</p>", "Shop", "news@shop.test", "segment", "{web}", "{vip,new}", "sending",
			nil, t0, int64(3), nil, t0, t0))

	c, err := NewCampaignRepo(db).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignSending, c.Status)
	assert.Equal(t, []string{"vip", "new"}, c.Audience.Tags)
	assert.Equal(t, []string{"web"}, c.Audience.Sources)
	require.NotNil(t, c.RecipientCount)
	assert.Equal(t, 3, *c.RecipientCount)
	require.NotNil(t, c.SentAt)
	assert.Nil(t, c.ScheduledFor)
	assert.Nil(t, c.CompletedAt)
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("FROM campaigns WHERE id = $1")).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := NewCampaignRepo(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepo_ListFiltersAndPages(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	due := t0.Add(time.Hour)
	mock.ExpectQuery(q("SELECT COUNT(*) FROM campaigns WHERE status = $1 AND scheduled_for <= $2")).
		WithArgs("scheduled", due).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q("ORDER BY scheduled_for NULLS LAST, id LIMIT $3 OFFSET $4")).
		WithArgs("scheduled", due, 10, 0).
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			"c1", "s", "b", "", "f@shop.test", "all", "{}", "{}", "scheduled",
			t0, nil, nil, nil, t0, t0))

	out, total, err := NewCampaignRepo(db).List(context.Background(), campaign.ListFilter{
		Status: domain.CampaignScheduled, DueBefore: &due, Sort: campaign.SortScheduledFor, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
	assert.Empty(t, out[0].Audience.Tags)
}

func TestCampaignRepo_SaveConflict(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	c := &domain.Campaign{ID: "c1", Subject: "s", BodyRef: "b", FromEmail: "f@shop.test",
		Audience: domain.Audience{Kind: domain.AudienceAll}, Status: domain.CampaignScheduled, UpdatedAt: t0}

	mock.ExpectExec(q("UPDATE campaigns SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewCampaignRepo(db).Save(context.Background(), c, domain.CampaignDraft)
	assert.ErrorIs(t, err, campaign.ErrConflict)
}

func TestCampaignRepo_DeleteMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("DELETE FROM campaigns WHERE id = $1 AND status IN ('draft', 'scheduled')")).
		WithArgs("c9").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("c9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	assert.ErrorIs(t, NewCampaignRepo(db).Delete(context.Background(), "c9"), campaign.ErrNotFound)
}

func TestCampaignRepo_MarkSendingIsWriteOnce(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("AND sent_at IS NULL AND recipient_count IS NULL")).
		WithArgs("c1", domain.CampaignDraft, t0, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewCampaignRepo(db).MarkSending(context.Background(), "c1", domain.CampaignDraft, t0, 3))
}

func TestCampaignRepo_TransitionStampsCompletion(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("completed_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("c1", domain.CampaignSending, domain.CampaignSent, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE campaigns SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("c2", domain.CampaignDraft, domain.CampaignScheduled, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCampaignRepo(db)
	require.NoError(t, repo.Transition(context.Background(), "c1", domain.CampaignSending, domain.CampaignSent, t0))
	require.NoError(t, repo.Transition(context.Background(), "c2", domain.CampaignDraft, domain.CampaignScheduled, t0))
}

// =============================================================================
// DELIVERIES
// =============================================================================

func TestDeliveryRepo_BeginIsIdempotent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("ON CONFLICT (campaign_id, email) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("ON CONFLICT (campaign_id, email) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDeliveryRepo(db)
	d := &domain.RecipientDelivery{CampaignID: "c1", Email: "ann@example.com", AttemptedAt: t0}
	created, err := repo.Begin(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, d.ID)

	created, err = repo.Begin(context.Background(), &domain.RecipientDelivery{CampaignID: "c1", Email: "ann@example.com", AttemptedAt: t0})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDeliveryRepo_ListPending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("SELECT COUNT(*) FROM recipient_deliveries WHERE campaign_id = $1 AND outcome IS NULL")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q("ORDER BY email OFFSET $2")).
		WithArgs("c1", 0).
		WillReturnRows(sqlmock.NewRows(deliveryCols).AddRow("d1", "c1", "ann@example.com", "", 0, "", "", t0))

	out, total, err := NewDeliveryRepo(db).List(context.Background(), delivery.ListFilter{CampaignID: "c1", Outcome: delivery.OutcomePending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, domain.DeliveryOutcome(""), out[0].Outcome)
}

func TestDeliveryRepo_Counts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("FILTER (WHERE outcome IS NULL)")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "delivered", "bounced", "failed", "pending"}).AddRow(5, 2, 1, 1, 1))

	c, err := NewDeliveryRepo(db).Counts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryCounts{Total: 5, Delivered: 2, Bounced: 1, Failed: 1, Pending: 1}, c)
}

func TestDeliveryRepo_CompleteMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("UPDATE recipient_deliveries")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewDeliveryRepo(db).Complete(context.Background(), &domain.RecipientDelivery{CampaignID: "c1", Email: "x@example.com"})
	assert.ErrorIs(t, err, delivery.ErrNotFound)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEventRepo_AppendDeduplicates(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("ON CONFLICT (idempotency_key) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))
	mock.ExpectQuery(q("ON CONFLICT (idempotency_key) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}))

	repo := NewEventRepo(db)
	ev := &domain.EngagementEvent{IdempotencyKey: "k", CampaignID: "c1", Email: "ann@example.com", Type: domain.EventOpened, OccurredAt: t0}
	inserted, err := repo.Append(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(7), ev.Seq)

	inserted, err = repo.Append(context.Background(), &domain.EngagementEvent{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestEventRepo_ListByCampaign(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("ORDER BY occurred_at, seq")).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "idempotency_key", "campaign_id", "email", "event_type", "occurred_at", "provider_event_id", "metadata"}).
			AddRow(int64(1), "k1", "c1", "ann@example.com", "clicked", t0, "", []byte(`{"url":"https://shop.test/a"}`)).
			AddRow(int64(2), "k2", "c1", "bob@example.com", "opened", t0, "", []byte(`{}`)))

	out, err := NewEventRepo(db).ListByCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://shop.test/a", out[0].URL())
	assert.Equal(t, domain.EventOpened, out[1].Type)
}

// =============================================================================
// SUPPRESSIONS AND SUBSCRIBERS
// =============================================================================

func TestSuppressionRepo_SuppressKeepsExisting(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("ON CONFLICT (email) DO UPDATE")).
		WithArgs("ann@example.com", domain.ReasonManual, "", t0, domain.ReasonManual).
		WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := NewSuppressionRepo(db).Suppress(context.Background(), &domain.Suppression{Email: "ann@example.com", Reason: domain.ReasonManual, CreatedAt: t0})
	require.NoError(t, err)
	assert.False(t, added)
}

func TestSuppressionRepo_Suppressed(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("WHERE email = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("bob@example.com"))

	repo := NewSuppressionRepo(db)
	got, err := repo.Suppressed(context.Background(), []string{"ann@example.com", "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"bob@example.com": true}, got)

	empty, err := repo.Suppressed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSuppressionRepo_RemoveMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("DELETE FROM suppressions WHERE email = $1 AND reason = $2")).
		WithArgs("x@example.com", domain.ReasonManual).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT reason FROM suppressions")).WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, NewSuppressionRepo(db).Remove(context.Background(), "x@example.com"), suppression.ErrNotFound)
}

func TestSuppressionRepo_RemoveKeepsOptOut(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("DELETE FROM suppressions WHERE email = $1 AND reason = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT reason FROM suppressions WHERE email = $1")).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"reason"}).AddRow("unsubscribe"))
	assert.ErrorIs(t, NewSuppressionRepo(db).Remove(context.Background(), "ann@example.com"), suppression.ErrOptOut)
}

func TestSuppressionRepo_RemoveManual(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("DELETE FROM suppressions")).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, NewSuppressionRepo(db).Remove(context.Background(), "ann@example.com"))
}

func TestSubscriberRepo_SegmentQuery(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(q("tags && $2")).
		WillReturnRows(sqlmock.NewRows([]string{"email", "status", "source", "tags"}).
			AddRow("ann@example.com", "active", "web", "{vip}"))

	subs, err := NewSubscriberRepo(db).ActiveSubscribers(context.Background(),
		domain.Audience{Kind: domain.AudienceSegment, Tags: []string{"vip"}})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"vip"}, subs[0].Tags)
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrate_AppliesPending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	names, err := Migrations()
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql"}, names)

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM schema_migrations")).WithArgs("0001_init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS campaigns")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO schema_migrations")).WithArgs("0001_init.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql"}, applied)
}

func TestMigrate_SkipsApplied(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
