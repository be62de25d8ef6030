package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var campaignCols = []string{
	"id", "recipient_email", "contact_name", "company_name", "subject", "body",
	"provider_message_id", "status",
	"created_at", "sent_at", "delivered_at", "opened_at", "clicked_at", "replied_at",
	"bounced_at", "unsubscribed_at", "last_followup_at", "booking_sent_at", "hot_lead_at",
	"retry_scheduled_at", "closed_at", "meeting_scheduled_at", "updated_at",
	"open_count", "click_count", "followup_count",
	"bounce_reason", "unsubscribe_reason", "last_reply_text", "last_intent",
	"needs_review", "review_reason",
}

func campaignRow(id, email string, status domain.CampaignStatus, sentAt interface{}) []driver.Value {
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, email, "Jane Doe", "Acme", "Quick idea", "Hi Jane",
		"", string(status),
		created, sentAt, nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil, created,
		2, 0, 1,
		"", "", "", "",
		false, "",
	}
}

func TestCampaignRepo_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	sent := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM outreach_campaigns WHERE id = \\$1").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(campaignRow("c1", "jane@acme.io", domain.StatusSent, sent)...))

	c, err := NewCampaignRepo(db).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.io", c.RecipientEmail)
	assert.Equal(t, domain.StatusSent, c.Status)
	require.NotNil(t, c.SentAt)
	assert.Equal(t, sent, *c.SentAt)
	assert.Nil(t, c.RepliedAt)
	assert.Equal(t, 2, c.OpenCount)
	assert.Equal(t, 1, c.FollowupCount)
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT .+ FROM outreach_campaigns").WillReturnError(sql.ErrNoRows)

	_, err := NewCampaignRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCampaignRepo_FindLatestByEmailNormalizes(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("WHERE recipient_email = \\$1\\s+ORDER BY created_at DESC").
		WithArgs("jane@acme.io").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(campaignRow("c2", "jane@acme.io", domain.StatusFollowUp1, nil)...))

	c, err := NewCampaignRepo(db).FindLatestByEmail(context.Background(), " Jane@Acme.IO ")
	require.NoError(t, err)
	assert.Equal(t, "c2", c.ID)
	assert.Nil(t, c.SentAt)
}

func TestCampaignRepo_CreateConflict(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("INSERT INTO outreach_campaigns").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := NewCampaignRepo(db).Create(context.Background(), &domain.Campaign{RecipientEmail: "jane@acme.io"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCampaignRepo_Create(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO outreach_campaigns").
		WithArgs(sqlmock.AnyArg(), "jane@acme.io", "Jane", "", "Hello", "Body", domain.StatusDraft, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	c := &domain.Campaign{RecipientEmail: "JANE@acme.io", ContactName: "Jane", Subject: "Hello", Body: "Body"}
	require.NoError(t, NewCampaignRepo(db).Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, domain.StatusDraft, c.Status)
	assert.Equal(t, now, c.CreatedAt)
}

func TestCampaignRepo_UpdateNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM outreach_campaigns WHERE id = \\$1 FOR UPDATE").
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewCampaignRepo(db).Update(context.Background(), &domain.Campaign{ID: "gone"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCampaignRepo_UpdateNeverRegressesStatus(t *testing.T) {
	db, mock := setupTestDB(t)
	sent := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	followup := sent.Add(73 * time.Hour)
	row := campaignRow("c1", "jane@acme.io", domain.StatusFollowUp1, sent)
	row[16] = followup
	updated := followup.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM outreach_campaigns WHERE id = \\$1 FOR UPDATE").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(row...))
	anyArg := sqlmock.AnyArg()
	mock.ExpectQuery("UPDATE outreach_campaigns SET").
		WithArgs(
			"c1", anyArg, anyArg, anyArg, anyArg,
			"msg-9", domain.StatusFollowUp1,
			sent, anyArg, anyArg, anyArg, anyArg,
			anyArg, anyArg, followup, anyArg,
			anyArg, anyArg, anyArg, anyArg,
			anyArg, anyArg, anyArg, anyArg,
			false, anyArg,
		).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))
	mock.ExpectCommit()

	stale := &domain.Campaign{ID: "c1", Status: domain.StatusSent, SentAt: &sent, ProviderMessageID: "msg-9"}
	require.NoError(t, NewCampaignRepo(db).Update(context.Background(), stale))
	assert.Equal(t, domain.StatusFollowUp1, stale.Status)
	require.NotNil(t, stale.LastFollowupAt)
	assert.Equal(t, followup, *stale.LastFollowupAt)
	assert.Equal(t, 2, stale.OpenCount)
	assert.Equal(t, updated, stale.UpdatedAt)
}

func TestCampaignRepo_IncrementOpen(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Now().UTC()
	mock.ExpectQuery("SET open_count = c.open_count \\+ 1").
		WithArgs("c1", at).
		WillReturnRows(sqlmock.NewRows([]string{"first"}).AddRow(true))
	mock.ExpectQuery("SET open_count = c.open_count \\+ 1").
		WithArgs("c1", at).
		WillReturnRows(sqlmock.NewRows([]string{"first"}).AddRow(false))

	repo := NewCampaignRepo(db)
	first, err := repo.IncrementOpen(context.Background(), "c1", at)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = repo.IncrementOpen(context.Background(), "c1", at)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestCampaignRepo_AdvanceFollowupCompareAndSwap(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Now().UTC()
	mock.ExpectExec("UPDATE outreach_campaigns\\s+SET status = \\$3.+WHERE id = \\$1 AND status = \\$2").
		WithArgs("c1", domain.StatusSent, domain.StatusFollowUp1, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outreach_campaigns").
		WithArgs("c1", domain.StatusSent, domain.StatusFollowUp1, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCampaignRepo(db)
	ok, err := repo.AdvanceFollowup(context.Background(), "c1", domain.StatusSent, domain.StatusFollowUp1, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.AdvanceFollowup(context.Background(), "c1", domain.StatusSent, domain.StatusFollowUp1, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCampaignRepo_ListEligibleForFollowup(t *testing.T) {
	db, mock := setupTestDB(t)
	sent := time.Now().UTC().Add(-80 * time.Hour)
	mock.ExpectQuery("WHERE status = ANY\\(\\$1\\)").
		WithArgs(pq.Array([]string{"sent", "follow_up_1", "follow_up_2"})).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(campaignRow("c1", "a@acme.io", domain.StatusSent, sent)...).
			AddRow(campaignRow("c2", "b@acme.io", domain.StatusFollowUp2, sent)...))

	out, err := NewCampaignRepo(db).ListEligibleForFollowup(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.StatusFollowUp2, out[1].Status)
}

func TestCampaignRepo_FunnelCounts(t *testing.T) {
	db, mock := setupTestDB(t)
	since := time.Now().UTC().AddDate(0, 0, -30)
	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").
		WithArgs(since, domain.StatusMeetingScheduled).
		WillReturnRows(sqlmock.NewRows([]string{"total", "sent", "delivered", "opened", "clicked", "replied", "booked", "bounced"}).
			AddRow(10, 8, 4, 3, 1, 2, 1, 1))

	fc, err := NewCampaignRepo(db).FunnelCounts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, domain.FunnelCounts{Total: 10, Sent: 8, Delivered: 4, Opened: 3, Clicked: 1, Replied: 2, Booked: 1, Bounced: 1}, fc)
}

func TestBlocklistRepo_Upsert(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO outreach_blocklist .+ ON CONFLICT \\(email\\) DO UPDATE").
		WithArgs("a@b.com", domain.BlockBounce, "mailbox full").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	e := &domain.BlocklistEntry{Email: "A@B.com", Reason: domain.BlockBounce, Detail: "mailbox full"}
	require.NoError(t, NewBlocklistRepo(db).Upsert(context.Background(), e))
	assert.Equal(t, "a@b.com", e.Email)
}

func TestBlocklistRepo_IsBlocked(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	blocked, err := NewBlocklistRepo(db).IsBlocked(context.Background(), "A@b.com")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlocklistRepo_RemoveMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("DELETE FROM outreach_blocklist").WithArgs("a@b.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewBlocklistRepo(db).Remove(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlocklistRepo_ListFilters(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM outreach_blocklist WHERE 1=1 AND reason = \\$1 AND email ILIKE \\$2").
		WithArgs(domain.BlockUnsubscribe, "%acme%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("FROM outreach_blocklist WHERE 1=1 AND reason = \\$1 AND email ILIKE \\$2 ORDER BY updated_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(domain.BlockUnsubscribe, "%acme%", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"email", "reason", "detail", "created_at", "updated_at"}).
			AddRow("jane@acme.io", "unsubscribe", "", now, now))

	out, total, err := NewBlocklistRepo(db).List(context.Background(), domain.BlocklistFilter{
		Reason: domain.BlockUnsubscribe, Search: "acme", Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, domain.BlockUnsubscribe, out[0].Reason)
}

func TestEventRepo_AppendAndList(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO outreach_engagement_events").
		WithArgs(sqlmock.AnyArg(), "c1", domain.EngagementClick, []byte(`{"url":"https://acme.io"}`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM outreach_engagement_events").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "event_type", "metadata", "created_at"}).
			AddRow("e1", "c1", "click", []byte(`{"url":"https://acme.io"}`), at))

	repo := NewEventRepo(db)
	require.NoError(t, repo.Append(context.Background(), &domain.EngagementEvent{
		CampaignID: "c1", Type: domain.EngagementClick, Metadata: map[string]string{"url": "https://acme.io"}, CreatedAt: at,
	}))
	events, err := repo.ListByCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "https://acme.io", events[0].Metadata["url"])
}

func TestMessageRepo_Append(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("INSERT INTO outreach_conversation_messages").
		WithArgs(sqlmock.AnyArg(), "c1", domain.DirectionOutbound, domain.MessageFollowUp1, "Re: hi", "body", "m-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewMessageRepo(db).Append(context.Background(), &domain.ConversationMessage{
		CampaignID: "c1", Direction: domain.DirectionOutbound, Type: domain.MessageFollowUp1,
		Subject: "Re: hi", Body: "body", ProviderMessageID: "m-1",
	})
	require.NoError(t, err)
}

func TestSequenceRepo_SaveDefaultIsTransactional(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE outreach_followup_sequences SET is_default = false").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outreach_followup_sequences").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	seq := domain.DefaultSequence()
	seq.IsDefault = false
	require.NoError(t, NewSequenceRepo(db).SaveDefault(context.Background(), seq))
	assert.True(t, seq.IsDefault)
	assert.NotEmpty(t, seq.ID)
}

func TestSequenceRepo_GetDefault(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("FROM outreach_followup_sequences").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_default", "steps"}).
			AddRow("s1", "default", true, []byte(`[{"delay_hours":72,"step_type":"follow_up_1","subject_template":"Re: {{ subject }}"}]`)))

	seq, err := NewSequenceRepo(db).GetDefault(context.Background())
	require.NoError(t, err)
	require.Len(t, seq.Steps, 1)
	assert.Equal(t, 72, seq.Steps[0].DelayHours)
	assert.Equal(t, domain.MessageFollowUp1, seq.Steps[0].StepType)
}

func TestSequenceRepo_GetDefaultMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("FROM outreach_followup_sequences").WillReturnError(sql.ErrNoRows)

	_, err := NewSequenceRepo(db).GetDefault(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
