package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/delivery"
	"github.com/ignite/outreach-engine/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*domain.EmailMessage
}

func (f *fakeSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &domain.SendResult{MessageID: "msg", Provider: domain.ProviderLog}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeClassifier struct {
	result *domain.ClassifierResult
	err    error
	during func()
}

func (f *fakeClassifier) Classify(context.Context, domain.ClassifierRequest) (*domain.ClassifierResult, error) {
	if f.during != nil {
		f.during()
	}
	return f.result, f.err
}

// lookupHookRepo runs onLookup once, right after a campaign is read by
// email, to interleave another writer between a read and its write-back.
type lookupHookRepo struct {
	*memory.CampaignRepo
	onLookup func()
}

func (r *lookupHookRepo) FindLatestByEmail(ctx context.Context, email string) (*domain.Campaign, error) {
	c, err := r.CampaignRepo.FindLatestByEmail(ctx, email)
	if hook := r.onLookup; hook != nil {
		r.onLookup = nil
		hook()
	}
	return c, err
}

type failingSequences struct{ *memory.SequenceRepo }

func (failingSequences) GetDefault(context.Context) (*domain.FollowupSequence, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	engine     *Engine
	sender     *fakeSender
	classifier *fakeClassifier
	campaigns  *memory.CampaignRepo
	events     *memory.EventRepo
	sequences  *memory.SequenceRepo
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		sender:     &fakeSender{},
		classifier: &fakeClassifier{},
		campaigns:  memory.NewCampaignRepo(),
		events:     memory.NewEventRepo(),
		sequences:  memory.NewSequenceRepo(),
	}
	deps := Deps{
		Campaigns:  f.campaigns,
		Events:     f.events,
		Messages:   memory.NewMessageRepo(),
		Blocklist:  memory.NewBlocklistRepo(),
		Sequences:  f.sequences,
		Sender:     f.sender,
		Classifier: f.classifier,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.engine = New(deps, Config{
		TrackingBaseURL:    "https://t.example.com",
		TrackingSigningKey: "test-signing-key",
		SchedulingDomain:   "cal.com",
		Booking:            templates.Booking{URL: "https://cal.com/sam/intro"},
		Identity:           delivery.Identity{FromName: "Sam", FromEmail: "sam@agency.io"},
		SweepInterval:      time.Hour,
	})
	return f
}

func (f *fixture) sentCampaign(t *testing.T) *domain.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &domain.Campaign{
		RecipientEmail: " Jane@Acme.io ",
		ContactName:    "Jane Doe",
		CompanyName:    "Acme",
		Subject:        "Quick idea",
		Body:           "Hi Jane, worth a chat?",
	}
	require.NoError(t, f.engine.CreateCampaign(ctx, c))
	_, err := f.engine.SendInitial(ctx, c.ID)
	require.NoError(t, err)
	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	return got
}

func TestCreateCampaign_NormalizesAndDrafts(t *testing.T) {
	f := newFixture(t)
	c := &domain.Campaign{RecipientEmail: " Jane@Acme.io ", Status: domain.StatusReplied}

	require.NoError(t, f.engine.CreateCampaign(context.Background(), c))
	assert.Equal(t, "jane@acme.io", c.RecipientEmail)
	assert.Equal(t, domain.StatusDraft, c.Status)
	assert.NotEmpty(t, c.ID)
}

func TestCreateCampaign_RequiresRecipient(t *testing.T) {
	f := newFixture(t)
	err := f.engine.CreateCampaign(context.Background(), &domain.Campaign{RecipientEmail: "  "})
	assert.ErrorIs(t, err, delivery.ErrNoRecipient)
}

func TestSendInitialThenFollowup(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	require.Equal(t, domain.StatusSent, c.Status)
	require.NotNil(t, c.SentAt)

	sentAt := *c.SentAt
	f.engine.Sequencer().SetClock(func() time.Time { return sentAt.Add(73 * time.Hour) })

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, f.sender.count())

	got, err := f.engine.Campaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFollowUp1, got.Status)
	assert.Equal(t, 1, got.FollowupCount)

	stats := f.engine.Stats()
	assert.Equal(t, int64(2), stats.Sent)
	assert.Equal(t, int64(1), stats.Sequencer.Sweeps)
}

func TestActive_FallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	seq, err := f.engine.Sequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSequence().Steps, seq.Steps)
}

func TestReplaceSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seq := &domain.FollowupSequence{
		Name: "short",
		Steps: []domain.SequenceStep{
			{DelayHours: 48, StepType: domain.MessageFollowUp1, SubjectTemplate: "Re: {{ subject }}"},
			{DelayHours: 120, StepType: domain.MessageFollowUpFinal, SubjectTemplate: "Last note"},
		},
	}

	require.NoError(t, f.engine.ReplaceSequence(ctx, seq))

	active, err := f.engine.Sequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, "short", active.Name)
	assert.Len(t, active.Steps, 2)

	stored, err := f.sequences.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "short", stored.Name)
	assert.True(t, stored.IsDefault)
}

func TestReplaceSequence_SeenByOtherReplica(t *testing.T) {
	shared := memory.NewSequenceRepo()
	useShared := func(d *Deps) { d.Sequences = shared }
	a := newFixture(t, useShared)
	b := newFixture(t, useShared)
	ctx := context.Background()

	before, err := b.engine.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, before.Steps, 3)

	require.NoError(t, a.engine.ReplaceSequence(ctx, &domain.FollowupSequence{
		Name: "short",
		Steps: []domain.SequenceStep{
			{DelayHours: 24, StepType: domain.MessageFollowUp1, SubjectTemplate: "Re: {{ subject }}"},
		},
	}))

	after, err := b.engine.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "short", after.Name)
	assert.Len(t, after.Steps, 1)
}

func TestActive_StoreDownUsesLastLoaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Active(ctx)
	require.NoError(t, err)

	f.engine.deps.Sequences = failingSequences{f.sequences}
	seq, err := f.engine.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, seq.Steps, 3)

	cold := newFixture(t, func(d *Deps) { d.Sequences = failingSequences{memory.NewSequenceRepo()} })
	_, err = cold.engine.Active(ctx)
	assert.Error(t, err)
}

func TestReplaceSequence_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		seq  *domain.FollowupSequence
	}{
		{"nil", nil},
		{"no steps", &domain.FollowupSequence{Name: "empty"}},
		{"delays not increasing", &domain.FollowupSequence{Name: "bad", Steps: []domain.SequenceStep{
			{DelayHours: 72, StepType: domain.MessageFollowUp1, SubjectTemplate: "a"},
			{DelayHours: 72, StepType: domain.MessageFollowUp2, SubjectTemplate: "b"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.ReplaceSequence(ctx, tt.seq)
			assert.ErrorIs(t, err, domain.ErrInvalidSequence)
		})
	}

	_, err := f.sequences.GetDefault(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessReply_CountsBooking(t *testing.T) {
	f := newFixture(t)
	f.sentCampaign(t)
	f.classifier.result = &domain.ClassifierResult{
		Classification: domain.Classification{Intent: "meeting_request"},
		Response:       "Happy to set something up.",
		Action:         domain.ActionSendCalendarLink,
	}

	res, err := f.engine.ProcessReply(context.Background(), domain.InboundReply{
		From:    "jane@acme.io",
		Subject: "Re: Quick idea",
		Text:    "Sure, when works?",
	})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, domain.StatusBookingSent, res.Status)

	stats := f.engine.Stats()
	assert.Equal(t, int64(1), stats.RepliesProcessed)
	assert.Equal(t, int64(1), stats.Booked)
	assert.Equal(t, int64(2), stats.Sent)
}

func TestProcessReply_ClassifierError(t *testing.T) {
	f := newFixture(t)
	f.sentCampaign(t)
	f.classifier.err = errors.New("upstream 503")

	_, err := f.engine.ProcessReply(context.Background(), domain.InboundReply{From: "jane@acme.io", Text: "hello"})
	require.Error(t, err)
	assert.Equal(t, int64(0), f.engine.Stats().Booked)
}

func TestProcessReply_KeepsOpenRecordedDuringClassify(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	ctx := context.Background()
	f.classifier.result = &domain.ClassifierResult{
		Classification: domain.Classification{Intent: "question"},
		Action:         domain.ActionFlagForHumanReview,
	}
	f.classifier.during = func() {
		_, err := f.engine.Tracking().RecordOpen(ctx, c.ID, nil)
		require.NoError(t, err)
	}

	_, err := f.engine.ProcessReply(ctx, domain.InboundReply{From: "jane@acme.io", Text: "What does it cost?"})
	require.NoError(t, err)

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OpenedAt)
	assert.Equal(t, 1, got.OpenCount)
	assert.Equal(t, domain.StatusReplied, got.Status)

	first, err := f.engine.Tracking().RecordOpen(ctx, c.ID, nil)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestHandleEvent_StaleSentEventDoesNotRewindSequence(t *testing.T) {
	hooked := &lookupHookRepo{CampaignRepo: memory.NewCampaignRepo()}
	f := newFixture(t, func(d *Deps) { d.Campaigns = hooked })
	c := f.sentCampaign(t)
	ctx := context.Background()

	sentAt := *c.SentAt
	f.engine.Sequencer().SetClock(func() time.Time { return sentAt.Add(73 * time.Hour) })
	hooked.onLookup = func() {
		report, err := f.engine.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Sent)
	}

	_, err := f.engine.HandleEvent(ctx, domain.ProviderEvent{
		Type:       domain.EventSent,
		RawType:    string(domain.EventSent),
		To:         "jane@acme.io",
		MessageID:  "msg",
		ReceivedAt: sentAt,
	})
	require.NoError(t, err)

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFollowUp1, got.Status)
	require.NotNil(t, got.LastFollowupAt)

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 2, f.sender.count())
}

func TestHandleEvent_Counters(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	ctx := context.Background()

	res, err := f.engine.HandleEvent(ctx, domain.ProviderEvent{
		Type:       domain.EventDelivered,
		RawType:    string(domain.EventDelivered),
		To:         "jane@acme.io",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, c.ID, res.CampaignID)

	_, err = f.engine.HandleEvent(ctx, domain.ProviderEvent{Type: domain.EventUnknown, RawType: "contact.created"})
	require.NoError(t, err)

	stats := f.engine.Stats()
	assert.Equal(t, int64(1), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.EventsIgnored)
}

func TestUnsubscribe_BlocksAndHalts(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Unsubscribe(ctx, "JANE@acme.io", "link"))
	require.NoError(t, f.engine.Unsubscribe(ctx, "jane@acme.io", "link"))

	blocked, err := f.engine.Compliance().IsBlocked(ctx, "jane@acme.io")
	require.NoError(t, err)
	assert.True(t, blocked)

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnsubscribed, got.Status)
	assert.True(t, got.Halted())

	events, err := f.events.ListByCampaign(ctx, c.ID)
	require.NoError(t, err)
	var unsubs int
	for _, e := range events {
		if e.Type == domain.EngagementUnsubscribe {
			unsubs++
		}
	}
	assert.Equal(t, 1, unsubs)
}

func TestUnsubscribe_UnknownRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Unsubscribe(ctx, "nobody@nowhere.io", "link"))
	blocked, err := f.engine.Compliance().IsBlocked(ctx, "nobody@nowhere.io")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	assert.True(t, f.engine.Running())
	assert.Error(t, f.engine.Start(ctx))

	f.engine.Stop()
	assert.False(t, f.engine.Running())
	assert.False(t, f.engine.Stats().Running)
}

func TestMarkMeetingScheduled(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	ctx := context.Background()

	got, err := f.engine.MarkMeetingScheduled(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMeetingScheduled, got.Status)
	require.NotNil(t, got.MeetingScheduledAt)

	funnel, err := f.engine.Analytics().ComputeFunnel(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, funnel.Booked)

	_, err = f.engine.MarkMeetingScheduled(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkMeetingScheduled_FromTerminal(t *testing.T) {
	f := newFixture(t)
	c := f.sentCampaign(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Unsubscribe(ctx, c.RecipientEmail, "link"))

	_, err := f.engine.MarkMeetingScheduled(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
