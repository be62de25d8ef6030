package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/analytics"
	"github.com/ignite/outreach-engine/internal/service/compliance"
	"github.com/ignite/outreach-engine/internal/service/delivery"
	"github.com/ignite/outreach-engine/internal/service/ingest"
	"github.com/ignite/outreach-engine/internal/service/reply"
	"github.com/ignite/outreach-engine/internal/service/sequencer"
	"github.com/ignite/outreach-engine/internal/service/tracking"
	"github.com/ignite/outreach-engine/internal/templates"
)

// Config carries the tunables the engine passes to its services.
type Config struct {
	TrackingBaseURL    string
	TrackingSigningKey string
	SchedulingDomain   string
	Booking            templates.Booking
	Identity           delivery.Identity
	SendTimeout        time.Duration
	RetryDelay         time.Duration
	SweepInterval      time.Duration
	Throttle           time.Duration
}

// Deps are the storage and transport implementations the engine runs on.
type Deps struct {
	Campaigns  CampaignRepository
	Events     EventRepository
	Messages   MessageRepository
	Blocklist  BlocklistRepository
	Sequences  SequenceRepository
	Sender     delivery.Sender
	Classifier reply.Classifier
	Locker     distlock.Locker
	Metrics    *metrics.Metrics
}

// Stats are the engine counters reported by the control surface.
type Stats struct {
	Running          bool            `json:"running"`
	Sent             int64           `json:"sent"`
	RepliesProcessed int64           `json:"replies_processed"`
	Booked           int64           `json:"booked"`
	EventsProcessed  int64           `json:"events_processed"`
	EventsIgnored    int64           `json:"events_ignored"`
	Sequencer        sequencer.Stats `json:"sequencer"`
}

// Engine is one running outreach engine.
type Engine struct {
	deps Deps
	log  *logger.Entry

	compliance *compliance.Service
	tracker    *tracking.Service
	delivery   *delivery.Service
	ingest     *ingest.Service
	replies    *reply.Service
	sequencer  *sequencer.Sequencer
	analytics  *analytics.Service
	renderer   *templates.Renderer

	seqMu  sync.RWMutex
	active *domain.FollowupSequence

	sent             atomic.Int64
	repliesProcessed atomic.Int64
	booked           atomic.Int64
	eventsProcessed  atomic.Int64
	eventsIgnored    atomic.Int64
}

// New builds an engine and its services. The sequencer is not started.
func New(d Deps, cfg Config) *Engine {
	if d.Locker == nil {
		d.Locker = distlock.NewLocker(nil, nil)
	}
	e := &Engine{
		deps:     d,
		log:      logger.With("component", "engine"),
		renderer: templates.NewRenderer(),
	}

	e.compliance = compliance.NewService(d.Blocklist)
	e.tracker = tracking.NewService(d.Campaigns, d.Events,
		tracking.NewInstrumenter(cfg.TrackingBaseURL, cfg.SchedulingDomain, cfg.TrackingSigningKey))
	e.delivery = delivery.NewService(delivery.Deps{
		Guard:       e.compliance,
		Tracker:     e.tracker,
		Sender:      d.Sender,
		Messages:    d.Messages,
		Campaigns:   d.Campaigns,
		Locker:      d.Locker,
		Metrics:     d.Metrics,
		Identity:    cfg.Identity,
		SendTimeout: cfg.SendTimeout,
	})
	e.ingest = ingest.NewService(ingest.Deps{
		Campaigns: d.Campaigns,
		Events:    d.Events,
		Guard:     e.compliance,
		Tracker:   e.tracker,
		Metrics:   d.Metrics,
	})
	e.replies = reply.NewService(reply.Deps{
		Campaigns:  d.Campaigns,
		Events:     d.Events,
		Messages:   d.Messages,
		Classifier: d.Classifier,
		Guard:      e.compliance,
		Delivery:   e.delivery,
		Renderer:   e.renderer,
		Booking:    cfg.Booking,
		Metrics:    d.Metrics,
		RetryDelay: cfg.RetryDelay,
	})
	e.sequencer = sequencer.New(sequencer.Deps{
		Campaigns: d.Campaigns,
		Sequences: e,
		Delivery:  e.delivery,
		Renderer:  e.renderer,
		Locker:    d.Locker,
		Metrics:   d.Metrics,
		Retries:   e.replies,
	}, sequencer.Config{Interval: cfg.SweepInterval, Throttle: cfg.Throttle})
	e.analytics = analytics.NewService(d.Campaigns)
	return e
}

// Compliance exposes the blocklist service.
func (e *Engine) Compliance() *compliance.Service { return e.compliance }

// Tracking exposes the open/click tracker.
func (e *Engine) Tracking() *tracking.Service { return e.tracker }

// Analytics exposes the funnel service.
func (e *Engine) Analytics() *analytics.Service { return e.analytics }

// Sequencer exposes the follow-up sequencer, mainly for clock injection in
// tests.
func (e *Engine) Sequencer() *sequencer.Sequencer { return e.sequencer }

// Start launches the sequencer loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.sequencer.Start(ctx); err != nil {
		return err
	}
	e.log.Info("engine started")
	return nil
}

// Stop halts future sweeps. Sends in flight complete.
func (e *Engine) Stop() {
	e.sequencer.Stop()
	e.log.Info("engine stopped")
}

func (e *Engine) Running() bool { return e.sequencer.Running() }

// Stats returns a snapshot of the counters. Sent covers initial sends, reply
// responses and follow-ups.
func (e *Engine) Stats() Stats {
	seq := e.sequencer.Stats()
	return Stats{
		Running:          seq.Running,
		Sent:             e.sent.Load() + seq.Sent,
		RepliesProcessed: e.repliesProcessed.Load(),
		Booked:           e.booked.Load(),
		EventsProcessed:  e.eventsProcessed.Load(),
		EventsIgnored:    e.eventsIgnored.Load(),
		Sequencer:        seq,
	}
}

// Active returns the sequence in force, read from the store on every call so
// a replacement made by any replica applies to the next sweep. A store with
// no default yields the built-in 72h/168h/336h sequence. When the store is
// unreachable the last sequence read is used.
func (e *Engine) Active(ctx context.Context) (*domain.FollowupSequence, error) {
	seq, err := e.deps.Sequences.GetDefault(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		seq, err = domain.DefaultSequence(), nil
	}
	if err != nil {
		e.seqMu.RLock()
		last := e.active
		e.seqMu.RUnlock()
		if last == nil {
			return nil, fmt.Errorf("load default sequence: %w", err)
		}
		e.log.Warn("sequence store unavailable, using last loaded sequence", "name", last.Name, "error", err)
		return last, nil
	}

	e.seqMu.Lock()
	e.active = seq
	e.seqMu.Unlock()
	return seq, nil
}

// Sequence returns a copy of the active sequence.
func (e *Engine) Sequence(ctx context.Context) (*domain.FollowupSequence, error) {
	seq, err := e.Active(ctx)
	if err != nil {
		return nil, err
	}
	cp := *seq
	cp.Steps = append([]domain.SequenceStep(nil), seq.Steps...)
	return &cp, nil
}

// ReplaceSequence validates seq and persists it as the default. Every
// replica picks it up on its next sweep.
func (e *Engine) ReplaceSequence(ctx context.Context, seq *domain.FollowupSequence) error {
	if seq == nil {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidSequence)
	}
	if err := seq.Validate(); err != nil {
		return err
	}
	if err := e.renderer.ValidateSequence(seq); err != nil {
		return err
	}
	if err := e.deps.Sequences.SaveDefault(ctx, seq); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}

	cp := *seq
	cp.Steps = append([]domain.SequenceStep(nil), seq.Steps...)
	e.seqMu.Lock()
	e.active = &cp
	e.seqMu.Unlock()
	e.log.Info("follow-up sequence replaced", "name", seq.Name, "steps", len(seq.Steps))
	return nil
}

// Sweep runs one follow-up sweep out of band.
func (e *Engine) Sweep(ctx context.Context) (sequencer.SweepReport, error) {
	return e.sequencer.Sweep(ctx)
}

// ProcessReply handles one inbound reply.
func (e *Engine) ProcessReply(ctx context.Context, in domain.InboundReply) (reply.Result, error) {
	res, err := e.replies.Process(ctx, in)
	if res.Processed {
		e.repliesProcessed.Add(1)
	}
	if res.Sent {
		e.sent.Add(1)
	}
	if res.Sent && res.Action == domain.ActionSendCalendarLink {
		e.booked.Add(1)
	}
	return res, err
}

// HandleEvent applies one provider webhook event.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.ProviderEvent) (ingest.Result, error) {
	res, err := e.ingest.Handle(ctx, ev)
	if err != nil {
		return res, err
	}
	if res.Processed {
		e.eventsProcessed.Add(1)
	} else {
		e.eventsIgnored.Add(1)
	}
	return res, nil
}

// CreateCampaign stores a new draft campaign.
func (e *Engine) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.Status = domain.StatusDraft
	c.RecipientEmail = domain.NormalizeEmail(c.RecipientEmail)
	if c.RecipientEmail == "" {
		return delivery.ErrNoRecipient
	}
	return e.deps.Campaigns.Create(ctx, c)
}

// Campaign loads a campaign by id.
func (e *Engine) Campaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return e.deps.Campaigns.Get(ctx, id)
}

// SendInitial sends the first message of a draft campaign.
func (e *Engine) SendInitial(ctx context.Context, campaignID string) (delivery.Outcome, error) {
	out, err := e.delivery.SendInitial(ctx, campaignID)
	if err == nil && !out.Blocked {
		e.sent.Add(1)
	}
	return out, err
}

// Unsubscribe blocks email and halts its most recent campaign. Repeated
// calls are harmless.
func (e *Engine) Unsubscribe(ctx context.Context, email, source string) error {
	email = domain.NormalizeEmail(email)
	if err := e.compliance.Block(ctx, email, domain.BlockUnsubscribe, source); err != nil {
		return err
	}

	c, err := e.deps.Campaigns.FindLatestByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup campaign: %w", err)
	}
	if c.UnsubscribedAt != nil {
		return nil
	}

	at := time.Now().UTC()
	c.UnsubscribedAt = &at
	c.UnsubscribeReason = string(domain.BlockUnsubscribe)
	if c.Status.CanTransition(domain.StatusUnsubscribed) {
		c.Status = domain.StatusUnsubscribed
	}
	if err := e.deps.Campaigns.Update(ctx, c); err != nil {
		return fmt.Errorf("mark campaign %s unsubscribed: %w", c.ID, err)
	}
	return e.deps.Events.Append(ctx, &domain.EngagementEvent{
		CampaignID: c.ID,
		Type:       domain.EngagementUnsubscribe,
		Metadata:   map[string]string{"source": source},
		CreatedAt:  at,
	})
}

// MarkMeetingScheduled records that the recipient booked a meeting, which is
// what the funnel counts as booked.
func (e *Engine) MarkMeetingScheduled(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	c, err := e.deps.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(domain.StatusMeetingScheduled) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, campaignID, c.Status)
	}
	if c.MeetingScheduledAt == nil {
		at := time.Now().UTC()
		c.MeetingScheduledAt = &at
	}
	c.Status = domain.StatusMeetingScheduled
	if err := e.deps.Campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("mark campaign %s meeting scheduled: %w", campaignID, err)
	}
	e.log.Info("meeting scheduled", "campaign_id", campaignID)
	return c, nil
}
