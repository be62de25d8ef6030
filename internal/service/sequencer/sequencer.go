package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/delivery"
)

const (
	DefaultInterval = time.Hour
	DefaultThrottle = 10 * time.Second

	sweepLockKey = "sequencer:sweep"
)

// IsDue reports whether the next step of c's sequence should be sent at
// now. The wait is measured from the later of sent_at and
// last_followup_at and equals the step's cumulative delay minus the
// previous step's cumulative delay.
func IsDue(c *domain.Campaign, seq *domain.FollowupSequence, now time.Time) (domain.SequenceStep, bool) {
	if c == nil || c.Halted() {
		return domain.SequenceStep{}, false
	}
	idx, ok := c.Status.SequenceIndex()
	if !ok {
		return domain.SequenceStep{}, false
	}
	step, ok := seq.StepAt(idx)
	if !ok {
		return domain.SequenceStep{}, false
	}
	anchor := c.SequenceAnchor()
	if anchor == nil {
		return step, false
	}
	wait := time.Duration(seq.IncrementalDelayHours(idx)) * time.Hour
	return step, now.Sub(*anchor) >= wait
}

// Config tunes the sweep loop.
type Config struct {
	Interval time.Duration
	Throttle time.Duration
}

// Deps are the collaborators of the sequencer.
type Deps struct {
	Campaigns CampaignRepository
	Sequences SequenceSource
	Delivery  Deliverer
	Renderer  Renderer
	Locker    distlock.Locker
	Metrics   *metrics.Metrics
	// Retries is optional.
	Retries RetryResumer
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Eligible  int           `json:"eligible"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// Stats are cumulative since the process started.
type Stats struct {
	Running     bool       `json:"running"`
	Sweeps      int64      `json:"sweeps"`
	Sent        int64      `json:"sent"`
	Skipped     int64      `json:"skipped"`
	Failed      int64      `json:"failed"`
	LastSweepAt *time.Time `json:"last_sweep_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type result int

const (
	resultSkipped result = iota
	resultSent
	resultFailed
)

// Sequencer runs follow-up sweeps on a fixed interval.
type Sequencer struct {
	Deps
	interval time.Duration
	throttle time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *logger.Entry

	statsMu sync.Mutex
	stats   Stats

	// Control
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// New creates a stopped sequencer.
func New(d Deps, cfg Config) *Sequencer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	if d.Locker == nil {
		d.Locker = distlock.NewLocker(nil, nil)
	}
	return &Sequencer{
		Deps:     d,
		interval: cfg.Interval,
		throttle: cfg.Throttle,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
		log:      logger.With("component", "sequencer"),
	}
}

// SetClock overrides the time source.
func (s *Sequencer) SetClock(now func() time.Time) { s.now = now }

// SetSleep overrides the throttle wait.
func (s *Sequencer) SetSleep(sleep func(ctx context.Context, d time.Duration) error) { s.sleep = sleep }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start runs a sweep immediately and then once per interval until Stop.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.Metrics.SetSequencerRunning(true)
	s.log.Info("sequencer starting", "interval", s.interval.String(), "throttle", s.throttle.String())

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop prevents further sweeps and waits for the current one to wind
// down. A send already handed to the provider is allowed to finish.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.log.Info("sequencer stopping")
	cancel()
	s.wg.Wait()
	s.Metrics.SetSequencerRunning(false)

	st := s.Stats()
	s.log.Info("sequencer stopped", "sweeps", st.Sweeps, "sent", st.Sent, "failed", st.Failed)
}

// Running reports whether the loop is active.
func (s *Sequencer) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stats returns a snapshot of the cumulative counters.
func (s *Sequencer) Stats() Stats {
	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()
	st.Running = s.Running()
	return st
}

func (s *Sequencer) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sequencer) tick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, ErrSweepInProgress) {
			s.log.Info("sweep skipped, another replica holds the lock")
		} else {
			s.log.Error("sweep failed", "error", err)
		}
	}
	if s.Retries != nil && ctx.Err() == nil {
		if _, err := s.Retries.ResumeRetries(ctx); err != nil {
			s.log.Error("resume retries failed", "error", err)
		}
	}
}

// Sweep runs one pass over every eligible campaign. Per-campaign failures
// are counted and logged; the sweep carries on.
func (s *Sequencer) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: s.now()}

	lock := s.Locker.Lock(sweepLockKey, s.interval)
	err := distlock.Do(ctx, lock, func(ctx context.Context) error {
		return s.sweep(ctx, &report)
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return report, ErrSweepInProgress
	}

	report.Duration = s.now().Sub(report.StartedAt)
	s.record(report, err)
	s.Metrics.ObserveSweep(report.Duration.Seconds())
	if report.Eligible > 0 {
		s.log.Info("sweep complete",
			"eligible", report.Eligible,
			"sent", report.Sent,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"duration", report.Duration.String(),
		)
	}
	return report, err
}

func (s *Sequencer) sweep(ctx context.Context, report *SweepReport) error {
	seq, err := s.Sequences.Active(ctx)
	if err != nil {
		return fmt.Errorf("load active sequence: %w", err)
	}
	if seq == nil || len(seq.Steps) == 0 {
		return ErrNoSequence
	}

	campaigns, err := s.Campaigns.ListEligibleForFollowup(ctx)
	if err != nil {
		return fmt.Errorf("list eligible campaigns: %w", err)
	}
	report.Eligible = len(campaigns)

	attempts := 0
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, due := IsDue(c, seq, s.now()); !due {
			report.Skipped++
			continue
		}
		if attempts > 0 {
			if err := s.sleep(ctx, s.throttle); err != nil {
				return err
			}
		}
		attempts++

		switch s.process(ctx, c.ID, seq) {
		case resultSent:
			report.Sent++
		case resultFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	return nil
}

// process re-reads the campaign under its own lock so a webhook or a
// concurrent sweep that changed it since the listing is honored.
func (s *Sequencer) process(ctx context.Context, campaignID string, seq *domain.FollowupSequence) result {
	// The send itself must survive a Stop issued mid-sweep.
	ctx = context.WithoutCancel(ctx)
	log := s.log.With("campaign_id", campaignID)

	res := resultSkipped
	lock := s.Locker.Lock("followup:"+campaignID, 5*time.Minute)
	err := distlock.Do(ctx, lock, func(ctx context.Context) error {
		c, err := s.Campaigns.Get(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		step, due := IsDue(c, seq, s.now())
		if !due {
			return nil
		}

		subject, body, err := s.Renderer.RenderStep(step, c)
		if err != nil {
			return fmt.Errorf("render %s: %w", step.StepType, err)
		}
		out, err := s.Delivery.Deliver(ctx, delivery.Outbound{
			Campaign: c,
			Type:     step.StepType,
			Subject:  subject,
			Body:     body,
		})
		if err != nil {
			return err
		}
		if out.Blocked {
			log.Info("follow-up blocked", "step", string(step.StepType))
			return nil
		}

		at := out.SentAt
		if at.IsZero() {
			at = s.now()
		}
		advanced, err := s.Campaigns.AdvanceFollowup(ctx, c.ID, c.Status, step.Status(), at)
		if err != nil {
			return fmt.Errorf("advance to %s after send: %w", step.Status(), err)
		}
		if !advanced {
			log.Warn("status changed during send, advance skipped", "expected", string(c.Status), "step", string(step.StepType))
		}
		res = resultSent
		log.Info("follow-up sent", "step", string(step.StepType), "message_id", out.MessageID)
		return nil
	})

	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		log.Info("campaign locked by another worker")
		return resultSkipped
	case err != nil:
		log.Error("follow-up failed", "error", err)
		return resultFailed
	}
	return res
}

func (s *Sequencer) record(r SweepReport, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Sweeps++
	s.stats.Sent += int64(r.Sent)
	s.stats.Skipped += int64(r.Skipped)
	s.stats.Failed += int64(r.Failed)
	at := r.StartedAt
	s.stats.LastSweepAt = &at
	s.stats.LastError = ""
	if err != nil {
		s.stats.LastError = err.Error()
	}
}
