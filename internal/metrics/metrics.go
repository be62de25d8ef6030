// Package metrics exposes the engine's Prometheus counters on a private
// registry. A nil *Metrics is valid and records nothing, so services can be
// built without it in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the outreach engine.
type Metrics struct {
	SendsTotal            *prometheus.CounterVec
	SendsBlockedTotal     prometheus.Counter
	SendFailuresTotal     *prometheus.CounterVec
	WebhookEventsTotal    *prometheus.CounterVec
	RepliesProcessedTotal *prometheus.CounterVec
	BookingsTriggered     prometheus.Counter
	TrackingHitsTotal     *prometheus.CounterVec
	SequencerRunning      prometheus.Gauge
	SweepDuration         prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with every metric registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sends_total",
				Help: "Messages accepted by the email provider, by message type",
			},
			[]string{"kind"},
		),
		SendsBlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_sends_blocked_total",
				Help: "Sends short-circuited by the blocklist",
			},
		),
		SendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_send_failures_total",
				Help: "Provider send failures, by message type",
			},
			[]string{"kind"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_webhook_events_total",
				Help: "Provider webhook events received, by type",
			},
			[]string{"type"},
		),
		RepliesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_replies_processed_total",
				Help: "Inbound replies dispatched, by classifier action",
			},
			[]string{"action"},
		),
		BookingsTriggered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_bookings_triggered_total",
				Help: "Scheduling emails sent",
			},
		),
		TrackingHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_tracking_hits_total",
				Help: "Open pixel and click redirect hits",
			},
			[]string{"kind"},
		),
		SequencerRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_sequencer_running",
				Help: "1 while the follow-up sequencer loop is started",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_sweep_duration_seconds",
				Help:    "Duration of follow-up sweeps",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.SendsTotal,
		m.SendsBlockedTotal,
		m.SendFailuresTotal,
		m.WebhookEventsTotal,
		m.RepliesProcessedTotal,
		m.BookingsTriggered,
		m.TrackingHitsTotal,
		m.SequencerRunning,
		m.SweepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncSent(kind string) {
	if m != nil {
		m.SendsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncBlocked() {
	if m != nil {
		m.SendsBlockedTotal.Inc()
	}
}

func (m *Metrics) IncSendFailure(kind string) {
	if m != nil {
		m.SendFailuresTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncWebhookEvent(eventType string) {
	if m != nil {
		m.WebhookEventsTotal.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncReply(action string) {
	if m != nil {
		m.RepliesProcessedTotal.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncBooking() {
	if m != nil {
		m.BookingsTriggered.Inc()
	}
}

func (m *Metrics) IncTrackingHit(kind string) {
	if m != nil {
		m.TrackingHitsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetSequencerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SequencerRunning.Set(1)
	} else {
		m.SequencerRunning.Set(0)
	}
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m != nil {
		m.SweepDuration.Observe(seconds)
	}
}
