package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

type EventType string

const (
	EventOpen  EventType = "opened"
	EventClick EventType = "clicked"
)

// TrackingEvent is one pixel or redirect hit. It is the SQS message body in
// async mode.
type TrackingEvent struct {
	EventType  EventType `json:"event_type"`
	CampaignID string    `json:"campaign_id"`
	LinkURL    string    `json:"link_url,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e TrackingEvent) meta(source string) map[string]string {
	m := map[string]string{"source": source}
	if e.UserAgent != "" {
		m["user_agent"] = e.UserAgent
		m["device"] = detectDevice(e.UserAgent)
	}
	return m
}

// Recorder applies hits to campaigns. *tracking.Service implements it.
type Recorder interface {
	RecordOpen(ctx context.Context, campaignID string, meta map[string]string) (bool, error)
	RecordClick(ctx context.Context, campaignID, target string, meta map[string]string) (tracking.ClickResult, error)
}

// Sink receives hits from the handler.
type Sink interface {
	Record(ctx context.Context, evt TrackingEvent) error
}

// Applier writes hits straight to the tracker. It is the inline sink and
// also what the SQS consumer calls.
type Applier struct {
	recorder Recorder
	metrics  *metrics.Metrics
}

func NewApplier(recorder Recorder, m *metrics.Metrics) *Applier {
	return &Applier{recorder: recorder, metrics: m}
}

// Record implements Sink.
func (a *Applier) Record(ctx context.Context, evt TrackingEvent) error {
	switch evt.EventType {
	case EventOpen:
		a.metrics.IncTrackingHit("open")
		_, err := a.recorder.RecordOpen(ctx, evt.CampaignID, evt.meta("pixel"))
		return err
	case EventClick:
		a.metrics.IncTrackingHit("click")
		_, err := a.recorder.RecordClick(ctx, evt.CampaignID, evt.LinkURL, evt.meta("redirect"))
		return err
	}
	return fmt.Errorf("unknown tracking event type %q", evt.EventType)
}

// SQSAPI is the part of *sqs.Client the publisher and consumer call.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher queues hits on SQS so the pixel and redirect answer without
// touching the database.
type Publisher struct {
	client   SQSAPI
	queueURL string
	wg       sync.WaitGroup
	log      *logger.Entry
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, log: logger.With("component", "tracking_publisher")}
}

// Record implements Sink. The send runs in the background.
func (p *Publisher) Record(_ context.Context, evt TrackingEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}
	if p.client == nil {
		return errors.New("sqs client not configured")
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			p.log.Error("publish to SQS failed", "campaign_id", evt.CampaignID, "type", string(evt.EventType), "error", err)
		}
	}()
	return nil
}

// Close waits for in-flight publishes.
func (p *Publisher) Close() {
	p.wg.Wait()
}
