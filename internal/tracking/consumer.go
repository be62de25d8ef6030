package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

// Consumer drains the tracking queue into a Sink, normally an Applier.
type Consumer struct {
	client   SQSAPI
	queueURL string
	sink     Sink
	log      *logger.Entry

	// waitSeconds is the long-poll duration. Tests set it to zero.
	waitSeconds int32
	backoff     time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewConsumer(client SQSAPI, queueURL string, sink Sink) *Consumer {
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		sink:        sink,
		log:         logger.With("component", "tracking_consumer"),
		waitSeconds: 20,
		backoff:     5 * time.Second,
	}
}

// Start launches the poll loop. A second Start is a no-op.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
	c.log.Info("SQS tracking consumer started", "queue", c.queueURL)
}

// Stop cancels the loop and waits for the current batch.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := c.ReceiveOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("SQS receive error", "error", err)
			t := time.NewTimer(c.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		if n == 0 && c.waitSeconds == 0 {
			// Short polling against an empty queue would spin.
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// ReceiveOnce reads one batch and applies it. Messages that fail with a
// transient error before the counter write stay on the queue and are
// redelivered after the visibility timeout.
func (c *Consumer) ReceiveOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return 0, err
	}

	for _, msg := range out.Messages {
		var evt TrackingEvent
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
			c.log.Warn("SQS bad message", "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.sink.Record(ctx, evt); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.log.Info("tracking hit for unknown campaign", "campaign_id", evt.CampaignID)
				c.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}
			if errors.Is(err, tracking.ErrCounted) {
				// Redelivery would bump the counter again.
				c.log.Error("SQS hit counted but not fully applied", "type", string(evt.EventType), "campaign_id", evt.CampaignID, "error", err)
				c.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}
			c.log.Error("SQS process error", "type", string(evt.EventType), "campaign_id", evt.CampaignID, "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return len(out.Messages), nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		c.log.Warn("SQS delete failed", "error", err)
	}
}

func detectDevice(ua string) string {
	ua = strings.ToLower(ua)
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	return "desktop"
}
