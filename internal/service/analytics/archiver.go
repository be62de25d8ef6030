package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// ObjectPutter is the subset of the S3 client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FunnelSource computes the funnel to archive.
type FunnelSource interface {
	ComputeFunnel(ctx context.Context, windowDays int) (*Funnel, error)
}

type snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Funnel      *Funnel   `json:"funnel"`
}

// Archiver writes funnel snapshots to S3 on a fixed interval.
type Archiver struct {
	client     ObjectPutter
	bucket     string
	source     FunnelSource
	windowDays int
	interval   time.Duration
	now        func() time.Time
	log        *logger.Entry

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewArchiver creates a stopped archiver.
func NewArchiver(client ObjectPutter, bucket string, source FunnelSource, windowDays int, interval time.Duration) *Archiver {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		client:     client,
		bucket:     bucket,
		source:     source,
		windowDays: windowDays,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.With("component", "analytics-archiver"),
	}
}

// NewS3Archiver builds an archiver on the default AWS credential chain.
func NewS3Archiver(ctx context.Context, bucket, region string, source FunnelSource, windowDays int, interval time.Duration) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for analytics archive: %w", err)
	}
	return NewArchiver(s3.NewFromConfig(cfg), bucket, source, windowDays, interval), nil
}

// SetClock overrides the time source.
func (a *Archiver) SetClock(now func() time.Time) { a.now = now }

// Key returns the object key for a snapshot taken at t.
func Key(t time.Time) string {
	return "analytics/funnel/" + t.UTC().Format("2006/01/02/150405") + ".json"
}

// Snapshot computes the funnel and uploads it. Returns the object key.
func (a *Archiver) Snapshot(ctx context.Context) (string, error) {
	f, err := a.source.ComputeFunnel(ctx, a.windowDays)
	if err != nil {
		return "", err
	}
	at := a.now()
	body, err := json.Marshal(snapshot{GeneratedAt: at, Funnel: f})
	if err != nil {
		return "", fmt.Errorf("marshaling funnel snapshot: %w", err)
	}

	key := Key(at)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", a.bucket, key, err)
	}
	a.log.Info("funnel snapshot archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return key, nil
}

// Start begins the archive loop.
func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Snapshot(ctx); err != nil {
					a.log.Error("funnel snapshot failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the loop and waits for an upload in progress.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	a.mu.Unlock()
	a.wg.Wait()
}
