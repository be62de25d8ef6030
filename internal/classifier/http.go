package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
)

// ErrInvalidResult is returned when the classifier answers with something
// that is not a usable result.
var ErrInvalidResult = errors.New("invalid classifier result")

// HTTPClient posts cleaned replies to an external conversation service.
type HTTPClient struct {
	url        string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewHTTPClient creates a classifier client. maxRetries applies to 429 and
// 5xx answers only.
func NewHTTPClient(url, apiKey string, timeout time.Duration, maxRetries int) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: timeout,
		}, maxRetries, httpretry.WithName("classifier")),
	}
}

// Classify implements reply.Classifier.
func (c *HTTPClient) Classify(ctx context.Context, req domain.ClassifierRequest) (*domain.ClassifierResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, string(body))
	}

	var result domain.ClassifierResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if result.Action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrInvalidResult)
	}
	return &result, nil
}
