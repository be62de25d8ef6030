package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

type webhookPayload struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID string          `json:"email_id"`
		To      json.RawMessage `json:"to"`
		Subject string          `json:"subject"`
		Link    string          `json:"link"`
		Click   *struct {
			Link string `json:"link"`
		} `json:"click"`
		Bounce *struct {
			Message string `json:"message"`
		} `json:"bounce"`
	} `json:"data"`
}

// ParseEvent decodes a provider webhook body. Unknown event types parse
// successfully with Type set to domain.EventUnknown.
func ParseEvent(raw []byte) (domain.ProviderEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Type == "" {
		return domain.ProviderEvent{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	to, err := firstRecipient(p.Data.To)
	if err != nil {
		return domain.ProviderEvent{}, err
	}

	ev := domain.ProviderEvent{
		Type:       domain.ParseProviderEventType(p.Type),
		RawType:    p.Type,
		MessageID:  p.Data.EmailID,
		To:         domain.NormalizeEmail(to),
		Subject:    p.Data.Subject,
		Link:       p.Data.Link,
		ReceivedAt: time.Now().UTC(),
	}
	if ev.Link == "" && p.Data.Click != nil {
		ev.Link = p.Data.Click.Link
	}
	if p.Data.Bounce != nil {
		ev.BounceReason = strings.TrimSpace(p.Data.Bounce.Message)
	}
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		ev.ReceivedAt = t.UTC()
	}
	return ev, nil
}

// firstRecipient accepts "to" as a string or an array of strings.
func firstRecipient(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", fmt.Errorf("%w: data.to: %v", ErrMalformedPayload, err)
	}
	if len(many) == 0 {
		return "", nil
	}
	return many[0], nil
}
