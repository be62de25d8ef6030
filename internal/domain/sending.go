package domain

import "time"

// ProviderType identifies the outbound transport.
type ProviderType string

const (
	ProviderSES    ProviderType = "ses"
	ProviderResend ProviderType = "resend"
	ProviderLog    ProviderType = "log"
)

// EmailMessage is the fully-resolved message ready for a provider sender.
// By the time a message reaches this struct, template rendering and tracking
// injection are complete.
type EmailMessage struct {
	CampaignID  string            `json:"campaign_id"`
	To          string            `json:"to"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content,omitempty"`
	Type        MessageType       `json:"message_type"`
	Headers     map[string]string `json:"headers,omitempty"`

	// IdempotencyKey is the same for every attempt at one logical send.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SendResult is returned by a provider after accepting a message.
type SendResult struct {
	MessageID string       `json:"message_id"`
	Provider  ProviderType `json:"provider"`
	SentAt    time.Time    `json:"sent_at"`
}
