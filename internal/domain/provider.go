package domain

import "time"

// ProviderEventType is the closed set of lifecycle events the transactional
// email provider emits. Anything else is EventUnknown.
type ProviderEventType string

const (
	EventSent            ProviderEventType = "email.sent"
	EventDelivered       ProviderEventType = "email.delivered"
	EventOpened          ProviderEventType = "email.opened"
	EventClicked         ProviderEventType = "email.clicked"
	EventBounced         ProviderEventType = "email.bounced"
	EventComplained      ProviderEventType = "email.complained"
	EventDeliveryDelayed ProviderEventType = "email.delivery_delayed"
	EventUnknown         ProviderEventType = ""
)

// ParseProviderEventType maps a raw type string onto the closed enum.
func ParseProviderEventType(raw string) ProviderEventType {
	switch t := ProviderEventType(raw); t {
	case EventSent, EventDelivered, EventOpened, EventClicked,
		EventBounced, EventComplained, EventDeliveryDelayed:
		return t
	}
	return EventUnknown
}

// ProviderEvent is a normalized provider webhook event.
type ProviderEvent struct {
	Type         ProviderEventType `json:"-"`
	RawType      string            `json:"type"`
	MessageID    string            `json:"email_id"`
	To           string            `json:"to"`
	Subject      string            `json:"subject,omitempty"`
	Link         string            `json:"link,omitempty"`
	BounceReason string            `json:"bounce_reason,omitempty"`
	ReceivedAt   time.Time         `json:"received_at"`
}

// InboundReply is an inbound message delivered by the provider's inbound
// routing. At least one of Text or HTML is set.
type InboundReply struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}
