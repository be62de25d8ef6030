package domain

import "time"

// EngagementEventType enumerates recipient interactions recorded in the
// append-only engagement log.
type EngagementEventType string

const (
	EngagementOpen            EngagementEventType = "open"
	EngagementClick           EngagementEventType = "click"
	EngagementReply           EngagementEventType = "reply"
	EngagementDeliveryDelayed EngagementEventType = "delivery_delayed"
	EngagementBounce          EngagementEventType = "bounce"
	EngagementComplaint       EngagementEventType = "complaint"
	EngagementUnsubscribe     EngagementEventType = "unsubscribe"
	EngagementHotLead         EngagementEventType = "hot_lead"
)

// EngagementEvent is an immutable record of a recipient interaction.
type EngagementEvent struct {
	ID         string              `json:"id" db:"id"`
	CampaignID string              `json:"campaign_id" db:"campaign_id"`
	Type       EngagementEventType `json:"event_type" db:"event_type"`
	Metadata   map[string]string   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
}

// MessageDirection distinguishes sent mail from received mail.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageType classifies one message in a campaign thread.
type MessageType string

const (
	MessageInitial           MessageType = "initial"
	MessageFollowUp1         MessageType = "follow_up_1"
	MessageFollowUp2         MessageType = "follow_up_2"
	MessageFollowUpFinal     MessageType = "follow_up_final"
	MessageReplyResponse     MessageType = "reply_response"
	MessageBookingInvitation MessageType = "booking_invitation"
	MessageInboundReply      MessageType = "inbound_reply"
)

// ConversationMessage is one outgoing or inbound message tied to a campaign.
// Ordering by CreatedAt reconstructs the thread.
type ConversationMessage struct {
	ID                string           `json:"id" db:"id"`
	CampaignID        string           `json:"campaign_id" db:"campaign_id"`
	Direction         MessageDirection `json:"direction" db:"direction"`
	Type              MessageType      `json:"message_type" db:"message_type"`
	Subject           string           `json:"subject" db:"subject"`
	Body              string           `json:"body" db:"body"`
	ProviderMessageID string           `json:"provider_message_id,omitempty" db:"provider_message_id"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}
