package domain

import "fmt"

// ClassifierAction is the closed set of next steps the reply classifier may
// request. The engine dispatches exhaustively on it.
type ClassifierAction string

const (
	ActionSendResponseAndMonitor ClassifierAction = "send_response_and_monitor"
	ActionSendResponseAndNurture ClassifierAction = "send_response_and_nurture"
	ActionSendCalendarLink       ClassifierAction = "send_calendar_link"
	ActionMarkClosed             ClassifierAction = "mark_closed"
	ActionRemoveFromList         ClassifierAction = "remove_from_list"
	ActionWaitAndRetry           ClassifierAction = "wait_and_retry"
	ActionFlagForHumanReview     ClassifierAction = "flag_for_human_review"
)

// Known reports whether a is part of the contract.
func (a ClassifierAction) Known() bool {
	switch a {
	case ActionSendResponseAndMonitor, ActionSendResponseAndNurture, ActionSendCalendarLink,
		ActionMarkClosed, ActionRemoveFromList, ActionWaitAndRetry, ActionFlagForHumanReview:
		return true
	}
	return false
}

// Classification is the intent portion of a classifier result.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// ClassifierRequest identifies the campaign and carries the cleaned reply.
type ClassifierRequest struct {
	CampaignID  string            `json:"campaign_id"`
	Email       string            `json:"email"`
	ContactName string            `json:"contact_name"`
	CompanyName string            `json:"company_name"`
	ReplyText   string            `json:"reply_text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ClassifierResult is what the external conversation service returns.
type ClassifierResult struct {
	Classification Classification   `json:"classification"`
	Response       string           `json:"response,omitempty"`
	Action         ClassifierAction `json:"action"`
	ReviewReason   string           `json:"review_reason,omitempty"`
}

// String implements fmt.Stringer for log fields.
func (r ClassifierResult) String() string {
	return fmt.Sprintf("intent=%s action=%s", r.Classification.Intent, r.Action)
}
