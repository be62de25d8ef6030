package domain

import "time"

// BlockReason enumerates why an address may no longer receive mail.
type BlockReason string

const (
	BlockBounce        BlockReason = "bounce"
	BlockUnsubscribe   BlockReason = "unsubscribe"
	BlockSpamComplaint BlockReason = "spam_complaint"
)

// Valid reports whether r is a known reason.
func (r BlockReason) Valid() bool {
	switch r {
	case BlockBounce, BlockUnsubscribe, BlockSpamComplaint:
		return true
	}
	return false
}

// BlocklistEntry is keyed by lower-cased email. Upserts overwrite the reason,
// so the latest write wins.
type BlocklistEntry struct {
	Email     string      `json:"email" db:"email"`
	Reason    BlockReason `json:"reason" db:"reason"`
	Detail    string      `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}
