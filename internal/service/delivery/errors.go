package delivery

import (
	"errors"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the delivery path.
var (
	ErrNotFound       = domain.ErrNotFound
	ErrSendInProgress = errors.New("send already in progress for campaign")
	ErrNotDraft       = errors.New("campaign is not in draft")
	ErrNoRecipient    = errors.New("campaign has no recipient")
)
