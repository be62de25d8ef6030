package reply

import (
	"errors"

	"github.com/ignite/outreach-engine/internal/domain"
)

var (
	ErrNotFound      = domain.ErrNotFound
	ErrUnknownAction = errors.New("unknown classifier action")
	ErrNoContent     = errors.New("reply has neither text nor html")
	ErrNoSender      = errors.New("reply has no sender address")
)
