package compliance

import (
	"errors"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Sentinel errors for the compliance service layer.
var (
	ErrNotFound      = domain.ErrNotFound
	ErrEmailRequired = errors.New("email is required")
	ErrInvalidReason = errors.New("invalid block reason")
)
