package engine

import "errors"

// ErrInvalidTransition is returned when an operator action would move a
// campaign backwards.
var ErrInvalidTransition = errors.New("status transition not allowed")
