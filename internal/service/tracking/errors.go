package tracking

import "errors"

// ErrCounted marks a failure that happened after the open or click counter
// was written. Replaying the hit would count it twice.
var ErrCounted = errors.New("hit already counted")
