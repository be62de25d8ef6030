package domain

import "errors"

// ErrNotFound is returned by repositories when a lookup matches nothing.
// Service packages re-export it so callers never import a storage package.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing row, such
// as a second active campaign for the same recipient.
var ErrConflict = errors.New("conflict")
