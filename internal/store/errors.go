package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule,
// such as two non-deleted books sharing a title.
var ErrConflict = errors.New("conflict")
