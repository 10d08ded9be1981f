package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced board, list or task does not
// exist. Handlers surface it as a 404.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable wraps transient persistence failures. The mutation
// path does not retry; callers may retry with backoff.
var ErrStoreUnavailable = errors.New("store unavailable")

// ConflictError reports a lost race on structural state, e.g. the parent
// of an item disappeared between read and write. Callers should retry the
// whole operation once before surfacing the failure.
type ConflictError struct {
	Op     string
	ItemID string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: conflict: %s", e.Op, e.ItemID, e.Reason)
}

// NewConflict builds a ConflictError for the given operation and item.
func NewConflict(op, itemID, reason string) *ConflictError {
	return &ConflictError{Op: op, ItemID: itemID, Reason: reason}
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
