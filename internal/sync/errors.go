package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInRoot is returned when a path falls outside the configured watch root.
	ErrNotInRoot = errors.New("path not in watched root")

	// ErrStateCorrupt is returned when a persisted state file cannot be parsed.
	ErrStateCorrupt = errors.New("sync state corrupt")

	// ErrStateLocked is returned when another process holds the state lock for a root.
	ErrStateLocked = errors.New("sync state locked by another process")
)

// TransferError wraps a remote store failure for a single object key.
// The underlying cause is reachable via errors.Unwrap.
type TransferError struct {
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed for %q: %v", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
