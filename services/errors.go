package services

import "errors"

var (
	// ErrNotFound means the requested row does not exist for this tenant.
	ErrNotFound = errors.New("not found")

	// ErrLockConflict means a batch rule run is already active for the
	// tenant. Callers may retry later; runs are never queued.
	ErrLockConflict = errors.New("apply-rules already running for this tenant")
)
