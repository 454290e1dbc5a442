package repository

import "errors"

// Sentinel errors returned by Repository implementations. Callers map
// these to HTTP status codes at the API boundary; the core never
// inspects a driver-specific error type directly.
var (
	// ErrNotFound means no row exists for the given id. Maps to 404.
	ErrNotFound = errors.New("repository: timer not found")

	// ErrAlreadyExists means Insert was called with a duplicate id.
	// Maps to 409.
	ErrAlreadyExists = errors.New("repository: timer already exists")

	// ErrNotPending means UpdateMutable or Cancel was attempted on a
	// timer whose status is not Pending. Maps to 409.
	ErrNotPending = errors.New("repository: timer is not pending")

	// ErrValidation means the caller supplied a structurally invalid
	// patch or timer. Maps to 400.
	ErrValidation = errors.New("repository: validation failed")

	// ErrConnection means the storage engine was unreachable or the
	// query failed for a transient, non-semantic reason. Maps to 503.
	ErrConnection = errors.New("repository: storage connection failure")
)
