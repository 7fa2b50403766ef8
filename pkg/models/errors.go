package models

import "errors"

// Sentinel errors surfaced synchronously to callers. Publish-time failures are
// asynchronous and only visible through the status aggregation surface.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidNetwork = errors.New("network is not supported")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("attempt already in flight for network")
)
