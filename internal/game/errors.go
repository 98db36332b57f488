package game

import "errors"

var (
	// ErrInsufficientEnergy blocks a tap whose cost exceeds available energy.
	// The tap is a no-op; callers surface a UI affordance, not a failure.
	ErrInsufficientEnergy = errors.New("insufficient energy")

	// ErrSyncRejected marks a batch the backend refused outright. The server
	// snapshot accompanying it replaces local state unconditionally.
	ErrSyncRejected = errors.New("sync rejected by server")

	// ErrAuthExpired marks an invalid or expired bearer token. Syncing pauses
	// until a new token is supplied; buffered deltas are kept.
	ErrAuthExpired = errors.New("authorization expired")
)
