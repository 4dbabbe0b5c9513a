package core

import "errors"

// Sentinel errors shared across the engine and storage adapters.
// Adapters wrap backend-specific failures with %w so callers can
// errors.Is against these.
var (
	// ErrNoRewardRule means no reward rule exists for an action type.
	ErrNoRewardRule = errors.New("no reward rule for action")

	// ErrProfileNotFound means the user profile does not exist yet.
	// Most adapters create profiles lazily and never return this.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateRequest means an action record with the same request id
	// was already appended. Appends treat it as success.
	ErrDuplicateRequest = errors.New("duplicate action request id")

	// ErrInvalidTimestamp flags a check-in timestamp in the future
	// relative to the supplied clock.
	ErrInvalidTimestamp = errors.New("invalid check-in timestamp")
)
