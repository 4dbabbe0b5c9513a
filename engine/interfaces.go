package engine

import (
	"context"
	"time"

	"civickit/core"
)

// Storage abstracts the remote backend the reward engine talks to.
// Implementations must make IncrementXP atomic and AppendAction idempotent
// on the record's RequestID. The Level field of returned profiles is
// derived server-side from the adapter's tier table.
type Storage interface {
	// RewardForAction resolves the XP value for an action.
	// Returns core.ErrNoRewardRule when no rule exists.
	RewardForAction(ctx context.Context, action core.ActionType) (int64, error)
	// PutRewardRule inserts or replaces a reward rule.
	PutRewardRule(ctx context.Context, action core.ActionType, xp int64) error

	// IncrementXP atomically adds delta to the user's XP and returns the
	// updated profile.
	IncrementXP(ctx context.Context, user core.UserID, delta int64) (core.Profile, error)

	// AppendAction appends one action log entry. A duplicate RequestID is
	// swallowed (no second entry, no error).
	AppendAction(ctx context.Context, rec core.ActionRecord) error
	// ActionsForUser returns the most recent action entries, newest first.
	ActionsForUser(ctx context.Context, user core.UserID, limit int) ([]core.ActionRecord, error)

	// SetLastLevelShown persists the level-up acknowledgment marker.
	SetLastLevelShown(ctx context.Context, user core.UserID, level int) error
	// SetCheckIn persists the check-in timestamp and streak counter.
	SetCheckIn(ctx context.Context, user core.UserID, at time.Time, streak int) error

	// Profile returns the user's profile, creating an empty one if absent.
	Profile(ctx context.Context, user core.UserID) (core.Profile, error)
}
