package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a reporter in the civic domain.
type UserID string

// ActionType is a discrete rewarded user event.
type ActionType string

const (
	ActionReportCreated  ActionType = "report_created"
	ActionReportVerified ActionType = "report_verified"
	ActionReportResolved ActionType = "report_resolved"
	ActionUpvoteGiven    ActionType = "upvote_given"
	ActionUpvoteReceived ActionType = "upvote_received"
	ActionCommentPosted  ActionType = "comment_posted"
	ActionCheckIn        ActionType = "check_in"
)

// Badge is a named reward identifier granted by a level tier.
type Badge string

// Profile is a snapshot of a user's reward state. Storage implementations
// return copies; the engine never mutates a Profile in place.
type Profile struct {
	UserID         UserID     `json:"user_id"`
	XP             int64      `json:"xp"`
	Level          int        `json:"level"`
	LastLevelShown int        `json:"last_level_shown"`
	LastCheckIn    *time.Time `json:"last_check_in,omitempty"`
	Streak         int        `json:"streak"`
	Updated        time.Time  `json:"updated"`
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	cp := p
	if p.LastCheckIn != nil {
		t := *p.LastCheckIn
		cp.LastCheckIn = &t
	}
	return cp
}

// ActionRecord is one append-only action log entry. RequestID is a
// client-generated idempotency key: appending the same RequestID twice
// must not produce a second entry.
type ActionRecord struct {
	RequestID   string     `json:"request_id"`
	UserID      UserID     `json:"user_id"`
	Action      ActionType `json:"action"`
	XPEarned    int64      `json:"xp_earned"`
	ReferenceID string     `json:"reference_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateActionType ensures the action is one of the known kinds.
func ValidateActionType(a ActionType) error {
	switch a {
	case ActionReportCreated, ActionReportVerified, ActionReportResolved,
		ActionUpvoteGiven, ActionUpvoteReceived, ActionCommentPosted, ActionCheckIn:
		return nil
	}
	return errors.New("unknown action type: " + string(a))
}
