package core

import "time"

// Check-in tuning. A check-in is allowed once the minimum gap has passed;
// the streak survives until the reset window lapses.
const (
	BaseCheckInXP   int64 = 30
	StreakBonusXP   int64 = 5
	MinHoursBetween       = 24
	ResetAfterHours       = 48
)

// CheckInResult is the outcome of evaluating a check-in attempt.
type CheckInResult struct {
	Allowed   bool  `json:"allowed"`
	NewStreak int   `json:"new_streak"`
	BonusXP   int64 `json:"bonus_xp"`
}

// EvaluateCheckIn decides whether a check-in at now is allowed and what it
// yields. It is pure: persistence and the clock belong to the caller.
//
//   - no previous check-in: first check-in, streak 1, base XP
//   - gap < 24h: too soon, nothing changes
//   - 24h <= gap <= 48h: streak continues, bonus scales with the new streak
//   - gap > 48h: streak resets to 1, base XP only
func EvaluateCheckIn(lastCheckIn *time.Time, streak int, now time.Time) (CheckInResult, error) {
	if lastCheckIn == nil {
		return CheckInResult{Allowed: true, NewStreak: 1, BonusXP: BaseCheckInXP}, nil
	}
	elapsed := now.Sub(*lastCheckIn)
	if elapsed < 0 {
		return CheckInResult{}, ErrInvalidTimestamp
	}
	hours := elapsed.Hours()
	switch {
	case hours < MinHoursBetween:
		return CheckInResult{Allowed: false, NewStreak: streak}, nil
	case hours <= ResetAfterHours:
		next := streak + 1
		return CheckInResult{Allowed: true, NewStreak: next, BonusXP: BaseCheckInXP + int64(next)*StreakBonusXP}, nil
	default:
		return CheckInResult{Allowed: true, NewStreak: 1, BonusXP: BaseCheckInXP}, nil
	}
}
