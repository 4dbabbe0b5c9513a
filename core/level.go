package core

// EvaluateLevel determines whether an unacknowledged level-up exists for
// the profile. The level is derived from XP via the tier table; an event
// fires iff it exceeds the last level the user has been shown. Multiple
// thresholds crossed in one XP jump collapse into a single event for the
// highest level reached.
//
// The evaluation is idempotent: once LastLevelShown has been advanced to
// the derived level, no further event fires for the same XP.
func EvaluateLevel(p Profile, tiers TierTable) (Event, bool) {
	current := tiers.LevelForXP(p.XP)
	if current <= p.LastLevelShown {
		return Event{}, false
	}
	return NewLevelUp(p.UserID, current, p.XP), true
}
