package core

// DefaultRewardRules maps each rewarded action to its XP value. The rule
// set is reference data owned by storage; this table seeds empty backends.
// Check-ins are excluded: their XP comes from the streak evaluator.
func DefaultRewardRules() map[ActionType]int64 {
	return map[ActionType]int64{
		ActionReportCreated:  50,
		ActionReportVerified: 100,
		ActionReportResolved: 150,
		ActionUpvoteGiven:    2,
		ActionUpvoteReceived: 10,
		ActionCommentPosted:  5,
	}
}
