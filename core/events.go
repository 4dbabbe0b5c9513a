package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventActionRecorded   EventType = "action_recorded"
	EventLevelUp          EventType = "level_up"
	EventCheckInCompleted EventType = "check_in_completed"
	EventStreakReset      EventType = "streak_reset"
)

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id"`
	Action      ActionType     `json:"action,omitempty"`
	XPEarned    int64          `json:"xp_earned,omitempty"`
	TotalXP     int64          `json:"total_xp,omitempty"`
	Level       int            `json:"level,omitempty"`
	Streak      int            `json:"streak,omitempty"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewActionRecorded(user UserID, action ActionType, earned, total int64, referenceID string) Event {
	return Event{Type: EventActionRecorded, Time: time.Now().UTC(), UserID: user, Action: action, XPEarned: earned, TotalXP: total, ReferenceID: referenceID}
}

func NewLevelUp(user UserID, level int, totalXP int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level, TotalXP: totalXP}
}

func NewCheckInCompleted(user UserID, streak int, bonusXP, totalXP int64) Event {
	return Event{Type: EventCheckInCompleted, Time: time.Now().UTC(), UserID: user, Action: ActionCheckIn, XPEarned: bonusXP, TotalXP: totalXP, Streak: streak}
}

func NewStreakReset(user UserID, previousStreak int) Event {
	return Event{Type: EventStreakReset, Time: time.Now().UTC(), UserID: user, Streak: previousStreak}
}
