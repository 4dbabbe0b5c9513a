package analytics

import (
	"sync"
	"time"

	"civickit/core"
)

// Hook receives reward events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// EngagementMetrics aggregates reward activity counters.
type EngagementMetrics struct {
	mu sync.RWMutex

	xpAwardedByDay    map[string]int64
	xpAwardedByAction map[core.ActionType]int64
	actionsByType     map[core.ActionType]int64

	checkInsByDay map[string]int64
	streakResets  int64
	longestStreak map[core.UserID]int

	levelUpsByDay     map[string]int64
	levelDistribution map[int]int64
}

func NewEngagementMetrics() *EngagementMetrics {
	return &EngagementMetrics{
		xpAwardedByDay:    map[string]int64{},
		xpAwardedByAction: map[core.ActionType]int64{},
		actionsByType:     map[core.ActionType]int64{},
		checkInsByDay:     map[string]int64{},
		longestStreak:     map[core.UserID]int{},
		levelUpsByDay:     map[string]int64{},
		levelDistribution: map[int]int64{},
	}
}

func (m *EngagementMetrics) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	m.mu.Lock()
	defer m.mu.Unlock()
	switch e.Type {
	case core.EventActionRecorded:
		m.xpAwardedByDay[day] += e.XPEarned
		m.xpAwardedByAction[e.Action] += e.XPEarned
		m.actionsByType[e.Action]++
	case core.EventCheckInCompleted:
		m.xpAwardedByDay[day] += e.XPEarned
		m.checkInsByDay[day]++
		if e.Streak > m.longestStreak[e.UserID] {
			m.longestStreak[e.UserID] = e.Streak
		}
	case core.EventStreakReset:
		m.streakResets++
	case core.EventLevelUp:
		m.levelUpsByDay[day]++
		m.levelDistribution[e.Level]++
	}
}

// XPAwarded returns the XP granted on a given day (UTC, "2006-01-02").
func (m *EngagementMetrics) XPAwarded(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.xpAwardedByDay[day]
}

// ActionCount returns how many actions of a type were recorded.
func (m *EngagementMetrics) ActionCount(action core.ActionType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actionsByType[action]
}

// CheckIns returns the number of completed check-ins on a day.
func (m *EngagementMetrics) CheckIns(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkInsByDay[day]
}

// StreakResets returns the total number of streak resets observed.
func (m *EngagementMetrics) StreakResets() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streakResets
}

// LongestStreak returns the longest streak observed for a user.
func (m *EngagementMetrics) LongestStreak(user core.UserID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.longestStreak[user]
}

// Snapshot is a point-in-time summary of the aggregated counters.
type Snapshot struct {
	GeneratedAt       time.Time                 `json:"generated_at"`
	XPAwardedByAction map[core.ActionType]int64 `json:"xp_awarded_by_action"`
	ActionsByType     map[core.ActionType]int64 `json:"actions_by_type"`
	StreakResets      int64                     `json:"streak_resets"`
	LevelDistribution map[int]int64             `json:"level_distribution"`
}

// Export returns a copy of the aggregated counters.
func (m *EngagementMetrics) Export() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		GeneratedAt:       time.Now().UTC(),
		XPAwardedByAction: make(map[core.ActionType]int64, len(m.xpAwardedByAction)),
		ActionsByType:     make(map[core.ActionType]int64, len(m.actionsByType)),
		StreakResets:      m.streakResets,
		LevelDistribution: make(map[int]int64, len(m.levelDistribution)),
	}
	for k, v := range m.xpAwardedByAction {
		snap.XPAwardedByAction[k] = v
	}
	for k, v := range m.actionsByType {
		snap.ActionsByType[k] = v
	}
	for k, v := range m.levelDistribution {
		snap.LevelDistribution[k] = v
	}
	return snap
}
