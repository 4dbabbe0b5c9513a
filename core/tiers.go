package core

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Reward describes what a tier grants on reaching it.
type Reward struct {
	Badge       Badge  `json:"badge,omitempty"`
	Description string `json:"description"`
}

// Tier is one entry of the level table.
type Tier struct {
	Level       int      `json:"level"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	XPRequired  int64    `json:"xp_required"`
	Rewards     []Reward `json:"rewards,omitempty"`
}

// TierTable is the ordered level threshold table. It is loaded once per
// process and treated as immutable afterwards.
type TierTable []Tier

// DefaultTiers is the built-in level table for the civic reporting app.
func DefaultTiers() TierTable {
	return TierTable{
		{Level: 1, Title: "Newcomer", XPRequired: 0},
		{Level: 2, Title: "Observer", XPRequired: 100, Rewards: []Reward{{Badge: "observer", Description: "Observer badge"}}},
		{Level: 3, Title: "Reporter", XPRequired: 300, Rewards: []Reward{{Badge: "reporter", Description: "Reporter badge"}}},
		{Level: 4, Title: "Contributor", XPRequired: 600},
		{Level: 5, Title: "Advocate", XPRequired: 1000, Rewards: []Reward{{Badge: "advocate", Description: "Advocate badge"}, {Description: "Custom avatar frame"}}},
		{Level: 6, Title: "Organizer", XPRequired: 1500},
		{Level: 7, Title: "Watchdog", XPRequired: 2100, Rewards: []Reward{{Badge: "watchdog", Description: "Watchdog badge"}}},
		{Level: 8, Title: "Champion", XPRequired: 2800},
		{Level: 9, Title: "Guardian", XPRequired: 3600, Rewards: []Reward{{Badge: "guardian", Description: "Guardian badge"}}},
		{Level: 10, Title: "City Legend", XPRequired: 4500, Rewards: []Reward{{Badge: "legend", Description: "Legend badge"}, {Description: "Featured profile"}}},
	}
}

// Validate checks that the table is non-empty, sorted by level, and that
// xp_required is strictly increasing.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tier table is empty")
	}
	if !sort.SliceIsSorted(t, func(i, j int) bool { return t[i].Level < t[j].Level }) {
		return fmt.Errorf("tier table not sorted by level")
	}
	for i := 1; i < len(t); i++ {
		if t[i].Level == t[i-1].Level {
			return fmt.Errorf("duplicate tier level %d", t[i].Level)
		}
		if t[i].XPRequired <= t[i-1].XPRequired {
			return fmt.Errorf("xp_required not strictly increasing at level %d", t[i].Level)
		}
	}
	for _, tier := range t {
		if tier.Level < 1 {
			return fmt.Errorf("tier level must be positive, got %d", tier.Level)
		}
		if tier.XPRequired < 0 {
			return fmt.Errorf("negative xp_required at level %d", tier.Level)
		}
	}
	return nil
}

// LevelForXP returns the highest tier level whose threshold is <= xp.
// With a validated table the result is unique; thresholds are strictly
// increasing so ties cannot occur.
func (t TierTable) LevelForXP(xp int64) int {
	if len(t) == 0 {
		return 1
	}
	level := t[0].Level
	for _, tier := range t {
		if tier.XPRequired <= xp {
			level = tier.Level
		} else {
			break
		}
	}
	return level
}

// ByLevel returns the tier for an exact level.
func (t TierTable) ByLevel(level int) (Tier, bool) {
	for _, tier := range t {
		if tier.Level == level {
			return tier, true
		}
	}
	return Tier{}, false
}

// RewardsForLevel returns the reward list for a level, empty if the level
// defines none.
func (t TierTable) RewardsForLevel(level int) []Reward {
	tier, ok := t.ByLevel(level)
	if !ok {
		return nil
	}
	return tier.Rewards
}

// LoadTiers reads a tier table from a JSON file and validates it.
func LoadTiers(path string) (TierTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier file %s: %w", path, err)
	}
	var table TierTable
	if err := json.Unmarshal(b, &table); err != nil {
		return nil, fmt.Errorf("parse tier file %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("tier file %s: %w", path, err)
	}
	return table, nil
}
