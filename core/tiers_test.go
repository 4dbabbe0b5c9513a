package core

import "testing"

func threeTiers() TierTable {
	return TierTable{
		{Level: 1, Title: "Newcomer", XPRequired: 0},
		{Level: 2, Title: "Observer", XPRequired: 100},
		{Level: 3, Title: "Reporter", XPRequired: 300},
	}
}

func TestTierTableValidate(t *testing.T) {
	if err := DefaultTiers().Validate(); err != nil {
		t.Fatalf("default tiers invalid: %v", err)
	}
	bad := TierTable{
		{Level: 1, XPRequired: 0},
		{Level: 2, XPRequired: 0},
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected strictly-increasing violation")
	}
	unsorted := TierTable{
		{Level: 2, XPRequired: 100},
		{Level: 1, XPRequired: 0},
	}
	if err := unsorted.Validate(); err == nil {
		t.Fatal("expected sort violation")
	}
	if err := (TierTable{}).Validate(); err == nil {
		t.Fatal("expected empty table error")
	}
}

func TestLevelForXP(t *testing.T) {
	tiers := threeTiers()
	cases := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{150, 2},
		{299, 2},
		{300, 3},
		{10_000, 3},
	}
	for _, c := range cases {
		if got := tiers.LevelForXP(c.xp); got != c.want {
			t.Fatalf("LevelForXP(%d) = %d, want %d", c.xp, got, c.want)
		}
	}
}

func TestRewardsForLevel(t *testing.T) {
	tiers := DefaultTiers()
	if got := tiers.RewardsForLevel(2); len(got) == 0 {
		t.Fatal("level 2 should carry rewards")
	}
	// level without defined rewards yields an empty list, not an error
	if got := tiers.RewardsForLevel(4); len(got) != 0 {
		t.Fatalf("level 4 should have no rewards, got %v", got)
	}
	if got := tiers.RewardsForLevel(99); got != nil {
		t.Fatalf("unknown level should yield nil, got %v", got)
	}
}
