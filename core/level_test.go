package core

import "testing"

func TestEvaluateLevelFiresOnceForHighestLevel(t *testing.T) {
	tiers := threeTiers()

	// 0 -> 150 XP crosses the level 2 threshold only
	p := Profile{UserID: "u1", XP: 150, LastLevelShown: 1}
	ev, ok := EvaluateLevel(p, tiers)
	if !ok {
		t.Fatal("expected level-up event")
	}
	if ev.Type != EventLevelUp || ev.Level != 2 || ev.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// one jump past two thresholds yields a single event for the highest
	p = Profile{UserID: "u1", XP: 350, LastLevelShown: 1}
	ev, ok = EvaluateLevel(p, tiers)
	if !ok || ev.Level != 3 {
		t.Fatalf("want single event for level 3, got ok=%v ev=%+v", ok, ev)
	}
}

func TestEvaluateLevelIdempotent(t *testing.T) {
	tiers := threeTiers()
	p := Profile{UserID: "u1", XP: 150, LastLevelShown: 1}
	if _, ok := EvaluateLevel(p, tiers); !ok {
		t.Fatal("expected event")
	}
	// after acknowledgment the marker equals the derived level
	p.LastLevelShown = 2
	if _, ok := EvaluateLevel(p, tiers); ok {
		t.Fatal("no event expected once last shown level caught up")
	}
}
