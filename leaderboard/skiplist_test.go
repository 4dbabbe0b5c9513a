package leaderboard

import (
	"context"
	"testing"

	mem "civickit/adapters/memory"
	"civickit/core"
	"civickit/engine"
)

func TestSkipListOrdering(t *testing.T) {
	s := NewSkipList()
	s.Update("a", 10)
	s.Update("b", 30)
	s.Update("c", 20)
	s.Update("a", 40) // move up

	top := s.TopN(2)
	if len(top) != 2 || top[0].User != "a" || top[1].User != "b" {
		t.Fatalf("unexpected order: %+v", top)
	}
	if e, ok := s.Get("c"); !ok || e.XP != 20 {
		t.Fatalf("get c: %+v %v", e, ok)
	}
	s.Remove("b")
	if _, ok := s.Get("b"); ok {
		t.Fatal("b should be removed")
	}
}

func TestFollowTracksXPTotals(t *testing.T) {
	store := mem.New(nil)
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewRewardService(store, bus, nil, nil)
	if err := svc.SeedDefaultRules(context.Background()); err != nil {
		t.Fatal(err)
	}

	board := NewSkipList()
	unfollow := Follow(svc, board)
	defer unfollow()

	if !svc.RecordAction(context.Background(), "alice", core.ActionReportCreated, "") {
		t.Fatal("record action failed")
	}
	if !svc.RecordAction(context.Background(), "bob", core.ActionCommentPosted, "") {
		t.Fatal("record action failed")
	}

	top := board.TopN(10)
	if len(top) != 2 || top[0].User != "alice" {
		t.Fatalf("unexpected board: %+v", top)
	}
	if top[0].XP != 50 {
		t.Fatalf("alice xp = %d, want 50", top[0].XP)
	}
}
