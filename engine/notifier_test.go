package engine

import (
	"context"
	"sync"
	"testing"

	mem "civickit/adapters/memory"
	"civickit/core"
)

func TestNotifierSurfacesOncePerLevelUp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	var shown []int
	var rewards [][]core.Reward
	n, err := NewNotifier(svc, "alice", func(level int, r []core.Reward) {
		shown = append(shown, level)
		rewards = append(rewards, r)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	if err := store.PutRewardRule(ctx, core.ActionReportResolved, 150); err != nil {
		t.Fatal(err)
	}
	if !svc.RecordAction(ctx, "alice", core.ActionReportResolved, "") {
		t.Fatal("record action failed")
	}

	if len(shown) != 1 || shown[0] != 2 {
		t.Fatalf("want one surface for level 2, got %v", shown)
	}
	if len(rewards[0]) == 0 {
		t.Fatal("level 2 rewards should be attached")
	}
	if lvl, ok := n.Pending(); !ok || lvl != 2 {
		t.Fatalf("pending = %d/%v, want 2", lvl, ok)
	}

	// another level-up while pending is ignored
	if !svc.RecordAction(ctx, "alice", core.ActionReportResolved, "") {
		t.Fatal("record action failed")
	}
	if len(shown) != 1 {
		t.Fatalf("second event surfaced while pending: %v", shown)
	}

	if !n.Acknowledge(ctx) {
		t.Fatal("acknowledge failed")
	}
	if _, ok := n.Pending(); ok {
		t.Fatal("still pending after acknowledgment")
	}
	p, _ := svc.GetProfile(ctx, "alice")
	if p.LastLevelShown != 2 {
		t.Fatalf("marker = %d, want 2", p.LastLevelShown)
	}
}

func TestNotifierStaysPendingWhenPersistFails(t *testing.T) {
	inner := mem.New(testTiers())
	store := &failingStore{Storage: inner, failures: ackAttempts} // exhaust every attempt once
	bus := NewEventBus(DispatchSync)
	svc := NewRewardService(store, bus, testTiers(), nil)
	ctx := context.Background()

	n, err := NewNotifier(svc, "bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	if _, err := inner.IncrementXP(ctx, "bob", 150); err != nil {
		t.Fatal(err)
	}
	bus.Publish(ctx, core.NewLevelUp("bob", 2, 150))

	if n.Acknowledge(ctx) {
		t.Fatal("acknowledge should fail while storage is down")
	}
	if lvl, ok := n.Pending(); !ok || lvl != 2 {
		t.Fatalf("must remain pending after failure, got %d/%v", lvl, ok)
	}

	// storage recovered: retrying the acknowledgment drains the state
	if !n.Acknowledge(ctx) {
		t.Fatal("retry should succeed")
	}
	if _, ok := n.Pending(); ok {
		t.Fatal("still pending after successful retry")
	}
	p, _ := inner.Profile(ctx, "bob")
	if p.LastLevelShown != 2 {
		t.Fatalf("marker = %d, want 2", p.LastLevelShown)
	}
}

func TestNotifierAcknowledgeIdleIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := NewNotifier(svc, "carol", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	if !n.Acknowledge(context.Background()) {
		t.Fatal("idle acknowledge should succeed")
	}
}

func TestSessionResumeRefiresUnacknowledgedLevelUp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// a previous session earned a level-up and went away without acking
	if _, err := store.IncrementXP(ctx, "dana", 150); err != nil {
		t.Fatal(err)
	}

	var shown []int
	sess, err := NewSession(svc, "dana", func(level int, _ []core.Reward) { shown = append(shown, level) })
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if err := sess.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	if len(shown) != 1 || shown[0] != 2 {
		t.Fatalf("resume should re-surface level 2, got %v", shown)
	}

	// closing the session drops local state but keeps the marker, so a
	// fresh session re-fires again
	sess.Close()
	var again []int
	sess2, err := NewSession(svc, "dana", func(level int, _ []core.Reward) { again = append(again, level) })
	if err != nil {
		t.Fatal(err)
	}
	defer sess2.Close()
	if err := sess2.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 {
		t.Fatalf("unacknowledged level-up should re-fire, got %v", again)
	}
}

func TestNotifierCloseConcurrent(t *testing.T) {
	svc, _ := newTestService(t)

	n, err := NewNotifier(svc, "alice", nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Close()
		}()
	}
	wg.Wait()

	// closed notifier no longer receives level-ups
	svc.Publish(context.Background(), core.NewLevelUp("alice", 2, 150))
	if _, ok := n.Pending(); ok {
		t.Fatal("closed notifier still tracking level-ups")
	}
}
