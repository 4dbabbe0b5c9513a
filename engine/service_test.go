package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	mem "civickit/adapters/memory"
	"civickit/core"
)

func testTiers() core.TierTable {
	return core.TierTable{
		{Level: 1, Title: "Newcomer", XPRequired: 0},
		{Level: 2, Title: "Observer", XPRequired: 100, Rewards: []core.Reward{{Badge: "observer", Description: "Observer badge"}}},
		{Level: 3, Title: "Reporter", XPRequired: 300},
	}
}

func newTestService(t *testing.T) (*RewardService, *mem.Store) {
	t.Helper()
	store := mem.New(testTiers())
	bus := NewEventBus(DispatchSync)
	svc := NewRewardService(store, bus, testTiers(), nil)
	if err := svc.SeedDefaultRules(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc, store
}

func TestRecordActionGrantsXPAndFiresLevelUp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := store.PutRewardRule(ctx, core.ActionReportResolved, 150); err != nil {
		t.Fatal(err)
	}

	var levelUps []core.Event
	svc.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levelUps = append(levelUps, e) })

	if !svc.RecordAction(ctx, "alice", core.ActionReportResolved, "report-9") {
		t.Fatal("record action failed")
	}

	p, err := svc.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.XP != 150 || p.Level != 2 {
		t.Fatalf("want xp=150 level=2, got xp=%d level=%d", p.XP, p.Level)
	}
	if len(levelUps) != 1 || levelUps[0].Level != 2 {
		t.Fatalf("want one level-up for level 2, got %+v", levelUps)
	}

	actions, err := svc.Actions(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].XPEarned != 150 || actions[0].ReferenceID != "report-9" {
		t.Fatalf("unexpected action log: %+v", actions)
	}
}

func TestRecordActionMissingRuleNoMutation(t *testing.T) {
	store := mem.New(testTiers())
	bus := NewEventBus(DispatchSync)
	svc := NewRewardService(store, bus, testTiers(), nil)
	ctx := context.Background()

	// no rules seeded
	if svc.RecordAction(ctx, "bob", core.ActionReportCreated, "") {
		t.Fatal("expected failure for missing rule")
	}
	p, err := svc.GetProfile(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if p.XP != 0 {
		t.Fatalf("xp mutated despite missing rule: %d", p.XP)
	}
	actions, _ := svc.Actions(ctx, "bob", 10)
	if len(actions) != 0 {
		t.Fatalf("action logged despite missing rule: %+v", actions)
	}
}

func TestRecordActionRejectsUnknownAction(t *testing.T) {
	svc, _ := newTestService(t)
	if svc.RecordAction(context.Background(), "bob", "report_deleted", "") {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestCheckInFirstAndTooSoon(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, ok := svc.CheckIn(ctx, "carol")
	if !ok || !res.Allowed || res.NewStreak != 1 || res.BonusXP != core.BaseCheckInXP {
		t.Fatalf("first check-in: ok=%v res=%+v", ok, res)
	}

	p, err := svc.GetProfile(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if p.XP != core.BaseCheckInXP || p.Streak != 1 || p.LastCheckIn == nil {
		t.Fatalf("profile after first check-in: %+v", p)
	}

	// immediately again: too soon, no mutation
	res, ok = svc.CheckIn(ctx, "carol")
	if !ok || res.Allowed {
		t.Fatalf("second check-in should be disallowed: ok=%v res=%+v", ok, res)
	}
	p2, _ := svc.GetProfile(ctx, "carol")
	if p2.XP != p.XP || p2.Streak != p.Streak {
		t.Fatalf("disallowed check-in mutated profile: %+v", p2)
	}
}

func TestCheckInContinuesAndResetsStreak(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	fake := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fake }

	if _, ok := svc.CheckIn(ctx, "dave"); !ok {
		t.Fatal("first check-in failed")
	}

	// 25h later the streak continues
	fake = fake.Add(25 * time.Hour)
	res, ok := svc.CheckIn(ctx, "dave")
	if !ok || !res.Allowed || res.NewStreak != 2 {
		t.Fatalf("want streak 2, got ok=%v res=%+v", ok, res)
	}
	if want := core.BaseCheckInXP + 2*core.StreakBonusXP; res.BonusXP != want {
		t.Fatalf("want bonus %d, got %d", want, res.BonusXP)
	}

	// lapse past the reset window
	var resets int
	svc.Subscribe(core.EventStreakReset, func(_ context.Context, e core.Event) { resets++ })
	fake = fake.Add(72 * time.Hour)
	res, ok = svc.CheckIn(ctx, "dave")
	if !ok || res.NewStreak != 1 || res.BonusXP != core.BaseCheckInXP {
		t.Fatalf("want streak reset to 1, got ok=%v res=%+v", ok, res)
	}
	if resets != 1 {
		t.Fatalf("want one streak_reset event, got %d", resets)
	}

	p, _ := store.Profile(ctx, "dave")
	if p.Streak != 1 {
		t.Fatalf("persisted streak = %d, want 1", p.Streak)
	}
}

// blockingStore parks IncrementXP until released, to hold an operation in
// flight.
type blockingStore struct {
	Storage
	entered chan struct{}
	release chan struct{}
	first   atomic.Bool
}

func (b *blockingStore) IncrementXP(ctx context.Context, user core.UserID, delta int64) (core.Profile, error) {
	if b.first.CompareAndSwap(false, true) {
		close(b.entered)
		<-b.release
	}
	return b.Storage.IncrementXP(ctx, user, delta)
}

func TestRecordActionRejectsConcurrentCallForSameUser(t *testing.T) {
	inner := mem.New(testTiers())
	if err := inner.PutRewardRule(context.Background(), core.ActionReportCreated, 50); err != nil {
		t.Fatal(err)
	}
	store := &blockingStore{Storage: inner, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewRewardService(store, NewEventBus(DispatchSync), testTiers(), nil)

	done := make(chan bool, 1)
	go func() { done <- svc.RecordAction(context.Background(), "erin", core.ActionReportCreated, "") }()
	<-store.entered

	// second call for the same user while the first is in flight
	if svc.RecordAction(context.Background(), "erin", core.ActionReportCreated, "") {
		t.Fatal("concurrent call should be rejected")
	}
	// a different user is unaffected
	if !svc.RecordAction(context.Background(), "frank", core.ActionReportCreated, "") {
		t.Fatal("other user should not be blocked")
	}

	close(store.release)
	if ok := <-done; !ok {
		t.Fatal("first call should succeed")
	}
}

// failingStore fails SetLastLevelShown a fixed number of times.
type failingStore struct {
	Storage
	failures int
	calls    int
}

func (f *failingStore) SetLastLevelShown(ctx context.Context, user core.UserID, level int) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient backend failure")
	}
	return f.Storage.SetLastLevelShown(ctx, user, level)
}

func TestAcknowledgeLevelRetriesTransientFailure(t *testing.T) {
	inner := mem.New(testTiers())
	store := &failingStore{Storage: inner, failures: 1}
	svc := NewRewardService(store, NewEventBus(DispatchSync), testTiers(), nil)
	ctx := context.Background()

	if _, err := inner.IncrementXP(ctx, "gil", 150); err != nil {
		t.Fatal(err)
	}

	if !svc.AcknowledgeLevel(ctx, "gil", 2) {
		t.Fatal("acknowledge should succeed after retry")
	}
	p, _ := inner.Profile(ctx, "gil")
	if p.LastLevelShown != 2 {
		t.Fatalf("marker = %d, want 2", p.LastLevelShown)
	}
	if store.calls != 2 {
		t.Fatalf("want 2 persistence attempts, got %d", store.calls)
	}
}

func TestAcknowledgeLevelClampsToDerivedLevel(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := store.IncrementXP(ctx, "hana", 150); err != nil {
		t.Fatal(err)
	}
	if !svc.AcknowledgeLevel(ctx, "hana", 5) {
		t.Fatal("acknowledge failed")
	}
	p, _ := store.Profile(ctx, "hana")
	if p.LastLevelShown != 2 {
		t.Fatalf("marker = %d, want clamp to 2", p.LastLevelShown)
	}
}

func TestEventTimesFollowServiceClock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fake := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fake }

	var events []core.Event
	collect := func(_ context.Context, e core.Event) { events = append(events, e) }
	svc.Subscribe(core.EventActionRecorded, collect)
	svc.Subscribe(core.EventCheckInCompleted, collect)
	svc.Subscribe(core.EventLevelUp, collect)

	if !svc.RecordAction(ctx, "erin", core.ActionReportCreated, "report-1") {
		t.Fatal("record action failed")
	}
	if _, ok := svc.CheckIn(ctx, "erin"); !ok {
		t.Fatal("check-in failed")
	}

	if len(events) == 0 {
		t.Fatal("no events published")
	}
	for _, e := range events {
		if !e.Time.Equal(fake) {
			t.Fatalf("%s event time = %v, want %v", e.Type, e.Time, fake)
		}
	}

	actions, err := svc.Actions(ctx, "erin", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range actions {
		if !a.CreatedAt.Equal(fake) {
			t.Fatalf("action record time = %v, want %v", a.CreatedAt, fake)
		}
	}
}
