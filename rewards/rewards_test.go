package rewards

import (
	"context"
	"testing"

	mem "civickit/adapters/memory"
	"civickit/core"
	"civickit/engine"
	"civickit/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	svc := New(
		WithRealtime(hub),
		WithStorage(mem.New(nil)),
		WithDispatchMode(engine.DispatchSync),
	)
	defer svc.Close()

	// basic operation through seeded default rules
	if ok := svc.RecordAction(context.Background(), "alice", core.ActionReportCreated, "r-1"); !ok {
		t.Fatal("record action failed")
	}
	profile, err := svc.GetProfile(context.Background(), "alice")
	if err != nil || profile.XP != 50 {
		t.Fatalf("profile xp=%d err=%v", profile.XP, err)
	}

	// realtime bridge should receive event
	_, ch := hub.Subscribe(1)
	svc.Publish(context.Background(), core.NewActionRecorded("alice", core.ActionReportCreated, 50, 100, "r-2"))
	ev := <-ch
	if ev.UserID != "alice" || ev.Type != core.EventActionRecorded {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestInMemoryFallback(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()

	if ok := svc.RecordAction(context.Background(), "bob", core.ActionCommentPosted, ""); !ok {
		t.Fatal("fallback record action failed")
	}
	profile, err := svc.GetProfile(context.Background(), "bob")
	if err != nil {
		t.Fatalf("fallback get profile: %v", err)
	}
	if profile.XP != 5 {
		t.Fatalf("expected 5 xp, got %d", profile.XP)
	}
}

func TestWithoutDefaultRules(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync), WithoutDefaultRules())
	defer svc.Close()

	if ok := svc.RecordAction(context.Background(), "carol", core.ActionReportCreated, ""); ok {
		t.Fatal("expected record to fail with no rules seeded")
	}
}
