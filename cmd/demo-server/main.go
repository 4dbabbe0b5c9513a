package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	mem "civickit/adapters/memory"
	ws "civickit/adapters/websocket"
	"civickit/core"
	"civickit/engine"
	"civickit/realtime"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()
	store := mem.New(nil)
	bus := engine.NewEventBus(engine.DispatchAsync)
	svc := engine.NewRewardService(store, bus, nil, nil)
	if err := svc.SeedDefaultRules(ctx); err != nil {
		slog.Error("seeding reward rules failed", "error", err)
		os.Exit(1)
	}
	hub := realtime.NewHub()

	// Forward reward events to WebSocket clients
	bus.Subscribe(core.EventActionRecorded, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	bus.Subscribe(core.EventCheckInCompleted, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })

	http.Handle("/ws", ws.Handler(hub))
	http.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		// routes: POST /users/{id}/actions?action=report_created, POST /users/{id}/checkin, GET /users/{id}
		parts := split(r.URL.Path, '/')
		if len(parts) < 2 {
			http.NotFound(w, r)
			return
		}
		user := core.UserID(parts[1])
		switch r.Method {
		case http.MethodPost:
			if len(parts) >= 3 && parts[2] == "actions" {
				action := core.ActionType(r.URL.Query().Get("action"))
				ok := svc.RecordAction(ctx, user, action, r.URL.Query().Get("ref"))
				writeJSON(w, map[string]any{"recorded": ok})
				return
			}
			if len(parts) >= 3 && parts[2] == "checkin" {
				res, ok := svc.CheckIn(ctx, user)
				writeJSON(w, map[string]any{"ok": ok, "allowed": res.Allowed, "streak": res.NewStreak, "bonus_xp": res.BonusXP})
				return
			}
		case http.MethodGet:
			profile, err := svc.GetProfile(ctx, user)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, profile)
			return
		}
		http.NotFound(w, r)
	})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", nil); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func split(p string, sep rune) []string {
	var parts []string
	current := make([]rune, 0, len(p))

	for _, r := range p {
		if r == sep {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
			continue
		}
		current = append(current, r)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}
