package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mem "civickit/adapters/memory"
	"civickit/engine"
	"civickit/leaderboard"
)

func TestRecordActionSuccess(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	body := strings.NewReader(`{"action":"report_created","reference_id":"r-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/actions", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["recorded"] != true {
		t.Fatalf("expected recorded true, got %v", resp["recorded"])
	}
	if resp["xp"] != float64(50) {
		t.Fatalf("expected xp 50, got %v", resp["xp"])
	}
}

func TestRecordActionValidation(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	body := strings.NewReader(`{"action":"bogus"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/actions", body)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckInAndRepeat(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/checkin", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["allowed"] != true {
		t.Fatalf("expected allowed true, got %v", resp["allowed"])
	}
	if resp["streak"] != float64(1) {
		t.Fatalf("expected streak 1, got %v", resp["streak"])
	}

	// Second check-in the same day is disallowed, not an error.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/api/users/alice/checkin", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	var resp2 map[string]any
	_ = json.Unmarshal(rec2.Body.Bytes(), &resp2)
	if resp2["allowed"] != false {
		t.Fatalf("expected allowed false, got %v", resp2["allowed"])
	}
}

func TestAcknowledgeLevelValidation(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	body := strings.NewReader(`{"level":0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/levelup/ack", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUnknownProfile(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetTiers(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/tiers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tiers []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &tiers); err != nil {
		t.Fatalf("unmarshal tiers: %v", err)
	}
	if len(tiers) == 0 {
		t.Fatal("expected non-empty tier table")
	}
}

func TestLeaderboardRoute(t *testing.T) {
	svc := newTestService(t)
	board := leaderboard.NewSkipList()
	unfollow := leaderboard.Follow(svc, board)
	defer unfollow()
	handler := NewMux(svc, nil, board, Options{PathPrefix: "/api"})

	body := strings.NewReader(`{"action":"report_created","reference_id":"r-1"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/alice/actions", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/leaderboard?n=5", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(rec2.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestRateLimit(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}

func newTestService(t *testing.T) *engine.RewardService {
	t.Helper()
	storage := mem.New(nil)
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewRewardService(storage, bus, nil, nil)
	if err := svc.SeedDefaultRules(context.Background()); err != nil {
		t.Fatalf("seed rules: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestHealthzContentType(t *testing.T) {
	svc := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", resp["status"])
	}
}
