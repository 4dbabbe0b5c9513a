package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Profile mirrors the public JSON surface of core.Profile.
type Profile struct {
	UserID         string     `json:"user_id"`
	XP             int64      `json:"xp"`
	Level          int        `json:"level"`
	LastLevelShown int        `json:"last_level_shown"`
	LastCheckIn    *time.Time `json:"last_check_in,omitempty"`
	Streak         int        `json:"streak"`
	Updated        time.Time  `json:"updated"`
}

// ActionRecord mirrors one entry of the action log.
type ActionRecord struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	XPEarned    int64     `json:"xp_earned"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActionResult describes the outcome of recording an action.
type ActionResult struct {
	Recorded bool  `json:"recorded"`
	XP       int64 `json:"xp"`
	Level    int   `json:"level"`
}

// CheckInResult describes the outcome of a daily check-in.
type CheckInResult struct {
	Allowed bool  `json:"allowed"`
	Streak  int   `json:"streak"`
	BonusXP int64 `json:"bonus_xp"`
}

// Tier mirrors one level threshold of the tier table.
type Tier struct {
	Level      int    `json:"level"`
	XPRequired int64  `json:"xp_required"`
	Title      string `json:"title"`
}

// LeaderboardEntry mirrors one ranked leaderboard row.
type LeaderboardEntry struct {
	User string `json:"User"`
	XP   int64  `json:"XP"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
