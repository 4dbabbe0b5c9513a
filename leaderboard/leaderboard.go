package leaderboard

import (
	"context"

	"civickit/core"
	"civickit/engine"
)

// Entry represents one ranked user.
type Entry struct {
	User core.UserID
	XP   int64
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, xp int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// Follow keeps the board current from the service's event stream. Every
// event carrying a running XP total updates the user's rank. Returns an
// unsubscribe func.
func Follow(svc *engine.RewardService, b Board) func() {
	handler := func(_ context.Context, e core.Event) {
		b.Update(e.UserID, e.TotalXP)
	}
	unsubs := []func(){
		svc.Subscribe(core.EventActionRecorded, handler),
		svc.Subscribe(core.EventCheckInCompleted, handler),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
