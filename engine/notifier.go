package engine

import (
	"context"
	"sync"

	"civickit/core"
)

// ShowFunc is invoked when a level-up must be surfaced. rewards is the
// tier's reward list, possibly empty.
type ShowFunc func(level int, rewards []core.Reward)

// Notifier gates level-up presentation for one user: Idle -> Pending(level)
// -> Idle. A level-up is surfaced at most once per transition and the
// acknowledgment marker is persisted exactly once, on the exit transition.
//
// A second level-up arriving while one is pending is ignored; only one
// level is tracked at a time and the higher level re-fires after the
// current one is acknowledged.
type Notifier struct {
	mu      sync.Mutex
	svc     *RewardService
	user    core.UserID
	pending int // 0 means idle
	show    ShowFunc
	unsub   func()
}

// NewNotifier builds a notifier bound to the service's event bus. show may
// be nil when the caller polls Pending instead.
func NewNotifier(svc *RewardService, user core.UserID, show ShowFunc) (*Notifier, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	n := &Notifier{svc: svc, user: normalized, show: show}
	n.unsub = svc.Subscribe(core.EventLevelUp, func(_ context.Context, ev core.Event) {
		if ev.UserID == normalized {
			n.handle(ev)
		}
	})
	return n, nil
}

func (n *Notifier) handle(ev core.Event) {
	n.mu.Lock()
	if n.pending != 0 {
		// already pending; drop until the current one is acknowledged
		n.mu.Unlock()
		return
	}
	n.pending = ev.Level
	show := n.show
	n.mu.Unlock()
	if show != nil {
		show(ev.Level, n.svc.Tiers().RewardsForLevel(ev.Level))
	}
}

// Pending reports the level waiting for acknowledgment.
func (n *Notifier) Pending() (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending, n.pending != 0
}

// Rewards returns the reward list attached to the pending level, or nil
// when idle.
func (n *Notifier) Rewards() []core.Reward {
	n.mu.Lock()
	level := n.pending
	n.mu.Unlock()
	if level == 0 {
		return nil
	}
	return n.svc.Tiers().RewardsForLevel(level)
}

// Acknowledge persists last_level_shown for the pending level and returns
// to idle. On persistence failure the notifier stays pending so the caller
// can retry; the unacknowledged level-up is never lost.
func (n *Notifier) Acknowledge(ctx context.Context) bool {
	n.mu.Lock()
	level := n.pending
	n.mu.Unlock()
	if level == 0 {
		return true
	}
	if !n.svc.AcknowledgeLevel(ctx, n.user, level) {
		return false
	}
	n.mu.Lock()
	if n.pending == level {
		n.pending = 0
	}
	n.mu.Unlock()
	return true
}

// Reset discards the in-memory pending state without persisting anything.
// The server-side marker keeps the level-up unacknowledged, so it re-fires
// on the next session resume.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.pending = 0
	n.mu.Unlock()
}

// Close unsubscribes from the event bus. Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	unsub := n.unsub
	n.unsub = nil
	n.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
