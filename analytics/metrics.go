package analytics

import (
	"context"

	"civickit/core"
	"civickit/engine"
)

// BridgeHook fans an event stream out to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Follow subscribes a hook to every event type the service publishes.
// The returned function removes the subscriptions.
func Follow(svc *engine.RewardService, h Hook) func() {
	types := []core.EventType{
		core.EventActionRecorded,
		core.EventLevelUp,
		core.EventCheckInCompleted,
		core.EventStreakReset,
	}
	handler := func(_ context.Context, e core.Event) { h.OnEvent(e) }
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, svc.Subscribe(t, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
