package rewards

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civickit/core"
	"civickit/engine"
	"civickit/realtime"
)

// Option configures the reward service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	tiers   core.TierTable
	log     *slog.Logger
	hub     *realtime.Hub
	seed    bool
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithTiers sets the level tier table.
func WithTiers(t core.TierTable) Option { return func(c *config) { c.tiers = t } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithoutDefaultRules skips seeding the built-in reward rules, leaving
// rule management entirely to the caller.
func WithoutDefaultRules() Option { return func(c *config) { c.seed = false } }

// New builds a configured RewardService. If not provided, defaults are used:
//   - storage: in-memory
//   - tiers: core.DefaultTiers
//   - dispatch: async
//   - rules: seeded from core.DefaultRewardRules
func New(opts ...Option) *engine.RewardService {
	cfg := &config{mode: engine.DispatchAsync, seed: true}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		// implementors should pass explicit storage in prod
		cfg.storage = &memStore{}
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewRewardService(cfg.storage, bus, cfg.tiers, cfg.log)
	if cfg.seed {
		if err := svc.SeedDefaultRules(context.Background()); err != nil && cfg.log != nil {
			cfg.log.Error("seeding default reward rules failed", "error", err)
		}
	}
	if cfg.hub != nil {
		// Bridge all primary events to realtime
		bus.Subscribe(core.EventActionRecorded, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventCheckInCompleted, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventStreakReset, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
	}
	return svc
}

// memStore is a minimal local storage mirroring adapters/memory, kept here
// so New() works without wiring an adapter and without an import cycle.
type memStore struct {
	mu       sync.Mutex
	tiers    core.TierTable
	rules    map[core.ActionType]int64
	profiles map[core.UserID]core.Profile
	actions  map[core.UserID][]core.ActionRecord
	seen     map[string]struct{}
}

func (s *memStore) init() {
	if s.rules == nil {
		s.tiers = core.DefaultTiers()
		s.rules = map[core.ActionType]int64{}
		s.profiles = map[core.UserID]core.Profile{}
		s.actions = map[core.UserID][]core.ActionRecord{}
		s.seen = map[string]struct{}{}
	}
}

func (s *memStore) profile(u core.UserID) core.Profile {
	if p, ok := s.profiles[u]; ok {
		return p
	}
	lvl := s.tiers.LevelForXP(0)
	return core.Profile{UserID: u, Level: lvl, LastLevelShown: lvl}
}

func (s *memStore) RewardForAction(_ context.Context, action core.ActionType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	xp, ok := s.rules[action]
	if !ok {
		return 0, core.ErrNoRewardRule
	}
	return xp, nil
}

func (s *memStore) PutRewardRule(_ context.Context, action core.ActionType, xp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.rules[action] = xp
	return nil
}

func (s *memStore) IncrementXP(_ context.Context, u core.UserID, delta int64) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	p := s.profile(u)
	next, err := core.AddSafe(p.XP, delta)
	if err != nil {
		return core.Profile{}, err
	}
	if next < 0 {
		next = 0
	}
	p.XP = next
	p.Level = s.tiers.LevelForXP(next)
	p.Updated = time.Now().UTC()
	s.profiles[u] = p
	return p.Clone(), nil
}

func (s *memStore) AppendAction(_ context.Context, rec core.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, dup := s.seen[rec.RequestID]; dup {
		return nil
	}
	s.seen[rec.RequestID] = struct{}{}
	s.actions[rec.UserID] = append([]core.ActionRecord{rec}, s.actions[rec.UserID]...)
	return nil
}

func (s *memStore) ActionsForUser(_ context.Context, u core.UserID, limit int) ([]core.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	list := s.actions[u]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]core.ActionRecord, len(list))
	copy(out, list)
	return out, nil
}

func (s *memStore) SetLastLevelShown(_ context.Context, u core.UserID, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	p := s.profile(u)
	p.LastLevelShown = level
	p.Updated = time.Now().UTC()
	s.profiles[u] = p
	return nil
}

func (s *memStore) SetCheckIn(_ context.Context, u core.UserID, at time.Time, streak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	p := s.profile(u)
	p.LastCheckIn = &at
	p.Streak = streak
	p.Updated = time.Now().UTC()
	s.profiles[u] = p
	return nil
}

func (s *memStore) Profile(_ context.Context, u core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.profile(u).Clone(), nil
}
