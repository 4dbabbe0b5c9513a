package memory

import (
	"context"
	"sync"
	"time"

	"civickit/core"
)

// Store is a concurrent in-memory Storage implementation. Levels are
// derived from the tier table supplied at construction, mirroring the
// server-side computation of hosted backends.
type Store struct {
	tiers core.TierTable

	mu    sync.RWMutex
	rules map[core.ActionType]int64

	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu      sync.Mutex
	profile core.Profile
	actions []core.ActionRecord
	seen    map[string]struct{} // request ids already appended
}

func New(tiers core.TierTable) *Store {
	if tiers == nil {
		tiers = core.DefaultTiers()
	}
	return &Store{tiers: tiers, rules: map[core.ActionType]int64{}}
}

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{
		profile: core.Profile{
			UserID:         user,
			Level:          s.tiers.LevelForXP(0),
			LastLevelShown: s.tiers.LevelForXP(0),
			Updated:        time.Now().UTC(),
		},
		seen: map[string]struct{}{},
	}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

func (s *Store) RewardForAction(_ context.Context, action core.ActionType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	xp, ok := s.rules[action]
	if !ok {
		return 0, core.ErrNoRewardRule
	}
	return xp, nil
}

func (s *Store) PutRewardRule(_ context.Context, action core.ActionType, xp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[action] = xp
	return nil
}

func (s *Store) IncrementXP(_ context.Context, user core.UserID, delta int64) (core.Profile, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.profile.XP, delta)
	if err != nil {
		return core.Profile{}, err
	}
	if next < 0 {
		next = 0
	}
	rec.profile.XP = next
	rec.profile.Level = s.tiers.LevelForXP(next)
	rec.profile.Updated = time.Now().UTC()
	return rec.profile.Clone(), nil
}

func (s *Store) AppendAction(_ context.Context, record core.ActionRecord) error {
	rec := s.getOrCreate(record.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, dup := rec.seen[record.RequestID]; dup {
		return nil
	}
	rec.seen[record.RequestID] = struct{}{}
	rec.actions = append(rec.actions, record)
	return nil
}

func (s *Store) ActionsForUser(_ context.Context, user core.UserID, limit int) ([]core.ActionRecord, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.actions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.ActionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, rec.actions[i])
	}
	return out, nil
}

func (s *Store) SetLastLevelShown(_ context.Context, user core.UserID, level int) error {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.profile.LastLevelShown = level
	rec.profile.Updated = time.Now().UTC()
	return nil
}

func (s *Store) SetCheckIn(_ context.Context, user core.UserID, at time.Time, streak int) error {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	t := at.UTC()
	rec.profile.LastCheckIn = &t
	rec.profile.Streak = streak
	rec.profile.Updated = time.Now().UTC()
	return nil
}

func (s *Store) Profile(_ context.Context, user core.UserID) (core.Profile, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.profile.Clone(), nil
}
