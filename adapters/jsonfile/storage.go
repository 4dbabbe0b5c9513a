package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"civickit/core"
)

// Store persists entire state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path  string
	tiers core.TierTable

	mu sync.Mutex
	// in-memory state mirrored to disk on every write
	data fileState
}

type fileState struct {
	Rules    map[core.ActionType]int64           `json:"rules"`
	Profiles map[core.UserID]core.Profile        `json:"profiles"`
	Actions  map[core.UserID][]core.ActionRecord `json:"actions"`
	Requests map[string]struct{}                 `json:"requests"`
}

func New(path string, tiers core.TierTable) (*Store, error) {
	if tiers == nil {
		tiers = core.DefaultTiers()
	}
	s := &Store{path: path, tiers: tiers, data: emptyState()}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func emptyState() fileState {
	return fileState{
		Rules:    map[core.ActionType]int64{},
		Profiles: map[core.UserID]core.Profile{},
		Actions:  map[core.UserID][]core.ActionRecord{},
		Requests: map[string]struct{}{},
	}
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	state := emptyState()
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	s.data = state
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(user core.UserID) core.Profile {
	if p, ok := s.data.Profiles[user]; ok {
		return p
	}
	base := s.tiers.LevelForXP(0)
	p := core.Profile{UserID: user, Level: base, LastLevelShown: base, Updated: time.Now().UTC()}
	s.data.Profiles[user] = p
	return p
}

func (s *Store) RewardForAction(_ context.Context, action core.ActionType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xp, ok := s.data.Rules[action]
	if !ok {
		return 0, core.ErrNoRewardRule
	}
	return xp, nil
}

func (s *Store) PutRewardRule(_ context.Context, action core.ActionType, xp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Rules[action] = xp
	return s.persist()
}

func (s *Store) IncrementXP(_ context.Context, user core.UserID, delta int64) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(user)
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
	s.data.Profiles[user] = p
	if err := s.persist(); err != nil {
		return core.Profile{}, err
	}
	return p.Clone(), nil
}

func (s *Store) AppendAction(_ context.Context, rec core.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.data.Requests[rec.RequestID]; dup {
		return nil
	}
	s.data.Requests[rec.RequestID] = struct{}{}
	s.data.Actions[rec.UserID] = append(s.data.Actions[rec.UserID], rec)
	return s.persist()
}

func (s *Store) ActionsForUser(_ context.Context, user core.UserID, limit int) ([]core.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := s.data.Actions[user]
	n := len(actions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.ActionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, actions[i])
	}
	return out, nil
}

func (s *Store) SetLastLevelShown(_ context.Context, user core.UserID, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(user)
	p.LastLevelShown = level
	p.Updated = time.Now().UTC()
	s.data.Profiles[user] = p
	return s.persist()
}

func (s *Store) SetCheckIn(_ context.Context, user core.UserID, at time.Time, streak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(user)
	t := at.UTC()
	p.LastCheckIn = &t
	p.Streak = streak
	p.Updated = time.Now().UTC()
	s.data.Profiles[user] = p
	return s.persist()
}

func (s *Store) Profile(_ context.Context, user core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(user).Clone(), nil
}
