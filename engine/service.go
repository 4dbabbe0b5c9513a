package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"civickit/core"
)

const (
	ackAttempts = 3
	ackBackoff  = 100 * time.Millisecond
)

// RewardService resolves user actions into XP grants, drives check-ins,
// and persists level-up acknowledgments. Remote failures are logged and
// reported as boolean results; callers never see raw storage errors.
type RewardService struct {
	storage Storage
	bus     *EventBus
	tiers   core.TierTable
	log     *slog.Logger

	// clock and id source are injectable for tests
	now   func() time.Time
	newID func() string

	// one in-flight reward operation per user; a concurrent second call
	// for the same user is rejected, not queued
	inflight sync.Map
}

func NewRewardService(storage Storage, bus *EventBus, tiers core.TierTable, log *slog.Logger) *RewardService {
	if storage == nil || bus == nil {
		panic("NewRewardService requires non-nil storage and bus")
	}
	if tiers == nil {
		tiers = core.DefaultTiers()
	}
	if err := tiers.Validate(); err != nil {
		panic("NewRewardService: " + err.Error())
	}
	if log == nil {
		log = slog.Default()
	}
	return &RewardService{
		storage: storage,
		bus:     bus,
		tiers:   tiers,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SeedDefaultRules installs the built-in reward rules into storage.
// Existing rules are overwritten.
func (s *RewardService) SeedDefaultRules(ctx context.Context) error {
	for action, xp := range core.DefaultRewardRules() {
		if err := s.storage.PutRewardRule(ctx, action, xp); err != nil {
			return err
		}
	}
	return nil
}

// Tiers returns the level table the service was built with.
func (s *RewardService) Tiers() core.TierTable { return s.tiers }

// Subscribe convenience method.
func (s *RewardService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *RewardService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *RewardService) Close() { s.bus.Close() }

// begin claims the per-user in-flight slot. Returns false when another
// reward operation for the same user has not finished yet.
func (s *RewardService) begin(user core.UserID) bool {
	_, loaded := s.inflight.LoadOrStore(user, struct{}{})
	return !loaded
}

func (s *RewardService) end(user core.UserID) { s.inflight.Delete(user) }

// publishAt stamps the event with the service clock before publishing, so
// event times and action records share a timebase.
func (s *RewardService) publishAt(ctx context.Context, ev core.Event) {
	ev.Time = s.now().UTC()
	s.bus.Publish(ctx, ev)
}

// RecordAction resolves the reward for an action, grants the XP, and
// appends the action log entry. Returns false on any failure; a failed
// rule lookup aborts before any mutation.
//
// The XP grant and the log append are two writes: if the append fails the
// grant is not rolled back. That window is accepted; the failure is logged
// loudly instead of silently repaired.
func (s *RewardService) RecordAction(ctx context.Context, user core.UserID, action core.ActionType, referenceID string) bool {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		s.log.Warn("record action rejected", "error", err)
		return false
	}
	if err := core.ValidateActionType(action); err != nil {
		s.log.Warn("record action rejected", "user", normalized, "error", err)
		return false
	}
	if !s.begin(normalized) {
		s.log.Warn("record action rejected, operation in flight", "user", normalized, "action", action)
		return false
	}
	defer s.end(normalized)

	reward, err := s.storage.RewardForAction(ctx, action)
	if err != nil {
		s.log.Error("reward lookup failed", "user", normalized, "action", action, "error", err)
		return false
	}

	profile, err := s.storage.IncrementXP(ctx, normalized, reward)
	if err != nil {
		s.log.Error("xp increment failed", "user", normalized, "action", action, "error", err)
		return false
	}

	rec := core.ActionRecord{
		RequestID:   s.newID(),
		UserID:      normalized,
		Action:      action,
		XPEarned:    reward,
		ReferenceID: referenceID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.storage.AppendAction(ctx, rec); err != nil {
		// XP is already granted; the entry is not retried here
		s.log.Error("action log append failed after xp grant", "user", normalized, "action", action, "xp", reward, "error", err)
		return false
	}

	// refresh read warms caches and observers; correctness does not
	// depend on it
	if refreshed, err := s.storage.Profile(ctx, normalized); err == nil {
		profile = refreshed
	}

	s.publishAt(ctx, core.NewActionRecorded(normalized, action, reward, profile.XP, referenceID))
	if ev, ok := core.EvaluateLevel(profile, s.tiers); ok {
		s.publishAt(ctx, ev)
	}
	return true
}

// CheckIn evaluates and applies a daily check-in. The returned result is
// valid whenever ok is true; a disallowed (too soon) check-in is not a
// failure and performs no mutation.
func (s *RewardService) CheckIn(ctx context.Context, user core.UserID) (core.CheckInResult, bool) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		s.log.Warn("check-in rejected", "error", err)
		return core.CheckInResult{}, false
	}
	if !s.begin(normalized) {
		s.log.Warn("check-in rejected, operation in flight", "user", normalized)
		return core.CheckInResult{}, false
	}
	defer s.end(normalized)

	profile, err := s.storage.Profile(ctx, normalized)
	if err != nil {
		s.log.Error("profile read failed", "user", normalized, "error", err)
		return core.CheckInResult{}, false
	}

	now := s.now().UTC()
	res, err := core.EvaluateCheckIn(profile.LastCheckIn, profile.Streak, now)
	if err != nil {
		s.log.Error("check-in evaluation failed", "user", normalized, "error", err)
		return core.CheckInResult{}, false
	}
	if !res.Allowed {
		return res, true
	}

	updated, err := s.storage.IncrementXP(ctx, normalized, res.BonusXP)
	if err != nil {
		s.log.Error("check-in xp grant failed", "user", normalized, "error", err)
		return core.CheckInResult{}, false
	}
	if err := s.storage.SetCheckIn(ctx, normalized, now, res.NewStreak); err != nil {
		s.log.Error("check-in persist failed after xp grant", "user", normalized, "error", err)
		return core.CheckInResult{}, false
	}

	rec := core.ActionRecord{
		RequestID: s.newID(),
		UserID:    normalized,
		Action:    core.ActionCheckIn,
		XPEarned:  res.BonusXP,
		CreatedAt: now,
	}
	if err := s.storage.AppendAction(ctx, rec); err != nil {
		s.log.Error("check-in log append failed", "user", normalized, "error", err)
		return core.CheckInResult{}, false
	}

	if res.NewStreak == 1 && profile.Streak > 1 {
		s.publishAt(ctx, core.NewStreakReset(normalized, profile.Streak))
	}
	s.publishAt(ctx, core.NewCheckInCompleted(normalized, res.NewStreak, res.BonusXP, updated.XP))
	if ev, ok := core.EvaluateLevel(updated, s.tiers); ok {
		s.publishAt(ctx, ev)
	}
	return res, true
}

// AcknowledgeLevel persists last_level_shown for the user. This is the one
// write retried on transient failure before giving up. The level is
// clamped so last_level_shown never exceeds the level derived from XP.
func (s *RewardService) AcknowledgeLevel(ctx context.Context, user core.UserID, level int) bool {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		s.log.Warn("acknowledge rejected", "error", err)
		return false
	}
	profile, err := s.storage.Profile(ctx, normalized)
	if err != nil {
		s.log.Error("profile read failed", "user", normalized, "error", err)
		return false
	}
	if derived := s.tiers.LevelForXP(profile.XP); level > derived {
		level = derived
	}
	if level <= profile.LastLevelShown {
		return true
	}

	var lastErr error
	for attempt := 1; attempt <= ackAttempts; attempt++ {
		if lastErr = s.storage.SetLastLevelShown(ctx, normalized, level); lastErr == nil {
			return true
		}
		s.log.Warn("acknowledge persist failed", "user", normalized, "level", level, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(ackBackoff * time.Duration(attempt)):
		}
	}
	s.log.Error("acknowledge gave up", "user", normalized, "level", level, "error", lastErr)
	return false
}

// PendingLevelUp reports an unacknowledged level-up for the user, if any.
// Used to re-surface the notification on session resume.
func (s *RewardService) PendingLevelUp(ctx context.Context, user core.UserID) (core.Event, bool, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Event{}, false, err
	}
	profile, err := s.storage.Profile(ctx, normalized)
	if err != nil {
		return core.Event{}, false, err
	}
	ev, ok := core.EvaluateLevel(profile, s.tiers)
	return ev, ok, nil
}

// GetProfile returns the profile for a user.
func (s *RewardService) GetProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Profile{}, err
	}
	return s.storage.Profile(ctx, normalized)
}

// Actions returns the most recent action log entries for a user.
func (s *RewardService) Actions(ctx context.Context, user core.UserID, limit int) ([]core.ActionRecord, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	return s.storage.ActionsForUser(ctx, normalized, limit)
}
