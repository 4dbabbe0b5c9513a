package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"civickit/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.Storage on Redis.
// Data structure:
// - user:{id}:profile -> hash (xp, level, last_level_shown, last_check_in, streak, updated)
// - user:{id}:actions -> list of ActionRecord JSON, newest first
// - user:{id}:reqs    -> set of appended request ids (idempotency)
// - reward:rules      -> hash action -> xp
type Store struct {
	client *redis.Client
	tiers  core.TierTable
}

// New connects to Redis and verifies the connection.
func New(config Config, tiers core.TierTable) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, tiers), nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, tiers core.TierTable) *Store {
	if tiers == nil {
		tiers = core.DefaultTiers()
	}
	return &Store{client: client, tiers: tiers}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func profileKey(user core.UserID) string  { return fmt.Sprintf("user:%s:profile", user) }
func actionsKey(user core.UserID) string  { return fmt.Sprintf("user:%s:actions", user) }
func requestsKey(user core.UserID) string { return fmt.Sprintf("user:%s:reqs", user) }

// stateKey holds a cached JSON rendering of the assembled profile.
func stateKey(user core.UserID) string { return fmt.Sprintf("user:%s:state", user) }

const rulesKey = "reward:rules"

const stateCacheTTL = 5 * time.Minute

// incrementScript adds delta to the xp field, clamps at zero, and recomputes
// the level against the threshold pairs passed in ARGV (level, xp_required,
// sorted ascending). Runs atomically server-side.
var incrementScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local xp = redis.call('HINCRBY', key, 'xp', delta)
	if xp < 0 then
		xp = 0
		redis.call('HSET', key, 'xp', 0)
	end
	local level = 1
	for i = 2, #ARGV, 2 do
		if xp >= tonumber(ARGV[i+1]) then
			level = tonumber(ARGV[i])
		end
	end
	redis.call('HSET', key, 'level', level)
	return {xp, level}
`)

func (s *Store) RewardForAction(ctx context.Context, action core.ActionType) (int64, error) {
	val, err := s.client.HGet(ctx, rulesKey, string(action)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, core.ErrNoRewardRule
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reward rule: %w", err)
	}
	xp, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed reward rule for %s: %w", action, err)
	}
	return xp, nil
}

func (s *Store) PutRewardRule(ctx context.Context, action core.ActionType, xp int64) error {
	if err := s.client.HSet(ctx, rulesKey, string(action), xp).Err(); err != nil {
		return fmt.Errorf("failed to store reward rule: %w", err)
	}
	return nil
}

func (s *Store) IncrementXP(ctx context.Context, user core.UserID, delta int64) (core.Profile, error) {
	args := make([]any, 0, 1+2*len(s.tiers))
	args = append(args, delta)
	for _, tier := range s.tiers {
		args = append(args, tier.Level, tier.XPRequired)
	}
	if err := incrementScript.Run(ctx, s.client, []string{profileKey(user)}, args...).Err(); err != nil {
		return core.Profile{}, fmt.Errorf("failed to increment xp: %w", err)
	}
	if err := s.client.HSet(ctx, profileKey(user), "updated", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return core.Profile{}, fmt.Errorf("failed to touch profile: %w", err)
	}
	s.invalidateCachedProfile(ctx, user)
	return s.Profile(ctx, user)
}

func (s *Store) AppendAction(ctx context.Context, rec core.ActionRecord) error {
	added, err := s.client.SAdd(ctx, requestsKey(rec.UserID), rec.RequestID).Result()
	if err != nil {
		return fmt.Errorf("failed to register request id: %w", err)
	}
	if added == 0 {
		// already appended under this request id
		return nil
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, actionsKey(rec.UserID), body).Err(); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

func (s *Store) ActionsForUser(ctx context.Context, user core.UserID, limit int) ([]core.ActionRecord, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1 // full list
	}
	raw, err := s.client.LRange(ctx, actionsKey(user), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	out := make([]core.ActionRecord, 0, len(raw))
	for _, item := range raw {
		var rec core.ActionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue // skip malformed entries
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) SetLastLevelShown(ctx context.Context, user core.UserID, level int) error {
	if err := s.client.HSet(ctx, profileKey(user), "last_level_shown", level).Err(); err != nil {
		return fmt.Errorf("failed to set last level shown: %w", err)
	}
	s.invalidateCachedProfile(ctx, user)
	return nil
}

func (s *Store) SetCheckIn(ctx context.Context, user core.UserID, at time.Time, streak int) error {
	err := s.client.HSet(ctx, profileKey(user),
		"last_check_in", at.UTC().Format(time.RFC3339Nano),
		"streak", streak,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set check-in: %w", err)
	}
	s.invalidateCachedProfile(ctx, user)
	return nil
}

// Profile assembles the user's profile, serving from the state cache
// when possible.
func (s *Store) Profile(ctx context.Context, user core.UserID) (core.Profile, error) {
	if cached, err := s.cachedProfile(ctx, user); err == nil {
		return cached, nil
	}

	p, err := s.buildProfile(ctx, user)
	if err != nil {
		return core.Profile{}, err
	}

	// Update cache (best-effort); keep it synchronous for determinism.
	ctxCache, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = s.cacheProfile(ctxCache, user, p)

	return p, nil
}

func (s *Store) cachedProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	data, err := s.client.Get(ctx, stateKey(user)).Bytes()
	if err != nil {
		return core.Profile{}, err
	}
	var p core.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Profile{}, err
	}
	return p, nil
}

func (s *Store) cacheProfile(ctx context.Context, user core.UserID, p core.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKey(user), data, stateCacheTTL).Err()
}

func (s *Store) invalidateCachedProfile(ctx context.Context, user core.UserID) {
	s.client.Del(ctx, stateKey(user))
}

// buildProfile reconstructs the profile from the profile hash.
func (s *Store) buildProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	fields, err := s.client.HGetAll(ctx, profileKey(user)).Result()
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	p := core.Profile{
		UserID:         user,
		Level:          s.tiers.LevelForXP(0),
		LastLevelShown: s.tiers.LevelForXP(0),
	}
	if v, ok := fields["xp"]; ok {
		p.XP, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["level"]; ok {
		p.Level, _ = strconv.Atoi(v)
	}
	if v, ok := fields["last_level_shown"]; ok {
		p.LastLevelShown, _ = strconv.Atoi(v)
	}
	if v, ok := fields["streak"]; ok {
		p.Streak, _ = strconv.Atoi(v)
	}
	if v, ok := fields["last_check_in"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.LastCheckIn = &t
		}
	}
	if v, ok := fields["updated"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.Updated = t
		}
	}
	return p, nil
}
