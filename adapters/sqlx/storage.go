package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	// postgres driver selected via Config.Driver
	_ "github.com/lib/pq"

	"civickit/core"
)

// Driver names supported by the SQL storage adapter.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          string        `json:"driver" env:"CIVICKIT_STORAGE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"CIVICKIT_STORAGE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"CIVICKIT_STORAGE_SQL_MAX_OPEN"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"CIVICKIT_STORAGE_SQL_MAX_IDLE"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"CIVICKIT_STORAGE_SQL_CONN_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver string) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on a SQL database via sqlx.
// Tables: user_profiles, user_actions, reward_rules.
type Store struct {
	db     *sqlx.DB
	driver string
	tiers  core.TierTable
}

// New opens a database connection and verifies it.
func New(cfg Config, tiers core.TierTable) (*Store, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported sql driver: %s", cfg.Driver)
	}
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db, cfg.Driver, tiers), nil
}

// NewWithDB wraps an existing sqlx database handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver string, tiers core.TierTable) *Store {
	if tiers == nil {
		tiers = core.DefaultTiers()
	}
	return &Store{db: db, driver: driver, tiers: tiers}
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the adapter's tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	timestamp := "TIMESTAMPTZ"
	if s.driver == DriverMySQL {
		timestamp = "TIMESTAMP(6)"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reward_rules (
			action VARCHAR(64) PRIMARY KEY,
			xp BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id VARCHAR(128) PRIMARY KEY,
			xp BIGINT NOT NULL DEFAULT 0,
			level INT NOT NULL DEFAULT 1,
			last_level_shown INT NOT NULL DEFAULT 1,
			last_check_in %s NULL,
			streak INT NOT NULL DEFAULT 0,
			updated %s NOT NULL
		)`, timestamp, timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_actions (
			request_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			action VARCHAR(64) NOT NULL,
			xp_earned BIGINT NOT NULL,
			reference_id VARCHAR(128),
			created_at %s NOT NULL
		)`, timestamp),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return s.createActionsIndex(ctx)
}

// mysqlDuplicateKeyName is MySQL error 1061 (ER_DUP_KEYNAME).
const mysqlDuplicateKeyName = 1061

// createActionsIndex adds the user_actions lookup index. MySQL does not
// support CREATE INDEX IF NOT EXISTS, so there a duplicate-index error
// from a prior run counts as success.
func (s *Store) createActionsIndex(ctx context.Context) error {
	const ddl = "CREATE INDEX idx_user_actions_user ON user_actions (user_id, created_at)"
	if s.driver == DriverMySQL {
		_, err := s.db.ExecContext(ctx, ddl)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateKeyName {
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_user_actions_user ON user_actions (user_id, created_at)"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type profileRow struct {
	UserID         string       `db:"user_id"`
	XP             int64        `db:"xp"`
	Level          int          `db:"level"`
	LastLevelShown int          `db:"last_level_shown"`
	LastCheckIn    sql.NullTime `db:"last_check_in"`
	Streak         int          `db:"streak"`
	Updated        time.Time    `db:"updated"`
}

func (r profileRow) toProfile() core.Profile {
	p := core.Profile{
		UserID:         core.UserID(r.UserID),
		XP:             r.XP,
		Level:          r.Level,
		LastLevelShown: r.LastLevelShown,
		Streak:         r.Streak,
		Updated:        r.Updated,
	}
	if r.LastCheckIn.Valid {
		t := r.LastCheckIn.Time
		p.LastCheckIn = &t
	}
	return p
}

func (s *Store) RewardForAction(ctx context.Context, action core.ActionType) (int64, error) {
	var xp int64
	err := s.db.GetContext(ctx, &xp, s.db.Rebind(`SELECT xp FROM reward_rules WHERE action = ?`), action)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNoRewardRule
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reward rule: %w", err)
	}
	return xp, nil
}

func (s *Store) PutRewardRule(ctx context.Context, action core.ActionType, xp int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM reward_rules WHERE action = ?)`), action); err != nil {
		return fmt.Errorf("failed to check reward rule: %w", err)
	}
	if exists {
		_, err = tx.ExecContext(ctx,
			s.db.Rebind(`UPDATE reward_rules SET xp = ? WHERE action = ?`), xp, action)
	} else {
		_, err = tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO reward_rules (action, xp) VALUES (?, ?)`), action, xp)
	}
	if err != nil {
		return fmt.Errorf("failed to store reward rule: %w", err)
	}
	return tx.Commit()
}

func (s *Store) IncrementXP(ctx context.Context, user core.UserID, delta int64) (core.Profile, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Profile{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var row profileRow
	err = tx.GetContext(ctx, &row,
		s.db.Rebind(`SELECT user_id, xp, level, last_level_shown, last_check_in, streak, updated
			FROM user_profiles WHERE user_id = ? FOR UPDATE`), user)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		next := delta
		if next < 0 {
			next = 0
		}
		level := s.tiers.LevelForXP(next)
		base := s.tiers.LevelForXP(0)
		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO user_profiles (user_id, xp, level, last_level_shown, streak, updated)
				VALUES (?, ?, ?, ?, ?, ?)`), user, next, level, base, 0, now); err != nil {
			return core.Profile{}, fmt.Errorf("failed to create profile: %w", err)
		}
		row = profileRow{UserID: string(user), XP: next, Level: level, LastLevelShown: base, Updated: now}
	case err != nil:
		return core.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	default:
		next, err := core.AddSafe(row.XP, delta)
		if err != nil {
			return core.Profile{}, err
		}
		if next < 0 {
			next = 0
		}
		level := s.tiers.LevelForXP(next)
		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`UPDATE user_profiles SET xp = ?, level = ?, updated = ? WHERE user_id = ?`),
			next, level, now, user); err != nil {
			return core.Profile{}, fmt.Errorf("failed to update profile: %w", err)
		}
		row.XP = next
		row.Level = level
		row.Updated = now
	}
	if err := tx.Commit(); err != nil {
		return core.Profile{}, err
	}
	return row.toProfile(), nil
}

func (s *Store) AppendAction(ctx context.Context, rec core.ActionRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM user_actions WHERE request_id = ?)`), rec.RequestID); err != nil {
		return fmt.Errorf("failed to check request id: %w", err)
	}
	if exists {
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO user_actions (request_id, user_id, action, xp_earned, reference_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
		rec.RequestID, rec.UserID, rec.Action, rec.XPEarned, rec.ReferenceID, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ActionsForUser(ctx context.Context, user core.UserID, limit int) ([]core.ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows := []struct {
		RequestID   string         `db:"request_id"`
		UserID      string         `db:"user_id"`
		Action      string         `db:"action"`
		XPEarned    int64          `db:"xp_earned"`
		ReferenceID sql.NullString `db:"reference_id"`
		CreatedAt   time.Time      `db:"created_at"`
	}{}
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT request_id, user_id, action, xp_earned, reference_id, created_at
			FROM user_actions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`), user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	out := make([]core.ActionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.ActionRecord{
			RequestID:   r.RequestID,
			UserID:      core.UserID(r.UserID),
			Action:      core.ActionType(r.Action),
			XPEarned:    r.XPEarned,
			ReferenceID: r.ReferenceID.String,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) SetLastLevelShown(ctx context.Context, user core.UserID, level int) error {
	return s.updateProfile(ctx, user,
		`UPDATE user_profiles SET last_level_shown = ?, updated = ? WHERE user_id = ?`,
		func(now time.Time) []any { return []any{level, now, user} })
}

func (s *Store) SetCheckIn(ctx context.Context, user core.UserID, at time.Time, streak int) error {
	return s.updateProfile(ctx, user,
		`UPDATE user_profiles SET last_check_in = ?, streak = ?, updated = ? WHERE user_id = ?`,
		func(now time.Time) []any { return []any{at.UTC(), streak, now, user} })
}

// updateProfile runs an update, inserting an empty profile row first when
// none exists, inside one transaction.
func (s *Store) updateProfile(ctx context.Context, user core.UserID, query string, args func(now time.Time) []any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var exists bool
	if err := tx.GetContext(ctx, &exists,
		s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM user_profiles WHERE user_id = ?)`), user); err != nil {
		return fmt.Errorf("failed to check profile: %w", err)
	}
	if !exists {
		base := s.tiers.LevelForXP(0)
		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO user_profiles (user_id, xp, level, last_level_shown, streak, updated)
				VALUES (?, 0, ?, ?, 0, ?)`), user, base, base, now); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(query), args(now)...); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Profile(ctx context.Context, user core.UserID) (core.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT user_id, xp, level, last_level_shown, last_check_in, streak, updated
			FROM user_profiles WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		base := s.tiers.LevelForXP(0)
		return core.Profile{UserID: user, Level: base, LastLevelShown: base}, nil
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	return row.toProfile(), nil
}
