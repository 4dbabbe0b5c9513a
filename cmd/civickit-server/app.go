package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "civickit/adapters/jsonfile"
	mem "civickit/adapters/memory"
	redisAdapter "civickit/adapters/redis"
	sqlxAdapter "civickit/adapters/sqlx"
	"civickit/analytics"
	"civickit/api/httpapi"
	"civickit/config"
	"civickit/core"
	"civickit/engine"
	"civickit/leaderboard"
	"civickit/realtime"
	"civickit/rewards"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Board   *leaderboard.SkipList
	Service *engine.RewardService
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBoard() *leaderboard.SkipList {
	return leaderboard.NewSkipList()
}

func provideTiers(cfg *config.Config) (core.TierTable, error) {
	if cfg.Rewards.TiersFile == "" {
		return core.DefaultTiers(), nil
	}
	return core.LoadTiers(cfg.Rewards.TiersFile)
}

func provideStorage(ctx context.Context, cfg *config.Config, tiers core.TierTable) (engine.Storage, error) {
	return setupStorage(ctx, cfg, tiers)
}

func provideService(cfg *config.Config, hub *realtime.Hub, board *leaderboard.SkipList, storage engine.Storage, tiers core.TierTable, log *slog.Logger) *engine.RewardService {
	opts := []rewards.Option{
		rewards.WithRealtime(hub),
		rewards.WithStorage(storage),
		rewards.WithTiers(tiers),
		rewards.WithLogger(log),
		rewards.WithDispatchMode(parseDispatchMode(cfg.Rewards.DispatchMode)),
	}
	if !cfg.Rewards.SeedDefaultRules {
		opts = append(opts, rewards.WithoutDefaultRules())
	}
	svc := rewards.New(opts...)
	leaderboard.Follow(svc, board)
	if cfg.Analytics.Enabled {
		analytics.Follow(svc, analytics.NewBridge(analytics.NewEngagementMetrics(), analytics.NewDAU()))
	}
	return svc
}

func provideHandler(svc *engine.RewardService, hub *realtime.Hub, board *leaderboard.SkipList, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, board, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDispatchMode(mode string) engine.DispatchMode {
	if mode == "sync" {
		return engine.DispatchSync
	}
	return engine.DispatchAsync
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config, tiers core.TierTable) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(tiers), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis, tiers)
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL, tiers)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate sql storage: %w", err)
		}
		return store, nil
	case "file":
		return jsonfileAdapter.New(cfg.Storage.File.Path, tiers)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
