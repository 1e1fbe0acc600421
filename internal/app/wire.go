package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blingworks/blingbot/internal/cache/redis"
	"github.com/blingworks/blingbot/internal/config"
	"github.com/blingworks/blingbot/internal/domain"
	"github.com/blingworks/blingbot/internal/market"
	"github.com/blingworks/blingbot/internal/metrics"
	"github.com/blingworks/blingbot/internal/notify"
	"github.com/blingworks/blingbot/internal/platform/polygon"
	"github.com/blingworks/blingbot/internal/store/postgres"
)

// Dependencies bundles every shared dependency the bot fleet needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	StateStore domain.BotStateStore
	Bars       domain.BarSource
	Prices     *polygon.Client

	Calendar *market.Calendar
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Optional: nil when Redis is disabled.
	RateLimiter domain.RateLimiter

	// Clients kept for health probes.
	Postgres *postgres.Client
	Redis    *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.StateStore = postgres.NewBotStateStore(pgClient.Pool())

	// --- Market data ---
	deps.Prices = polygon.NewClient(cfg.Polygon.BaseURL, cfg.Polygon.APIKey)
	deps.Bars = deps.Prices

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient

		deps.Bars = market.NewCachedBars(
			deps.Prices,
			redis.NewBarCache(redisClient),
			cfg.Redis.BarTTL.Duration,
			logger,
		)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Exchange calendar ---
	cal, err := market.NewCalendar(cfg.Market.Timezone)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: calendar: %w", err)
	}
	deps.Calendar = cal

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Metrics ---
	deps.Metrics = metrics.New()

	return deps, cleanup, nil
}
