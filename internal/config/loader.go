package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BLINGBOT_* environment variable overrides, and
// fills unset per-bot fields. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	for i := range cfg.Bots {
		applyBotDefaults(&cfg.Bots[i])
	}

	return &cfg, nil
}

// applyEnvOverrides reads well-known BLINGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file. Per-bot blocks are TOML-only.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BLINGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BLINGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BLINGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BLINGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BLINGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BLINGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BLINGBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BLINGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BLINGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BLINGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BLINGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BLINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BLINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BLINGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BLINGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BLINGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BLINGBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BarTTL, "BLINGBOT_REDIS_BAR_TTL")

	// ── Polygon ──
	setStr(&cfg.Polygon.BaseURL, "BLINGBOT_POLYGON_BASE_URL")
	setStr(&cfg.Polygon.APIKey, "BLINGBOT_POLYGON_API_KEY")

	// ── Alpaca ──
	setStr(&cfg.Alpaca.BaseURL, "BLINGBOT_ALPACA_BASE_URL")
	setStr(&cfg.Alpaca.KeyID, "BLINGBOT_ALPACA_KEY_ID")
	setStr(&cfg.Alpaca.SecretKey, "BLINGBOT_ALPACA_SECRET_KEY")

	// ── Market ──
	setStr(&cfg.Market.Timezone, "BLINGBOT_MARKET_TIMEZONE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BLINGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BLINGBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "BLINGBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BLINGBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BLINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BLINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BLINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BLINGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "BLINGBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
