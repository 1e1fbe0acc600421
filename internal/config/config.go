// Package config defines the top-level configuration for the bot fleet and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/blingworks/blingbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BLINGBOT_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Polygon  PolygonConfig  `toml:"polygon"`
	Alpaca   AlpacaConfig   `toml:"alpaca"`
	Market   MarketConfig   `toml:"market"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Bots     []BotConfig    `toml:"bots"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: with
// Enabled false the bots fetch bars straight from the upstream provider and
// API rate limiting is disabled.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BarTTL     duration `toml:"bar_ttl"`
}

// PolygonConfig holds market-data provider parameters.
type PolygonConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// AlpacaConfig holds Alpaca paper-trading API credentials. Only required
// when at least one bot sets broker = "alpaca".
type AlpacaConfig struct {
	BaseURL   string `toml:"base_url"`
	KeyID     string `toml:"key_id"`
	SecretKey string `toml:"secret_key"`
}

// MarketConfig holds exchange session parameters.
type MarketConfig struct {
	Timezone string `toml:"timezone"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Port      int    `toml:"port"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// BotConfig declares one bot. Unset numeric fields inherit the defaults
// applied by Load.
type BotConfig struct {
	ID           string   `toml:"id"`
	Symbol       string   `toml:"symbol"`
	Algorithm    string   `toml:"algorithm"`
	Broker       string   `toml:"broker"`
	InitialValue float64  `toml:"initial_value"`
	LossLimit    float64  `toml:"loss_limit"`
	GainTarget   float64  `toml:"gain_target"`
	Interval     duration `toml:"interval"`
	Timespan     string   `toml:"timespan"`
	Multiplier   int      `toml:"multiplier"`
	DaysBack     int      `toml:"days_back"`
	CallTimeout  duration `toml:"call_timeout"`
}

// Window assembles the bot's historical-data window.
func (b BotConfig) Window() domain.Window {
	return domain.Window{
		Timespan:   b.Timespan,
		Multiplier: b.Multiplier,
		DaysBack:   b.DaysBack,
	}
}

// duration wraps time.Duration for TOML decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "blingbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			BarTTL:     duration{time.Minute},
		},
		Polygon: PolygonConfig{
			BaseURL: "https://api.polygon.io",
		},
		Alpaca: AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
		},
		Market: MarketConfig{
			Timezone: "America/New_York",
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8000,
			RateLimit: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"halt", "bot_error"},
		},
		LogLevel: "info",
	}
}

// Per-bot fallbacks applied by Load when a bot block leaves them unset.
const (
	defaultAlgorithm    = "sma_ema_crossover"
	defaultBroker       = "paper"
	defaultInitialValue = 1000.0
	defaultLossLimit    = -0.05
	defaultGainTarget   = 0.10
	defaultTimespan     = "minute"
	defaultMultiplier   = 5
	defaultDaysBack     = 3
	defaultInterval     = 5 * time.Minute
)

// applyBotDefaults fills unset per-bot fields.
func applyBotDefaults(b *BotConfig) {
	if b.Algorithm == "" {
		b.Algorithm = defaultAlgorithm
	}
	if b.Broker == "" {
		b.Broker = defaultBroker
	}
	if b.InitialValue == 0 {
		b.InitialValue = defaultInitialValue
	}
	if b.LossLimit == 0 {
		b.LossLimit = defaultLossLimit
	}
	if b.GainTarget == 0 {
		b.GainTarget = defaultGainTarget
	}
	if b.Timespan == "" {
		b.Timespan = defaultTimespan
	}
	if b.Multiplier == 0 {
		b.Multiplier = defaultMultiplier
	}
	if b.DaysBack == 0 {
		b.DaysBack = defaultDaysBack
	}
	if b.Interval.Duration == 0 {
		b.Interval.Duration = defaultInterval
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTimespans = map[string]bool{
	"minute": true,
	"hour":   true,
	"day":    true,
}

var validBrokers = map[string]bool{
	"paper":  true,
	"alpaca": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.BarTTL.Duration <= 0 {
			errs = append(errs, "redis: bar_ttl must be > 0")
		}
	}

	// Polygon
	if c.Polygon.APIKey == "" {
		errs = append(errs, "polygon: api_key must not be empty")
	}

	// Market
	if c.Market.Timezone == "" {
		errs = append(errs, "market: timezone must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Bots
	if len(c.Bots) == 0 {
		errs = append(errs, "bots: at least one bot must be configured")
	}
	seen := make(map[string]bool, len(c.Bots))
	needsAlpaca := false
	for i, b := range c.Bots {
		tag := fmt.Sprintf("bots[%d]", i)
		if b.ID != "" {
			tag = fmt.Sprintf("bots[%s]", b.ID)
		}

		if b.ID == "" {
			errs = append(errs, tag+": id must not be empty")
		} else if seen[b.ID] {
			errs = append(errs, tag+": duplicate bot id")
		}
		seen[b.ID] = true

		if b.Symbol == "" {
			errs = append(errs, tag+": symbol must not be empty")
		}
		if !validBrokers[b.Broker] {
			errs = append(errs, fmt.Sprintf("%s: unknown broker %q (valid: paper, alpaca)", tag, b.Broker))
		}
		if b.Broker == "alpaca" {
			needsAlpaca = true
		}
		if b.InitialValue <= 0 {
			errs = append(errs, tag+": initial_value must be > 0")
		}
		if b.LossLimit >= 0 {
			errs = append(errs, tag+": loss_limit must be negative")
		}
		if b.GainTarget <= 0 {
			errs = append(errs, tag+": gain_target must be positive")
		}
		if !validTimespans[b.Timespan] {
			errs = append(errs, fmt.Sprintf("%s: unknown timespan %q (valid: minute, hour, day)", tag, b.Timespan))
		}
		if b.Multiplier < 1 {
			errs = append(errs, tag+": multiplier must be >= 1")
		}
		if b.DaysBack < 1 {
			errs = append(errs, tag+": days_back must be >= 1")
		}
		if b.Interval.Duration < time.Second {
			errs = append(errs, tag+": interval must be at least 1s")
		}
	}

	if needsAlpaca && (c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "") {
		errs = append(errs, "alpaca: key_id and secret_key are required when a bot uses broker = \"alpaca\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
