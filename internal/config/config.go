// Package config defines the top-level configuration for the parlay market
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PARLAY_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Market     MarketConfig     `toml:"market"`
	Settlement SettlementConfig `toml:"settlement"`
	Sim        SimConfig        `toml:"sim"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the cold
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig holds market-maker and trading parameters.
type MarketConfig struct {
	// DefaultLiquidity is the AMM depth used when a market is created
	// without an explicit liquidity value.
	DefaultLiquidity   float64  `toml:"default_liquidity"`
	InitialProbability float64  `toml:"initial_probability"`
	CreationDeposit    int64    `toml:"creation_deposit"`
	MinTradeAmount     int64    `toml:"min_trade_amount"`
	MaxTradeAmount     int64    `toml:"max_trade_amount"`
	// TradeLockTTL bounds how long a single trade may hold a market's
	// write lock before it expires.
	TradeLockTTL duration `toml:"trade_lock_ttl"`
	// TradesPerMinute rate-limits human trade submission per user.
	TradesPerMinute int `toml:"trades_per_minute"`
}

// SettlementConfig holds resolution and reward policy.
type SettlementConfig struct {
	// NearMissThreshold is the share of the active-position pool a losing
	// outcome must hold for its backers to earn the consolation credit.
	NearMissThreshold float64 `toml:"near_miss_threshold"`
	NearMissCredit    int64   `toml:"near_miss_credit"`
	// KFactor is the ELO update weight.
	KFactor float64 `toml:"k_factor"`
	// Creator deposit is refunded when either engagement threshold is met.
	CreatorRefundMinParticipants int `toml:"creator_refund_min_participants"`
	CreatorRefundMinVolume       int64 `toml:"creator_refund_min_volume"`
	CreatorRewardPerParticipant  int64 `toml:"creator_reward_per_participant"`
	CreatorRewardVolumeRate      float64 `toml:"creator_reward_volume_rate"`
	CreatorRewardCap             int64 `toml:"creator_reward_cap"`
	// LockTTL bounds how long a resolution may hold the market lock.
	LockTTL duration `toml:"lock_ttl"`
}

// SimConfig holds bot-simulation parameters.
type SimConfig struct {
	Enabled      bool     `toml:"enabled"`
	TickInterval duration `toml:"tick_interval"`
	LogInterval  duration `toml:"log_interval"`
	// BalanceFloor excludes near-broke bots from selection.
	BalanceFloor int64 `toml:"balance_floor"`
	MinActors    int   `toml:"min_actors"`
	MaxActors    int   `toml:"max_actors"`

	SpikeMinDelay       duration `toml:"spike_min_delay"`
	SpikeMaxDelay       duration `toml:"spike_max_delay"`
	SpikeDuration       duration `toml:"spike_duration"`
	SpikeMinActors      int      `toml:"spike_min_actors"`
	SpikeMaxActors      int      `toml:"spike_max_actors"`
	SpikeSideBias       float64  `toml:"spike_side_bias"`
	SpikeSizeMultiplier float64  `toml:"spike_size_multiplier"`

	// Skip probabilities per aggression tier: the chance a selected actor
	// sits a tick out.
	SkipProbLow    float64 `toml:"skip_prob_low"`
	SkipProbMedium float64 `toml:"skip_prob_medium"`
	SkipProbHigh   float64 `toml:"skip_prob_high"`
	// Stickiness is how often an actor re-uses its remembered side;
	// AdoptSideProb is how often a completed trade's side becomes the
	// remembered one.
	Stickiness    float64 `toml:"stickiness"`
	AdoptSideProb float64 `toml:"adopt_side_prob"`

	// ActivityKeep is the rolling activity-feed size the pruner maintains.
	ActivityKeep  int `toml:"activity_keep"`
	LatencyWindow int `toml:"latency_window"`
	// Latency thresholds (milliseconds) for the derived health status.
	SluggishMs  int `toml:"sluggish_ms"`
	DegradingMs int `toml:"degrading_ms"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey gates market resolution and other admin endpoints. Empty
	// disables the check (local development only).
	AdminAPIKey string `toml:"admin_api_key"`
	// RequestsPerMinute rate-limits HTTP requests per client IP. Zero
	// disables the limiter.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "parlay",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "parlay-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			DefaultLiquidity:   5000,
			InitialProbability: 50,
			CreationDeposit:    250,
			MinTradeAmount:     1,
			MaxTradeAmount:     100_000,
			TradeLockTTL:       duration{10 * time.Second},
			TradesPerMinute:    30,
		},
		Settlement: SettlementConfig{
			NearMissThreshold:            0.35,
			NearMissCredit:               25,
			KFactor:                      32,
			CreatorRefundMinParticipants: 5,
			CreatorRefundMinVolume:       1000,
			CreatorRewardPerParticipant:  10,
			CreatorRewardVolumeRate:      0.01,
			CreatorRewardCap:             500,
			LockTTL:                      duration{60 * time.Second},
		},
		Sim: SimConfig{
			Enabled:             true,
			TickInterval:        duration{2 * time.Second},
			LogInterval:         duration{30 * time.Second},
			BalanceFloor:        50,
			MinActors:           1,
			MaxActors:           3,
			SpikeMinDelay:       duration{3 * time.Minute},
			SpikeMaxDelay:       duration{10 * time.Minute},
			SpikeDuration:       duration{45 * time.Second},
			SpikeMinActors:      5,
			SpikeMaxActors:      15,
			SpikeSideBias:       0.75,
			SpikeSizeMultiplier: 2.5,
			SkipProbLow:         0.6,
			SkipProbMedium:      0.4,
			SkipProbHigh:        0.2,
			Stickiness:          0.6,
			AdoptSideProb:       0.3,
			ActivityKeep:        200,
			LatencyWindow:       50,
			SluggishMs:          500,
			DegradingMs:         2000,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "viral_spike", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sim":   true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sim, full)", c.Mode))
	}
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
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when archival is on)
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Market
	if c.Market.DefaultLiquidity <= 0 {
		errs = append(errs, "market: default_liquidity must be > 0")
	}
	if c.Market.InitialProbability < 1 || c.Market.InitialProbability > 99 {
		errs = append(errs, fmt.Sprintf("market: initial_probability must be 1-99, got %g", c.Market.InitialProbability))
	}
	if c.Market.MinTradeAmount < 1 {
		errs = append(errs, "market: min_trade_amount must be >= 1")
	}
	if c.Market.MaxTradeAmount > 0 && c.Market.MaxTradeAmount < c.Market.MinTradeAmount {
		errs = append(errs, "market: max_trade_amount must not be below min_trade_amount")
	}
	if c.Market.TradeLockTTL.Duration <= 0 {
		errs = append(errs, "market: trade_lock_ttl must be > 0")
	}

	// Settlement
	if c.Settlement.NearMissThreshold <= 0 || c.Settlement.NearMissThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("settlement: near_miss_threshold must be in (0,1), got %g", c.Settlement.NearMissThreshold))
	}
	if c.Settlement.NearMissCredit < 0 {
		errs = append(errs, "settlement: near_miss_credit must be >= 0")
	}
	if c.Settlement.KFactor <= 0 {
		errs = append(errs, "settlement: k_factor must be > 0")
	}
	if c.Settlement.CreatorRewardCap < 0 {
		errs = append(errs, "settlement: creator_reward_cap must be >= 0")
	}

	// Sim
	if c.Sim.Enabled {
		if c.Sim.TickInterval.Duration <= 0 {
			errs = append(errs, "sim: tick_interval must be > 0")
		}
		if c.Sim.MinActors < 1 || c.Sim.MaxActors < c.Sim.MinActors {
			errs = append(errs, fmt.Sprintf("sim: actor bounds invalid (min=%d max=%d)", c.Sim.MinActors, c.Sim.MaxActors))
		}
		if c.Sim.SpikeMinActors < 1 || c.Sim.SpikeMaxActors < c.Sim.SpikeMinActors {
			errs = append(errs, fmt.Sprintf("sim: spike actor bounds invalid (min=%d max=%d)", c.Sim.SpikeMinActors, c.Sim.SpikeMaxActors))
		}
		if c.Sim.SpikeMinDelay.Duration <= 0 || c.Sim.SpikeMaxDelay.Duration < c.Sim.SpikeMinDelay.Duration {
			errs = append(errs, "sim: spike delay window invalid")
		}
		if c.Sim.SpikeSideBias < 0 || c.Sim.SpikeSideBias > 1 {
			errs = append(errs, fmt.Sprintf("sim: spike_side_bias must be 0-1, got %g", c.Sim.SpikeSideBias))
		}
		for _, p := range []struct {
			name string
			val  float64
		}{
			{"skip_prob_low", c.Sim.SkipProbLow},
			{"skip_prob_medium", c.Sim.SkipProbMedium},
			{"skip_prob_high", c.Sim.SkipProbHigh},
			{"stickiness", c.Sim.Stickiness},
			{"adopt_side_prob", c.Sim.AdoptSideProb},
		} {
			if p.val < 0 || p.val > 1 {
				errs = append(errs, fmt.Sprintf("sim: %s must be 0-1, got %g", p.name, p.val))
			}
		}
		if c.Sim.ActivityKeep < 1 {
			errs = append(errs, "sim: activity_keep must be >= 1")
		}
		if c.Sim.LatencyWindow < 1 {
			errs = append(errs, "sim: latency_window must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerMinute < 0 {
			errs = append(errs, "server: requests_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %d problem(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}
