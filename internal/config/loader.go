package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "PARLAY_"

// Load reads configuration in layers: built-in defaults, then the TOML file
// at path (skipped if path is empty or the file does not exist), then
// PARLAY_* environment variables. A .env file in the working directory is
// loaded first so local development can keep secrets out of the shell.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides mutates cfg in place from PARLAY_* environment
// variables. Only variables that are set and non-empty take effect.
func applyEnvOverrides(cfg *Config) {
	setStr("MODE", &cfg.Mode)
	setStr("LOG_LEVEL", &cfg.LogLevel)

	setStr("POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("POSTGRES_USER", &cfg.Postgres.User)
	setStr("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setBool("POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("REDIS_ADDR", &cfg.Redis.Addr)
	setStr("REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)
	setBool("REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setStr("S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("S3_REGION", &cfg.S3.Region)
	setStr("S3_BUCKET", &cfg.S3.Bucket)
	setStr("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("S3_SECRET_KEY", &cfg.S3.SecretKey)

	setFloat64("MARKET_DEFAULT_LIQUIDITY", &cfg.Market.DefaultLiquidity)
	setFloat64("MARKET_INITIAL_PROBABILITY", &cfg.Market.InitialProbability)
	setInt64("MARKET_CREATION_DEPOSIT", &cfg.Market.CreationDeposit)
	setInt64("MARKET_MIN_TRADE_AMOUNT", &cfg.Market.MinTradeAmount)
	setInt64("MARKET_MAX_TRADE_AMOUNT", &cfg.Market.MaxTradeAmount)
	setDuration("MARKET_TRADE_LOCK_TTL", &cfg.Market.TradeLockTTL)
	setInt("MARKET_TRADES_PER_MINUTE", &cfg.Market.TradesPerMinute)

	setFloat64("SETTLEMENT_NEAR_MISS_THRESHOLD", &cfg.Settlement.NearMissThreshold)
	setInt64("SETTLEMENT_NEAR_MISS_CREDIT", &cfg.Settlement.NearMissCredit)
	setFloat64("SETTLEMENT_K_FACTOR", &cfg.Settlement.KFactor)

	setBool("SIM_ENABLED", &cfg.Sim.Enabled)
	setDuration("SIM_TICK_INTERVAL", &cfg.Sim.TickInterval)
	setDuration("SIM_LOG_INTERVAL", &cfg.Sim.LogInterval)
	setInt64("SIM_BALANCE_FLOOR", &cfg.Sim.BalanceFloor)
	setDuration("SIM_SPIKE_MIN_DELAY", &cfg.Sim.SpikeMinDelay)
	setDuration("SIM_SPIKE_MAX_DELAY", &cfg.Sim.SpikeMaxDelay)
	setDuration("SIM_SPIKE_DURATION", &cfg.Sim.SpikeDuration)
	setInt("SIM_ACTIVITY_KEEP", &cfg.Sim.ActivityKeep)

	setBool("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	setInt("ARCHIVE_RETENTION_DAYS", &cfg.Archive.RetentionDays)
	setStr("ARCHIVE_CRON", &cfg.Archive.Cron)

	setBool("SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("SERVER_PORT", &cfg.Server.Port)
	setStringSlice("SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("SERVER_ADMIN_API_KEY", &cfg.Server.AdminAPIKey)
	setInt("SERVER_REQUESTS_PER_MINUTE", &cfg.Server.RequestsPerMinute)

	setStr("TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("NOTIFY_EVENTS", &cfg.Notify.Events)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setStr(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(key string, dst *int64) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := lookup(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
