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
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from POLYARB_* variables that
// are set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYARB_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYARB_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYARB_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.FunderAddress, "POLYARB_POLYMARKET_FUNDER_ADDRESS")
	setStr(&cfg.Polymarket.OrderType, "POLYARB_POLYMARKET_ORDER_TYPE")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "POLYARB_POLYMARKET_REQUESTS_PER_SECOND")
	setStr(&cfg.Polymarket.ApiKey, "POLYARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYARB_POLYMARKET_API_PASSPHRASE")

	// ── Engine ──
	setDuration(&cfg.Engine.PollInterval, "POLYARB_ENGINE_POLL_INTERVAL")
	setFloat64(&cfg.Engine.CorrelationThreshold, "POLYARB_ENGINE_CORRELATION_THRESHOLD")
	setFloat64(&cfg.Engine.MaxPositionSize, "POLYARB_ENGINE_MAX_POSITION_SIZE")
	setFloat64(&cfg.Engine.MinLiquidity, "POLYARB_ENGINE_MIN_LIQUIDITY")
	setFloat64(&cfg.Engine.MaxVolatility, "POLYARB_ENGINE_MAX_VOLATILITY")
	setFloat64(&cfg.Engine.OrderSize, "POLYARB_ENGINE_ORDER_SIZE")
	setDuration(&cfg.Engine.VolatilityResetAfter, "POLYARB_ENGINE_VOLATILITY_RESET_AFTER")
	setBool(&cfg.Engine.DistributedLock, "POLYARB_ENGINE_DISTRIBUTED_LOCK")

	// ── Breaker ──
	setFloat64(&cfg.Breaker.MaxDailyLoss, "POLYARB_BREAKER_MAX_DAILY_LOSS")
	setInt(&cfg.Breaker.MaxConsecutiveFailures, "POLYARB_BREAKER_MAX_CONSECUTIVE_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "POLYARB_BREAKER_COOLDOWN")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYARB_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "POLYARB_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYARB_SERVER_API_KEY")
	setFloat64(&cfg.Server.RequestsPerSecond, "POLYARB_SERVER_REQUESTS_PER_SECOND")
	setInt(&cfg.Server.Burst, "POLYARB_SERVER_BURST")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYARB_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "POLYARB_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "POLYARB_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "POLYARB_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "POLYARB_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "POLYARB_ARCHIVE_SECRET_KEY")
	setDuration(&cfg.Archive.FlushInterval, "POLYARB_ARCHIVE_FLUSH_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
	setStr(&cfg.Log.File, "POLYARB_LOG_FILE")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
