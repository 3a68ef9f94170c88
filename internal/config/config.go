// Package config defines the polyarb configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Mode     string    `toml:"mode"`
	LogLevel string    `toml:"log_level"`
	Log      LogConfig `toml:"log"`

	Wallet       WalletConfig       `toml:"wallet"`
	Polymarket   PolymarketConfig   `toml:"polymarket"`
	Engine       EngineConfig       `toml:"engine"`
	Breaker      BreakerConfig      `toml:"breaker"`
	Redis        RedisConfig        `toml:"redis"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Notify       NotifyConfig       `toml:"notify"`
	Server       ServerConfig       `toml:"server"`
	Archive      ArchiveConfig      `toml:"archive"`
	Correlations []CorrelationEntry `toml:"correlations"`
}

// LogConfig enables an optional rotating log file next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// WalletConfig holds the signing key. Either a raw key or an encrypted
// keystore file may be given.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether any key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// PolymarketConfig holds API endpoints, chain parameters and credentials.
type PolymarketConfig struct {
	ClobHost          string  `toml:"clob_host"`
	GammaHost         string  `toml:"gamma_host"`
	ChainID           int     `toml:"chain_id"`
	SignatureType     int     `toml:"signature_type"`
	FunderAddress     string  `toml:"funder_address"`
	OrderType         string  `toml:"order_type"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	ApiKey            string  `toml:"api_key"`
	ApiSecret         string  `toml:"api_secret"`
	ApiPassphrase     string  `toml:"api_passphrase"`
}

// HasAPICredentials reports whether all three L2 credentials are set.
func (p PolymarketConfig) HasAPICredentials() bool {
	return p.ApiKey != "" && p.ApiSecret != "" && p.ApiPassphrase != ""
}

// EngineConfig holds scan cadence, detection thresholds and risk limits.
type EngineConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	HaltBackoff       duration `toml:"halt_backoff"`
	VolatilityBackoff duration `toml:"volatility_backoff"`

	CorrelationThreshold float64 `toml:"correlation_threshold"`
	Notional             float64 `toml:"notional"`
	SlippageEstimate     float64 `toml:"slippage_estimate"`

	MaxPositionSize float64 `toml:"max_position_size"`
	MinLiquidity    float64 `toml:"min_liquidity"`
	MaxVolatility   float64 `toml:"max_volatility"`
	MaxSlippage     float64 `toml:"max_slippage"`
	MinTimeDecay    float64 `toml:"min_time_decay"`

	OrderSize            float64  `toml:"order_size"`
	FetchBatchSize       int      `toml:"fetch_batch_size"`
	BookCacheSize        int      `toml:"book_cache_size"`
	BookCacheTTL         duration `toml:"book_cache_ttl"`
	VolatilityCacheTTL   duration `toml:"volatility_cache_ttl"`
	VolatilityResetAfter duration `toml:"volatility_reset_after"`
	DefaultDaysToExpiry  float64  `toml:"default_days_to_expiry"`
	AlertDedupTTL        duration `toml:"alert_dedup_ttl"`
	DistributedLock      bool     `toml:"distributed_lock"`
}

// BreakerConfig holds circuit breaker limits.
type BreakerConfig struct {
	MaxDailyLoss           float64  `toml:"max_daily_loss"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
	Cooldown               duration `toml:"cooldown"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds journal database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	RatePerMinute     int      `toml:"rate_per_minute"`
}

// ServerConfig holds the status API parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Addr              string   `toml:"addr"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// ArchiveConfig holds the S3 journal archive parameters.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	FlushInterval  duration `toml:"flush_interval"`
}

// CorrelationEntry is one curated market pair.
type CorrelationEntry struct {
	MarketA     string  `toml:"market_a"`
	MarketB     string  `toml:"market_b"`
	Correlation float64 `toml:"correlation"`
	Category    string  `toml:"category"`
	Description string  `toml:"description"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText parses duration strings like "5m" or "30s".
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
		Mode:     "monitor",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			GammaHost:         "https://gamma-api.polymarket.com",
			ChainID:           137,
			SignatureType:     0,
			OrderType:         "GTC",
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Engine: EngineConfig{
			PollInterval:         duration{30 * time.Second},
			HaltBackoff:          duration{60 * time.Second},
			VolatilityBackoff:    duration{300 * time.Second},
			CorrelationThreshold: 0.8,
			Notional:             100,
			SlippageEstimate:     0.005,
			MaxPositionSize:      200,
			MinLiquidity:         25000,
			MaxVolatility:        0.5,
			MaxSlippage:          0.005,
			MinTimeDecay:         0.5,
			OrderSize:            10,
			FetchBatchSize:       10,
			BookCacheSize:        1000,
			BookCacheTTL:         duration{60 * time.Second},
			VolatilityCacheTTL:   duration{time.Hour},
			DefaultDaysToExpiry:  90,
			AlertDedupTTL:        duration{5 * time.Minute},
		},
		Breaker: BreakerConfig{
			MaxDailyLoss:           500,
			MaxConsecutiveFailures: 3,
			Cooldown:               duration{30 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "polyarb",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			RatePerMinute: 20,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Archive: ArchiveConfig{
			Region:        "us-east-1",
			UseSSL:        true,
			FlushInterval: duration{5 * time.Minute},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"trade":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOrderTypes = map[string]bool{
	"GTC": true,
	"FOK": true,
	"FAK": true,
	"GTD": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: monitor, trade)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.IsTrade() && !c.Wallet.HasKey() {
		add("wallet: either private_key or encrypted_key_path must be set for mode trade")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}

	p := c.Polymarket
	if p.ClobHost == "" {
		add("polymarket: clob_host must not be empty")
	}
	if p.GammaHost == "" {
		add("polymarket: gamma_host must not be empty")
	}
	if p.ChainID <= 0 {
		add("polymarket: chain_id must be positive")
	}
	if p.SignatureType < 0 || p.SignatureType > 2 {
		add("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", p.SignatureType)
	}
	if p.SignatureType != 0 && p.FunderAddress == "" {
		add("polymarket: funder_address is required for signature_type %d", p.SignatureType)
	}
	if !validOrderTypes[strings.ToUpper(p.OrderType)] {
		add("polymarket: unknown order_type %q", p.OrderType)
	}
	if p.RequestsPerSecond <= 0 {
		add("polymarket: requests_per_second must be > 0")
	}
	if set := countSet(p.ApiKey, p.ApiSecret, p.ApiPassphrase); set != 0 && set != 3 {
		add("polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	e := c.Engine
	if e.PollInterval.Duration <= 0 {
		add("engine: poll_interval must be > 0")
	}
	if e.HaltBackoff.Duration <= 0 || e.VolatilityBackoff.Duration <= 0 {
		add("engine: halt_backoff and volatility_backoff must be > 0")
	}
	if e.CorrelationThreshold <= 0 || e.CorrelationThreshold > 1 {
		add("engine: correlation_threshold must be in (0, 1], got %g", e.CorrelationThreshold)
	}
	if e.Notional <= 0 {
		add("engine: notional must be > 0")
	}
	if e.SlippageEstimate < 0 || e.MaxSlippage < 0 {
		add("engine: slippage values must be >= 0")
	}
	if e.MaxPositionSize <= 0 {
		add("engine: max_position_size must be > 0")
	}
	if e.MinLiquidity < 0 {
		add("engine: min_liquidity must be >= 0")
	}
	if e.MaxVolatility <= 0 {
		add("engine: max_volatility must be > 0")
	}
	if e.MinTimeDecay < 0.5 || e.MinTimeDecay > 1 {
		add("engine: min_time_decay must be in [0.5, 1], got %g", e.MinTimeDecay)
	}
	if e.OrderSize <= 0 {
		add("engine: order_size must be > 0")
	}
	if e.FetchBatchSize < 1 {
		add("engine: fetch_batch_size must be >= 1")
	}
	if e.BookCacheSize < 1 {
		add("engine: book_cache_size must be >= 1")
	}
	if e.BookCacheTTL.Duration <= 0 || e.VolatilityCacheTTL.Duration <= 0 {
		add("engine: cache ttls must be > 0")
	}
	if e.VolatilityResetAfter.Duration < 0 {
		add("engine: volatility_reset_after must be >= 0")
	}
	if e.DefaultDaysToExpiry <= 0 {
		add("engine: default_days_to_expiry must be > 0")
	}
	if e.DistributedLock && !c.Redis.Enabled {
		add("engine: distributed_lock requires redis.enabled")
	}

	if c.Breaker.MaxDailyLoss < 0 {
		add("breaker: max_daily_loss must be >= 0")
	}
	if c.Breaker.MaxConsecutiveFailures < 0 {
		add("breaker: max_consecutive_failures must be >= 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if pg := c.Postgres; pg.Enabled {
		if strings.TrimSpace(pg.DSN) == "" {
			if pg.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", pg.Port)
			}
			if pg.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if pg.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if pg.PoolMinConns < 0 || pg.PoolMinConns > pg.PoolMaxConns {
			add("postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.RatePerMinute < 0 {
		add("notify: rate_per_minute must be >= 0")
	}

	if srv := c.Server; srv.Enabled {
		if strings.TrimSpace(srv.Addr) == "" {
			add("server: addr must not be empty")
		}
		if srv.RequestsPerSecond < 0 {
			add("server: requests_per_second must be >= 0")
		}
		if srv.RequestsPerSecond > 0 && srv.Burst < 1 {
			add("server: burst must be >= 1 when rate limiting is on")
		}
	}

	if ar := c.Archive; ar.Enabled {
		if ar.Bucket == "" {
			add("archive: bucket must not be empty")
		}
		if ar.Region == "" {
			add("archive: region must not be empty")
		}
		if (ar.AccessKey == "") != (ar.SecretKey == "") {
			add("archive: access_key and secret_key must be set together")
		}
		if ar.FlushInterval.Duration <= 0 {
			add("archive: flush_interval must be > 0")
		}
	}

	for i, ce := range c.Correlations {
		if ce.MarketA == "" || ce.MarketB == "" {
			add("correlations[%d]: market_a and market_b are required", i)
		}
		if ce.Correlation < -1 || ce.Correlation > 1 {
			add("correlations[%d]: correlation must be in [-1, 1], got %g", i, ce.Correlation)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsTrade reports whether the engine should execute opportunities.
func (c *Config) IsTrade() bool {
	return strings.EqualFold(c.Mode, "trade")
}

func countSet(vals ...string) int {
	n := 0
	for _, v := range vals {
		if v != "" {
			n++
		}
	}
	return n
}
