package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/breaker"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/correlation"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
)

// Dependencies bundles the collaborators the engine runs against. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Clob     *polymarket.ClobClient
	Gamma    *polymarket.GammaClient
	Breaker  *breaker.Breaker
	Notifier *notify.Notifier
	Registry *correlation.Registry

	// Optional, nil or empty when Redis / Postgres / the API are disabled.
	Locks    domain.LockManager
	Journals []domain.ArbJournal
	Hub      *ws.Hub
	Archive  *s3blob.Archive
}

// Wire constructs all concrete dependency implementations from cfg and returns
// them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Correlation registry ---
	registry, err := buildRegistry(cfg.Correlations)
	if err != nil {
		return fail(fmt.Errorf("wire: correlations: %w", err))
	}
	deps.Registry = registry

	// --- Polymarket ---
	signer, err := buildSigner(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: signer: %w", err))
	}
	var auth *crypto.HMACAuth
	if cfg.Polymarket.HasAPICredentials() {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Polymarket.RequestsPerSecond), max(cfg.Polymarket.Burst, 1))
	deps.Clob = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:       cfg.Polymarket.ClobHost,
		SignatureType: cfg.Polymarket.SignatureType,
		Funder:        cfg.Polymarket.FunderAddress,
		OrderType:     cfg.Polymarket.OrderType,
	}, signer, auth, limiter)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, rate.NewLimiter(5, 5))

	if cfg.IsTrade() && auth == nil {
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			return fail(fmt.Errorf("wire: derive api key: %w", err))
		}
		logger.InfoContext(ctx, "derived clob api credentials",
			slog.String("wallet", deps.Clob.WalletAddress()),
		)
	}

	// --- Circuit breaker ---
	deps.Breaker = breaker.New(breaker.Config{
		MaxDailyLoss:           cfg.Breaker.MaxDailyLoss,
		MaxConsecutiveFailures: cfg.Breaker.MaxConsecutiveFailures,
		Cooldown:               cfg.Breaker.Cooldown.Duration,
	}, logger)

	// --- Notifications ---
	n, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: notify: %w", err))
	}
	deps.Notifier = n

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Journals = append(deps.Journals, redis.NewEventJournal(redis.NewSignalBus(redisClient)))
		if cfg.Engine.DistributedLock {
			deps.Locks = redis.NewLockManager(redisClient)
		}
	}

	// --- PostgreSQL (optional) ---
	if cfg.Postgres.Enabled {
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journals = append(deps.Journals, postgres.NewJournal(pgClient.Pool()))
	}

	// --- S3 journal archive (optional) ---
	if ac := cfg.Archive; ac.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       ac.Endpoint,
			Region:         ac.Region,
			Bucket:         ac.Bucket,
			AccessKey:      ac.AccessKey,
			SecretKey:      ac.SecretKey,
			UseSSL:         ac.UseSSL,
			ForcePathStyle: ac.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := blob.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archive = s3blob.NewArchive(s3blob.NewWriter(blob), logger)
		deps.Journals = append(deps.Journals, deps.Archive)
		logger.InfoContext(ctx, "journal archive enabled", slog.String("bucket", blob.Bucket()))
	}

	// --- Status API event feed (optional) ---
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(logger)
		closers = append(closers, deps.Hub.Close)
		deps.Journals = append(deps.Journals, deps.Hub)
	}

	return deps, cleanup, nil
}

// buildRegistry uses the configured pairs, or the built-in ones when none
// are configured.
func buildRegistry(entries []config.CorrelationEntry) (*correlation.Registry, error) {
	if len(entries) == 0 {
		return correlation.DefaultRegistry(), nil
	}
	out := make([]correlation.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, correlation.Entry{
			MarketA:     e.MarketA,
			MarketB:     e.MarketB,
			Correlation: e.Correlation,
			Category:    e.Category,
			Description: e.Description,
		})
	}
	return correlation.NewRegistry(out)
}

// buildSigner returns nil when no key is configured; the CLOB client is then
// read-only.
func buildSigner(cfg *config.Config) (*crypto.Signer, error) {
	src := crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}
	if !src.Configured() {
		return nil, nil
	}
	key, err := crypto.LoadKey(src)
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(key, cfg.Polymarket.ChainID, "")
}

func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*notify.Notifier, error) {
	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, tg)
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL, "polyarb"))
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return notify.NewNotifier(senders, cfg.Events, limiter, logger), nil
}
