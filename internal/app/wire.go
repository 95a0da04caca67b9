package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/backitlabs/backit-oracle/internal/blob/s3"
	"github.com/backitlabs/backit-oracle/internal/cache/redis"
	"github.com/backitlabs/backit-oracle/internal/config"
	"github.com/backitlabs/backit-oracle/internal/domain"
	"github.com/backitlabs/backit-oracle/internal/notify"
	"github.com/backitlabs/backit-oracle/internal/oracle"
	"github.com/backitlabs/backit-oracle/internal/platform/dexscreener"
	"github.com/backitlabs/backit-oracle/internal/platform/horizon"
	"github.com/backitlabs/backit-oracle/internal/platform/outcomemanager"
	"github.com/backitlabs/backit-oracle/internal/store/postgres"
)

// Dependencies bundles everything the worker needs to settle calls. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	CallStore    domain.CallStore
	OutcomeStore domain.OutcomeStore
	CallLocker   domain.CallLocker // nil when Redis is disabled
	Signer       *oracle.Signer
	Processor    *oracle.Processor
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

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

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	callStore := postgres.NewCallStore(pool)
	deps.CallStore = callStore
	deps.OutcomeStore = postgres.NewOutcomeStore(pool)

	// --- Redis (optional: price cache + cross-replica call locks) ---
	var priceCache domain.PriceCache
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

		if cfg.Prices.CacheTTL.Duration > 0 {
			priceCache = redis.NewPriceCache(redisClient, cfg.Prices.CacheTTL.Duration)
		}
		deps.CallLocker = redis.NewCallLock(redisClient)
	}

	// --- Signer ---
	signer, err := oracle.NewSigner(oracle.KeyConfig{
		SeedHex:          cfg.Oracle.SigningSeed,
		EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
		KeyPassword:      cfg.Oracle.KeyPassword,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

	// --- Price sources ---
	primary := dexscreener.New(cfg.Prices.DexScreenerURL, cfg.Prices.Chain)
	var fallback oracle.PriceFetcher
	if cfg.Prices.HorizonURL != "" {
		fallback = horizon.New(cfg.Prices.HorizonURL)
	}
	prices := oracle.NewChainedPriceSource(priceCache, primary, fallback, logger)

	// --- Settlement contract ---
	contract := outcomemanager.New(cfg.Contract.Endpoint)
	if contract.DryRun() {
		logger.Warn("no contract endpoint configured, submissions run in dry-run mode")
	}

	// --- Attestation archive (optional) ---
	var archiver domain.AttestationArchiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver = s3blob.NewArchiver(s3Client)
	}

	// --- Notifications (optional) ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	var notifier oracle.Notifier
	if len(senders) > 0 {
		notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	deps.Processor = oracle.NewProcessor(
		deps.CallStore,
		deps.OutcomeStore,
		prices,
		signer,
		contract,
		archiver,
		notifier,
		oracle.ProcessorConfig{
			MaxAttempts: cfg.Scheduler.MaxAttempts,
			BackoffBase: cfg.Scheduler.BackoffBase.Duration,
		},
		logger,
	)

	return deps, cleanup, nil
}
