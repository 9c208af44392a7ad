package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/lunarwatch/lunarwatch/internal/blob/s3"
	"github.com/lunarwatch/lunarwatch/internal/cache/redis"
	"github.com/lunarwatch/lunarwatch/internal/config"
	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/notify"
	"github.com/lunarwatch/lunarwatch/internal/store/memory"
	"github.com/lunarwatch/lunarwatch/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	AccountStore  domain.AccountStore
	TradeStore    domain.TradeStore
	AgentStore    domain.AgentAnalysisStore
	AlertStore    domain.AlertStore
	RingStore     domain.RingStore
	SnapshotStore domain.SnapshotStore

	// Caches (nil when Redis is not configured)
	CorrelationCache domain.CorrelationCache
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager
	SignalBus        domain.SignalBus

	// Blob storage (nil when S3 is not configured)
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// hasPostgres reports whether a database connection is configured.
func hasPostgres(cfg *config.Config) bool {
	return cfg.Postgres.DSN != "" || cfg.Postgres.Host != ""
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores: PostgreSQL when configured, in-memory otherwise ---
	if hasPostgres(cfg) {
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
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AgentStore = postgres.NewAgentAnalysisStore(pool)
		deps.AlertStore = postgres.NewAlertStore(pool)
		deps.RingStore = postgres.NewRingStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	} else {
		logger.Warn("postgres not configured, using in-memory stores (state is lost on restart)")
		deps.AccountStore = memory.NewAccountStore()
		deps.TradeStore = memory.NewTradeStore()
		deps.AgentStore = memory.NewAgentAnalysisStore()
		deps.AlertStore = memory.NewAlertStore()
		deps.RingStore = memory.NewRingStore()
		deps.SnapshotStore = memory.NewSnapshotStore()
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
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

		cacheTTL := time.Duration(0)
		if cfg.Redis.CacheTTLMin > 0 {
			cacheTTL = time.Duration(cfg.Redis.CacheTTLMin) * time.Minute
		}
		streamMaxLen := int64(10000)
		if cfg.Redis.StreamMaxLen > 0 {
			streamMaxLen = int64(cfg.Redis.StreamMaxLen)
		}

		deps.CorrelationCache = redis.NewResultCache(redisClient, cacheTTL)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
	} else {
		logger.Warn("redis not configured, disabling correlation cache, rate limiting, run lock, and live push")
	}

	// --- S3 blob storage ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore, deps.SnapshotStore, logger)
	}

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

	return deps, cleanup, nil
}
