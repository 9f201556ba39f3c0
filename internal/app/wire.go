package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/MixasV/werpool/internal/blob/s3"
	"github.com/MixasV/werpool/internal/cache/redis"
	"github.com/MixasV/werpool/internal/config"
	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/ledger"
	"github.com/MixasV/werpool/internal/pool"
	"github.com/MixasV/werpool/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore    domain.MarketStore
	WorkflowStore  domain.WorkflowStore
	TradeStore     domain.TradeStore
	TxLogStore     domain.TransactionLogStore
	AnalyticsStore domain.AnalyticsStore

	// Pool state
	PoolStore *pool.Store

	// Redis
	SignalBus   *redis.SignalBus
	BonusLocker domain.BonusLocker

	// Ledger
	Ledger       *ledger.Client
	LedgerReader *ledger.MarketReader

	// Blob storage
	BlobWriter domain.BlobWriter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
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
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pgPool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pgPool)
	deps.WorkflowStore = postgres.NewWorkflowStore(pgPool)
	deps.TradeStore = postgres.NewTradeStore(pgPool)
	deps.TxLogStore = postgres.NewTransactionLogStore(pgPool)
	deps.AnalyticsStore = postgres.NewAnalyticsStore(pgPool)
	poolRecords := postgres.NewPoolStateStore(pgPool)

	// --- Redis ---
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

	poolCache := redis.NewPoolCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.BonusLocker = redis.NewBonusLocker(redisClient)

	// --- Ledger CLI ---
	deps.Ledger = ledger.NewClient(cfg.Ledger.Binary, logger)
	deps.LedgerReader = ledger.NewMarketReader(deps.Ledger, cfg.Ledger.Network)

	deps.PoolStore = pool.NewStore(poolCache, poolRecords, deps.LedgerReader, logger)

	// --- S3 blob storage ---
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
	deps.BlobWriter = s3blob.NewWriter(s3Client)

	return deps, cleanup, nil
}
