package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"market_ingestor/internal/app/config"
	companyadapters "market_ingestor/internal/feature/companies/adapters"
	companyusecase "market_ingestor/internal/feature/companies/usecase"
	tickadapters "market_ingestor/internal/feature/ticks/adapters"
	tickusecase "market_ingestor/internal/feature/ticks/usecase"
	"market_ingestor/internal/platform/cache"
	infradb "market_ingestor/internal/platform/db"
	"market_ingestor/internal/platform/externalapi/nse"
	infraredis "market_ingestor/internal/platform/redis"
	"market_ingestor/internal/shared/executor"
)

// Resources holds the process wide connections shared by the use cases.
type Resources struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client // nil when Redis is not used or unavailable
	Market *nse.Client
	Pool   *executor.Pool
	Logger *slog.Logger
}

// Bootstrap opens the database and, when withRedis is set, tries Redis.
// A database failure is returned; a Redis failure only disables publishing.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger, withRedis bool) (*Resources, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	res := &Resources{
		Config: cfg,
		DB:     db,
		Market: NewMarket(),
		Pool:   executor.New(cfg.ProviderConcurrency),
		Logger: logger,
	}

	if withRedis {
		rdb, err := infraredis.NewRedisClient(ctx, infraredis.LoadConfigFromEnv())
		if err != nil {
			logger.Warn("Redis unavailable. Running without publishing.", "error", err)
		} else {
			res.Redis = rdb
		}
	}
	return res, nil
}

// Close releases the Redis client and the database pool.
func (r *Resources) Close() error {
	var errs []error
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if r.DB != nil {
		sqlDB, err := r.DB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewRefreshUsecase wires the company metadata refresher.
func (r *Resources) NewRefreshUsecase() *companyusecase.RefreshUsecase {
	repo := companyadapters.NewCompanySymbolRepository(r.DB)
	return companyusecase.NewRefreshUsecase(repo, r.Market, r.Logger)
}

// QueryUniverse returns the configured companies followed by those requested by users.
func (r *Resources) QueryUniverse(ctx context.Context) ([]string, error) {
	requests := companyadapters.NewUserRequestRepository(r.DB)
	return companyusecase.QueryUniverse(ctx, r.Config.TrackedCompanies, requests)
}

// ListSymbols returns every known company symbol.
func (r *Resources) ListSymbols(ctx context.Context) ([]string, error) {
	return companyadapters.NewCompanySymbolRepository(r.DB).ListSymbols(ctx)
}

// NewBackfillUsecase wires the historical backfill.
func (r *Resources) NewBackfillUsecase() *tickusecase.BackfillUsecase {
	ticks := tickadapters.NewTickRepository(r.DB)
	return tickusecase.NewBackfillUsecase(r.Market, ticks, ticks, r.Pool, r.Config.BackfillDelay, r.Logger)
}

// NewLiveTickStore wraps the tick repository with the latest tick snapshot in Redis.
func (r *Resources) NewLiveTickStore() *cache.CachingTickRepository {
	return cache.NewCachingTickRepository(r.Redis, 0, tickadapters.NewTickRepository(r.DB), "ticks")
}

// NewPoller wires the live tick poller writing through ticks.
func (r *Resources) NewPoller(ticks tickusecase.TickRepository) *tickusecase.Poller {
	symbols := companyadapters.NewCompanySymbolRepository(r.DB)
	publisher := NewTickPublisher(r.Redis, r.Config.ChannelPrefix)
	cfg := tickusecase.PollerConfig{
		Interval:  r.Config.PollInterval,
		OpTimeout: r.Config.OpTimeout,
	}
	return tickusecase.NewPoller(symbols, r.Market, ticks, publisher, r.Pool, cfg, r.Logger)
}
