package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/subcart/internal/cartstore"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/config"
	"github.com/noah-isme/subcart/internal/hooks"
	"github.com/noah-isme/subcart/internal/lock"
	"github.com/noah-isme/subcart/internal/obs"
	"github.com/noah-isme/subcart/internal/pricing"
	"github.com/noah-isme/subcart/internal/queue"
	"github.com/noah-isme/subcart/internal/session"
	"github.com/noah-isme/subcart/internal/shipping"
	"github.com/noah-isme/subcart/internal/totals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "subcart")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	catalogStore := catalog.NewStore(pool)
	catalogProvider := catalog.CachedProvider{
		Next:  catalogStore,
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
	}

	sessions := session.Redis{R: redisClient, TTL: cfg.SessionTTL}
	shipSvc := shipping.Service{
		Rater: shipping.TableRater{
			Base:     cfg.ShippingBase,
			PerLine:  cfg.ShippingPerLine,
			FreeOver: cfg.ShippingFreeOver,
		},
		TaxBps: cfg.TaxRateBPS,
	}
	engines := totals.Factory{
		Pricing: pricing.Engine{
			Resolver: pricing.Resolver{Catalog: catalogProvider},
			TaxBps:   cfg.TaxRateBPS,
			Shipping: shipSvc,
		},
		Shipping: shipSvc,
		Catalog:  catalogProvider,
		Sessions: sessions,
		Hooks:    &hooks.Pipeline{},
		Logger:   &logger,
	}

	worker := &queue.Worker{
		Carts:   cartstore.Redis{R: redisClient, TTL: cfg.CartTTL},
		Engines: engines,
		Locker:  &lock.Locker{R: redisClient},
		LockTTL: 30 * time.Second,
		Logger:  &logger,
	}

	redisOpts, _ := redis.ParseURL(cfg.RedisURL)
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB},
		asynq.Config{
			Concurrency: cfg.QueueConcurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.Error().Err(err).Str("type", task.Type()).Msg("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	worker.Register(mux)

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
