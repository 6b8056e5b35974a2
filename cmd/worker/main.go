package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/leadfoundry/lf-ingestor/internal/adapter"
	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/config"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/providers/jetstream"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/worker"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

// startupBackoff retries dependency connections during startup. The worker is
// typically scheduled alongside its dependencies and must tolerate them coming
// up after it.
func startupBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(b, ctx)
}

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadWorkerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "enrichment-worker",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting enrichment worker")

	// Connect to database
	db, err := backoff.RetryWithData(func() (*gorm.DB, error) {
		return gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	}, startupBackoff(ctx))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Connect to the cache store
	redisCache, err := backoff.RetryWithData(func() (cache.Cache, error) {
		return cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}, startupBackoff(ctx))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.InfoCtx(ctx, "Connected to redis", zap.String("addr", cfg.Redis.Addr))

	// Connect to NATS JetStream
	consumer, err := backoff.RetryWithData(func() (*jetstream.Consumer, error) {
		return jetstream.NewConsumer(ctx, jetstream.ConsumerConfig{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			Subject:        cfg.NATS.Subject,
			ConsumerName:   cfg.NATS.ConsumerName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: "lf-ingestor-worker",
			AckWait:        cfg.NATS.AckWait,
			MaxDeliver:     cfg.NATS.MaxDeliver,
		}, adapter.NewNatsJetStream(), adapter.NewJSON())
	}, startupBackoff(ctx))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
	}
	defer consumer.Close()
	logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))

	// Create the enricher and start consuming
	enricher := worker.NewEnricher(dataStore, redisCache, worker.Config{
		DefaultCompany: cfg.Enrich.DefaultCompany,
		PoolSize:       cfg.Enrich.PoolSize,
		QueueSize:      cfg.Enrich.QueueSize,
	})
	defer enricher.Close()

	if err := consumer.Start(ctx, enricher.Handle); err != nil {
		logger.FatalCtx(ctx, "Failed to start consumer", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Consuming lead tasks",
		zap.String("stream", cfg.NATS.StreamName),
		zap.String("consumer", cfg.NATS.ConsumerName),
	)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	logger.Info("Enrichment worker stopped")
}
