package worker

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// Config holds enrichment settings
type Config struct {
	// DefaultCompany is the placeholder company applied when enrichment has
	// no better answer
	DefaultCompany string
	// PoolSize bounds concurrent task processing
	PoolSize int
	// QueueSize bounds tasks waiting for a pool worker
	QueueSize int
}

// Enricher consumes lead tasks: it applies the enrichment mutation to the
// durable store and invalidates the lead's cache entry so the next read
// reflects the enriched row.
type Enricher struct {
	store  store.Store
	cache  cache.Cache
	config Config
	pool   pond.Pool
}

// NewEnricher creates an enricher with a bounded worker pool
func NewEnricher(st store.Store, c cache.Cache, cfg Config) *Enricher {
	if cfg.DefaultCompany == "" {
		cfg.DefaultCompany = "Unknown"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}

	return &Enricher{
		store:  st,
		cache:  c,
		config: cfg,
		pool: pond.NewPool(
			cfg.PoolSize,
			pond.WithQueueSize(cfg.QueueSize),
		),
	}
}

// Handle dispatches one task onto the pool and waits for its outcome, so the
// broker callback acks only after the durable mutation committed.
func (e *Enricher) Handle(ctx context.Context, task *domain.LeadTask) error {
	return e.pool.SubmitErr(func() error {
		return e.process(ctx, task)
	}).Wait()
}

func (e *Enricher) process(ctx context.Context, task *domain.LeadTask) error {
	if task.LeadID == 0 {
		return fmt.Errorf("task %s has no lead id: %w", task.TaskID, domain.ErrLeadNotFound)
	}

	err := e.store.EnrichLead(ctx, task.LeadID, e.config.DefaultCompany, schema.LeadStatusProcessed)
	if err != nil {
		return err
	}

	// Invalidate after the commit so the next read repopulates from the
	// enriched row. A failed delete only extends staleness to the TTL.
	key := cache.LeadKey(task.LeadID)
	if err := e.cache.Del(ctx, key); err != nil {
		logger.WarnCtx(ctx, "Failed to invalidate lead cache entry",
			zap.String("key", key), zap.Error(err))
	}

	logger.InfoCtx(ctx, "Lead enriched",
		zap.Uint64("lead_id", task.LeadID), zap.String("task_id", task.TaskID))

	return nil
}

// Close drains the worker pool, waiting for in-flight tasks
func (e *Enricher) Close() {
	e.pool.StopAndWait()
}
