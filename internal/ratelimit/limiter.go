package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
)

// Config holds the fixed-window quota parameters
type Config struct {
	// Limit is the maximum number of admitted checks per window
	Limit int64
	// Window is the fixed window length
	Window time.Duration
}

// Limiter is a fixed-window counter keyed by subject, backed by the cache
// store's atomic increment. It holds no in-process state: safety under
// concurrent checks comes entirely from the store's INCR.
type Limiter struct {
	cache  cache.Cache
	config Config
}

// NewLimiter creates a fixed-window rate limiter
func NewLimiter(c cache.Cache, cfg Config) *Limiter {
	return &Limiter{cache: c, config: cfg}
}

// Check admits or denies one request for the subject. The counter is
// incremented before the limit comparison and never rolled back, so a denied
// attempt still consumes window quota. An unreachable cache store fails
// closed: the request is denied to protect downstream capacity.
func (l *Limiter) Check(ctx context.Context, route, subject string) bool {
	key := fmt.Sprintf("rate:%s:%s", route, subject)

	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		logger.WarnCtx(ctx, "Rate limiter store unreachable, failing closed",
			zap.String("key", key), zap.Error(err))
		return false
	}

	// First increment of a fresh window owns setting the expiry
	if count == 1 {
		if err := l.cache.Expire(ctx, key, l.config.Window); err != nil {
			logger.WarnCtx(ctx, "Failed to set rate window expiry",
				zap.String("key", key), zap.Error(err))
		}
	}

	return count <= l.config.Limit
}
