package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// LeadKey builds the cache key for a lead. Shared with the enrichment worker,
// which deletes this key after mutating the lead.
func LeadKey(id uint64) string {
	return fmt.Sprintf("lead:%d", id)
}

// LeadReader serves lead reads cache-aside: cache hit returns without touching
// the repository; a miss reads the repository and populates the cache with a
// fixed TTL. Writes do not invalidate entries here; staleness is bounded by
// the TTL.
type LeadReader struct {
	cache Cache
	store store.Store
	ttl   time.Duration
}

// NewLeadReader creates a cache-aside read layer over the lead repository
func NewLeadReader(cache Cache, st store.Store, ttl time.Duration) *LeadReader {
	return &LeadReader{
		cache: cache,
		store: st,
		ttl:   ttl,
	}
}

// GetLead returns the lead with the given ID, or domain.ErrLeadNotFound.
// Cache failures degrade to repository reads; they never fail the request.
func (r *LeadReader) GetLead(ctx context.Context, id uint64) (*schema.Lead, error) {
	key := LeadKey(id)

	cached, err := r.cache.Get(ctx, key)
	if err == nil {
		var lead schema.Lead
		if err := json.Unmarshal(cached, &lead); err == nil {
			return &lead, nil
		}
		// Corrupt entry: drop it and fall through to the repository
		logger.WarnCtx(ctx, "Dropping undecodable cache entry", zap.String("key", key))
		_ = r.cache.Del(ctx, key)
	} else if !errors.Is(err, ErrMiss) {
		logger.WarnCtx(ctx, "Cache read failed, falling back to repository",
			zap.String("key", key), zap.Error(err))
	}

	lead, err := r.store.GetLeadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}

	encoded, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lead for cache: %w", err)
	}
	if err := r.cache.Set(ctx, key, encoded, r.ttl); err != nil {
		logger.WarnCtx(ctx, "Cache populate failed", zap.String("key", key), zap.Error(err))
	}

	return lead, nil
}
