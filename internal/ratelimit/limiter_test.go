package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leadfoundry/lf-ingestor/internal/cache"
)

// fakeCache is an in-memory counter store standing in for redis
type fakeCache struct {
	counts  map[string]int64
	expiry  map[string]time.Duration
	incrErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		counts: make(map[string]int64),
		expiry: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, cache.ErrMiss
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	return nil
}

func (f *fakeCache) Incr(ctx context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.expiry[key] = ttl
	return nil
}

func (f *fakeCache) Close() error {
	return nil
}

func TestLimiterCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit and denies after", func(t *testing.T) {
		fc := newFakeCache()
		limiter := NewLimiter(fc, Config{Limit: 3, Window: time.Minute})

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"), "request %d should be admitted", i+1)
		}
		assert.False(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"), "request over the limit should be denied")
	})

	t.Run("subjects are counted independently", func(t *testing.T) {
		fc := newFakeCache()
		limiter := NewLimiter(fc, Config{Limit: 1, Window: time.Minute})

		assert.True(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"))
		assert.True(t, limiter.Check(ctx, "POST:/leads", "5.6.7.8"))
		assert.False(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"))
	})

	t.Run("window expiry is set on the first increment only", func(t *testing.T) {
		fc := newFakeCache()
		limiter := NewLimiter(fc, Config{Limit: 10, Window: 30 * time.Second})

		limiter.Check(ctx, "POST:/leads", "1.2.3.4")
		assert.Equal(t, 30*time.Second, fc.expiry["rate:POST:/leads:1.2.3.4"])

		// Later checks must not push the window forward
		fc.expiry = make(map[string]time.Duration)
		limiter.Check(ctx, "POST:/leads", "1.2.3.4")
		assert.Empty(t, fc.expiry)
	})

	t.Run("denied attempts still consume quota", func(t *testing.T) {
		fc := newFakeCache()
		limiter := NewLimiter(fc, Config{Limit: 1, Window: time.Minute})

		assert.True(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"))
		assert.False(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"))
		assert.Equal(t, int64(2), fc.counts["rate:POST:/leads:1.2.3.4"])
	})

	t.Run("fails closed when the store is unreachable", func(t *testing.T) {
		fc := newFakeCache()
		fc.incrErr = errors.New("connection refused")
		limiter := NewLimiter(fc, Config{Limit: 100, Window: time.Minute})

		assert.False(t, limiter.Check(ctx, "POST:/leads", "1.2.3.4"))
	})
}
