package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// recordingStore captures enrichment calls
type recordingStore struct {
	store.Store

	mu        sync.Mutex
	enriched  map[uint64]string
	enrichErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{enriched: make(map[uint64]string)}
}

func (s *recordingStore) EnrichLead(ctx context.Context, leadID uint64, company string, status schema.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enrichErr != nil {
		return s.enrichErr
	}
	s.enriched[leadID] = company
	return nil
}

// recordingCache captures deletions
type recordingCache struct {
	cache.Cache

	mu      sync.Mutex
	deleted []string
	delErr  error
}

func (c *recordingCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return c.delErr
	}
	c.deleted = append(c.deleted, key)
	return nil
}

func TestEnricherHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("enriches the lead and invalidates its cache entry", func(t *testing.T) {
		st := newRecordingStore()
		rc := &recordingCache{}
		enricher := NewEnricher(st, rc, Config{DefaultCompany: "Initech"})
		defer enricher.Close()

		err := enricher.Handle(ctx, &domain.LeadTask{TaskID: "task-1", LeadID: 7})
		require.NoError(t, err)

		assert.Equal(t, "Initech", st.enriched[7])
		assert.Equal(t, []string{cache.LeadKey(7)}, rc.deleted)
	})

	t.Run("task without a lead id is poison", func(t *testing.T) {
		st := newRecordingStore()
		rc := &recordingCache{}
		enricher := NewEnricher(st, rc, Config{})
		defer enricher.Close()

		err := enricher.Handle(ctx, &domain.LeadTask{TaskID: "task-2"})
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
		assert.Empty(t, st.enriched)
	})

	t.Run("store failure surfaces and skips invalidation", func(t *testing.T) {
		st := newRecordingStore()
		st.enrichErr = errors.New("connection reset")
		rc := &recordingCache{}
		enricher := NewEnricher(st, rc, Config{})
		defer enricher.Close()

		err := enricher.Handle(ctx, &domain.LeadTask{TaskID: "task-3", LeadID: 7})
		require.Error(t, err)
		assert.Empty(t, rc.deleted)
	})

	t.Run("cache invalidation failure does not fail the task", func(t *testing.T) {
		st := newRecordingStore()
		rc := &recordingCache{delErr: errors.New("connection refused")}
		enricher := NewEnricher(st, rc, Config{})
		defer enricher.Close()

		err := enricher.Handle(ctx, &domain.LeadTask{TaskID: "task-4", LeadID: 7})
		assert.NoError(t, err)
		assert.NotEmpty(t, st.enriched)
	})

	t.Run("concurrent tasks all complete", func(t *testing.T) {
		st := newRecordingStore()
		rc := &recordingCache{}
		enricher := NewEnricher(st, rc, Config{PoolSize: 4})
		defer enricher.Close()

		const tasks = 20
		var wg sync.WaitGroup
		errs := make([]error, tasks)
		for i := range tasks {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = enricher.Handle(ctx, &domain.LeadTask{
					TaskID: "task-n",
					LeadID: uint64(i + 1),
				})
			}(i)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("tasks did not complete in time")
		}

		for i, err := range errs {
			assert.NoError(t, err, "task %d", i)
		}
		assert.Len(t, st.enriched, tasks)
	})
}
