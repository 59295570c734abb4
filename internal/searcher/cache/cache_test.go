package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/metrics"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func result(gen uint64) *executor.SearchResult {
	return &executor.SearchResult{
		Query:      "brown fox",
		TotalDocs:  2,
		Generation: gen,
		Results:    []executor.Hit{{RecordID: "a", Position: 1, Score: 0.75, Text: "the brown fox"}},
	}
}

func TestQueryCache_GetOrCompute(t *testing.T) {
	backend := newMemBackend()
	m := metrics.New(prometheus.NewRegistry())
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, m)
	ctx := context.Background()

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result(1), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "Brown  FOX", 10, 1, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, result(1), got)

	got, hit, err = c.GetOrCompute(ctx, "brown fox", 10, 1, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, result(1), got)
	assert.Equal(t, 1, calls)

	for _, ttl := range backend.ttls {
		assert.Equal(t, time.Minute, ttl)
	}

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestQueryCache_KeysDependOnGenerationLimitAndOrder(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{}, nil)
	base := c.buildKey("brown fox", 10, 1)
	assert.Equal(t, base, c.buildKey("  BROWN\tfox ", 10, 1))
	assert.NotEqual(t, base, c.buildKey("brown fox", 10, 2))
	assert.NotEqual(t, base, c.buildKey("brown fox", 5, 1))
	assert.NotEqual(t, base, c.buildKey("fox brown", 10, 1))
	assert.True(t, strings.HasPrefix(base, keyPrefix+"g1:"))
}

func TestQueryCache_StaleGenerationMisses(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{}, nil)
	ctx := context.Background()
	c.Set(ctx, "fox", 10, result(1))

	_, ok := c.Get(ctx, "fox", 10, 2)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "fox", 10, 1)
	assert.True(t, ok)
}

func TestQueryCache_ComputeErrorNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{}, nil)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), "fox", 10, 1, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.data)
}

func TestQueryCache_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{}, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result(1), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "fox", 10, 1, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestQueryCache_Invalidate(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{}, nil)
	ctx := context.Background()
	c.Set(ctx, "fox", 10, result(1))
	c.Set(ctx, "dog", 10, result(1))
	backend.data["other:key"] = "x"

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, map[string]string{"other:key": "x"}, backend.data)
}
