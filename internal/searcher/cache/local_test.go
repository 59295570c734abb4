package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/redis"
)

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(2, time.Minute)

	_, err := b.Get(ctx, "search:g1:a")
	assert.True(t, pkgredis.IsNilError(err))

	require.NoError(t, b.Set(ctx, "search:g1:a", []byte("A"), 0))
	require.NoError(t, b.Set(ctx, "search:g1:b", "B", 0))
	assert.Error(t, b.Set(ctx, "search:g1:c", 42, 0))
	v, err := b.Get(ctx, "search:g1:a")
	require.NoError(t, err)
	assert.Equal(t, "A", v)

	require.NoError(t, b.Set(ctx, "search:g1:c", "C", 0))
	assert.Equal(t, 2, b.Len(), "least recently used entry evicted")
	_, err = b.Get(ctx, "search:g1:b")
	assert.True(t, pkgredis.IsNilError(err))

	require.NoError(t, b.Set(ctx, "other", "x", 0))
	n, err := b.FlushByPattern(ctx, "search:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, b.Len())
}

func TestLocalBackend_Expires(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(10, 20*time.Millisecond)
	require.NoError(t, b.Set(ctx, "k", "v", 0))
	assert.Eventually(t, func() bool {
		_, err := b.Get(ctx, "k")
		return pkgredis.IsNilError(err)
	}, time.Second, 10*time.Millisecond)
}

func TestQueryCache_OverLocalBackend(t *testing.T) {
	ctx := context.Background()
	c := New(NewLocalBackend(16, time.Minute), config.RedisConfig{}, nil)
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return &executor.SearchResult{Query: "cat", Generation: 4}, nil
	}

	_, hit, err := c.GetOrCompute(ctx, "cat", 5, 4, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	got, hit, err := c.GetOrCompute(ctx, "CAT ", 5, 4, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, uint64(4), got.Generation)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx))
	_, hit, err = c.GetOrCompute(ctx, "cat", 5, 4, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}
